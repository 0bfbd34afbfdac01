/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package routing is the Valhalla client used by the dispatcher. All calls go
// through the traffic proxy so travel times reflect harvested live speeds.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/twpayne/go-polyline"
	"knative.dev/pkg/logging"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
)

// MissingCellPenalty fills matrix cells Valhalla could not route so the
// optimizer avoids those arcs without the whole solve failing.
const MissingCellPenalty = 9999999

// liveTrafficOptions opts route and matrix requests into the proxy's
// live-speed rewrite.
var liveTrafficOptions = map[string]any{
	"auto": map[string]any{"use_live_traffic": true},
}

const (
	matrixTimeout = 60 * time.Second
	routeTimeout  = 30 * time.Second
	retryAttempts = 3
	retryDelay    = 2 * time.Second
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: matrixTimeout},
	}
}

// TimeDistanceMatrix computes the full pairwise travel-time matrix in
// seconds for the given points. Cells the router cannot serve are filled with
// MissingCellPenalty; an error is returned only when no cell at all could be
// routed or the service stayed unreachable through all retries.
func (c *Client) TimeDistanceMatrix(ctx context.Context, points []geo.Coordinate) ([][]float64, error) {
	locations := make([]matrixLocation, 0, len(points))
	for _, pt := range points {
		locations = append(locations, matrixLocation{Lat: pt.Lat, Lon: pt.Lon})
	}
	body, err := json.Marshal(matrixRequest{
		Sources: locations, Targets: locations, Costing: "auto",
		CostingOptions: liveTrafficOptions,
	})
	if err != nil {
		return nil, err
	}

	var parsed matrixResponse
	err = retry.Do(func() error {
		ctx, cancel := context.WithTimeout(ctx, matrixTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/matrix", c.baseURL), bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("matrix request returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&parsed)
	},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.FromContext(ctx).Warnf("matrix request attempt %d failed, %s", n+1, err)
		}),
	)
	if err != nil {
		return nil, apierrors.External(err, "travel-time matrix unavailable")
	}
	if len(parsed.SourcesToTargets) != len(points) {
		return nil, apierrors.External(nil, "matrix response has %d rows, want %d", len(parsed.SourcesToTargets), len(points))
	}

	matrix := make([][]float64, len(points))
	routed := 0
	for i, row := range parsed.SourcesToTargets {
		matrix[i] = make([]float64, len(points))
		for j := range matrix[i] {
			if j >= len(row) || row[j].Time == nil {
				matrix[i][j] = MissingCellPenalty
				continue
			}
			matrix[i][j] = *row[j].Time
			routed++
		}
	}
	if routed == 0 {
		return nil, apierrors.External(nil, "no routable pairs in matrix response")
	}
	return matrix, nil
}

// TurnByTurnRoute fetches the driving route between two points.
func (c *Client) TurnByTurnRoute(ctx context.Context, from, to geo.Coordinate) (*RouteResponse, error) {
	payload := map[string]any{
		"locations": []matrixLocation{
			{Lat: from.Lat, Lon: from.Lon},
			{Lat: to.Lat, Lon: to.Lon},
		},
		"costing":         "auto",
		"costing_options": liveTrafficOptions,
		"directions_options": map[string]any{
			"units":    "kilometers",
			"language": "ko-KR",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var route RouteResponse
	err = retry.Do(func() error {
		ctx, cancel := context.WithTimeout(ctx, routeTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/route", c.baseURL), bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("route request returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&route)
	},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.FromContext(ctx).Warnf("route request attempt %d failed, %s", n+1, err)
		}),
	)
	if err != nil {
		return nil, apierrors.External(err, "routing service unavailable")
	}
	if route.Trip == nil || len(route.Trip.Legs) == 0 {
		return nil, apierrors.External(nil, "route response carries no trip")
	}

	route.Waypoints, route.Coordinates = ExtractWaypoints(route.Trip)
	return &route, nil
}

// ExtractWaypoints decodes the first leg's encoded shape (precision 1e-6)
// and emits one waypoint per maneuver at its begin shape index. Maneuvers
// pointing outside the decoded shape get a zero coordinate; missing street
// names and instructions get synthetic segment labels.
func ExtractWaypoints(trip *Trip) ([]Waypoint, []geo.Coordinate) {
	if len(trip.Legs) == 0 {
		return nil, nil
	}
	leg := trip.Legs[0]

	var coordinates []geo.Coordinate
	if leg.Shape != "" {
		codec := polyline.Codec{Dim: 2, Scale: 1e6}
		if coords, _, err := codec.DecodeCoords([]byte(leg.Shape)); err == nil {
			coordinates = make([]geo.Coordinate, 0, len(coords))
			for _, c := range coords {
				coordinates = append(coordinates, geo.Coordinate{Lat: c[0], Lon: c[1]})
			}
		}
	}

	waypoints := make([]Waypoint, 0, len(leg.Maneuvers))
	for i, m := range leg.Maneuvers {
		wp := Waypoint{
			Instruction: m.Instruction,
			Name:        fmt.Sprintf("구간%d", i+1),
		}
		if wp.Instruction == "" {
			wp.Instruction = fmt.Sprintf("구간 %d", i+1)
		}
		if len(m.StreetNames) > 0 {
			wp.Name = m.StreetNames[0]
		}
		if m.BeginShapeIndex >= 0 && m.BeginShapeIndex < len(coordinates) {
			wp.Coordinate = coordinates[m.BeginShapeIndex]
		}
		waypoints = append(waypoints, wp)
	}
	return waypoints, coordinates
}
