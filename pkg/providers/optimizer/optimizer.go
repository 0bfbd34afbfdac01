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

// Package optimizer is the client for the tour optimization service. It ships
// a travel-time matrix and gets back a closed tour starting at index 0.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"knative.dev/pkg/logging"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type solveRequest struct {
	Matrix [][]float64 `json:"matrix"`
}

type solveResponse struct {
	Tour []int    `json:"tour"`
	Cost *float64 `json:"cost"`
}

// Tour is a solved visiting order. Order always starts at index 0 and lists
// every node exactly once; Cost is the tour's travel time under the matrix.
type Tour struct {
	Order []int
	Cost  float64
}

// Solve requests an optimized tour for the matrix. Degenerate sizes are
// answered locally: zero or one node needs no solver, and two nodes have a
// single possible tour.
func (c *Client) Solve(ctx context.Context, matrix [][]float64) (*Tour, error) {
	switch len(matrix) {
	case 0:
		return &Tour{Order: []int{}}, nil
	case 1:
		return &Tour{Order: []int{0}}, nil
	case 2:
		// Open tour: the drive back is not part of the plan.
		return &Tour{Order: []int{0, 1}, Cost: matrix[0][1]}, nil
	}

	body, err := json.Marshal(solveRequest{Matrix: matrix})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/solve", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.External(err, "tour optimizer unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.External(nil, "tour optimizer returned status %d", resp.StatusCode)
	}
	var parsed solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apierrors.External(err, "decoding optimizer response")
	}

	if err := validateTour(parsed.Tour, len(matrix)); err != nil {
		return nil, apierrors.External(err, "optimizer returned an invalid tour")
	}
	cost := tourCost(parsed.Tour, matrix)
	// Trust the reported cost only when it agrees with the matrix; solvers
	// round, so allow a second of slack.
	if parsed.Cost != nil && math.Abs(*parsed.Cost-cost) <= 1 {
		cost = *parsed.Cost
	} else if parsed.Cost != nil {
		logging.FromContext(ctx).Debugf("optimizer cost %f disagrees with recomputed %f, using recomputed", *parsed.Cost, cost)
	}
	return &Tour{Order: parsed.Tour, Cost: cost}, nil
}

func validateTour(tour []int, n int) error {
	if len(tour) != n {
		return fmt.Errorf("tour visits %d nodes, want %d", len(tour), n)
	}
	if tour[0] != 0 {
		return fmt.Errorf("tour starts at node %d, want 0", tour[0])
	}
	seen := make([]bool, n)
	for _, node := range tour {
		if node < 0 || node >= n {
			return fmt.Errorf("tour references node %d outside [0,%d)", node, n)
		}
		if seen[node] {
			return fmt.Errorf("tour visits node %d twice", node)
		}
		seen[node] = true
	}
	return nil
}

func tourCost(tour []int, matrix [][]float64) float64 {
	var cost float64
	for i := range tour {
		cost += matrix[tour[i]][tour[(i+1)%len(tour)]]
	}
	return cost
}
