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

package routing

import (
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
)

// RouteResponse is the subset of the Valhalla turn-by-turn response the
// dispatcher consumes, with the extracted waypoints attached alongside.
type RouteResponse struct {
	Trip        *Trip            `json:"trip"`
	Waypoints   []Waypoint       `json:"waypoints,omitempty"`
	Coordinates []geo.Coordinate `json:"coordinates,omitempty"`
}

type Trip struct {
	Legs    []Leg       `json:"legs"`
	Summary TripSummary `json:"summary"`
	Status  int         `json:"status"`
	Units   string      `json:"units"`
}

type TripSummary struct {
	Time   float64 `json:"time"`
	Length float64 `json:"length"`
}

type Leg struct {
	Maneuvers []Maneuver  `json:"maneuvers"`
	Shape     string      `json:"shape"`
	Summary   TripSummary `json:"summary"`
}

type Maneuver struct {
	Type            int      `json:"type"`
	Instruction     string   `json:"instruction"`
	StreetNames     []string `json:"street_names,omitempty"`
	Time            float64  `json:"time"`
	Length          float64  `json:"length"`
	BeginShapeIndex int      `json:"begin_shape_index"`
	EndShapeIndex   int      `json:"end_shape_index"`
}

// Waypoint is one maneuver's begin point with its guidance strings.
type Waypoint struct {
	geo.Coordinate
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

type matrixRequest struct {
	Sources        []matrixLocation `json:"sources"`
	Targets        []matrixLocation `json:"targets"`
	Costing        string           `json:"costing"`
	CostingOptions map[string]any   `json:"costing_options,omitempty"`
}

type matrixLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type matrixResponse struct {
	SourcesToTargets [][]matrixCell `json:"sources_to_targets"`
}

type matrixCell struct {
	Time     *float64 `json:"time"`
	Distance *float64 `json:"distance"`
}
