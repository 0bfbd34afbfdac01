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

package trafficproxy

import (
	"math"
	"strings"
	"time"

	"k8s.io/utils/clock"
)

// Rewrite bands and clamps. Responses are decoded as generic JSON and
// mutated in place so fields the proxy does not model pass through
// untouched.
const (
	// Snapshot speeds outside [10,80] km/h are sensor noise and excluded
	// from the congestion statistics.
	usableMinSpeed = 10.0
	usableMaxSpeed = 80.0
	slowThreshold  = 25.0

	effectiveMinSpeed = 8.0
	effectiveMaxSpeed = 80.0

	routeMinBand = 0.3
	routeMaxBand = 3.0

	matrixMinBand = 0.5
	matrixMaxBand = 2.0
)

// Rewriter mutates routing-engine responses with live-traffic travel times.
// The clock and location feed the time-of-day factor.
type Rewriter struct {
	clock clock.Clock
	loc   *time.Location
}

func NewRewriter(c clock.Clock, loc *time.Location) *Rewriter {
	return &Rewriter{clock: c, loc: loc}
}

// usableSpeeds filters the snapshot to plausible link speeds.
func usableSpeeds(s *Snapshot) []float64 {
	var speeds []float64
	for _, v := range s.Speeds {
		if v >= usableMinSpeed && v <= usableMaxSpeed {
			speeds = append(speeds, v)
		}
	}
	return speeds
}

// congestionFactor grades overall congestion from the fraction of slow
// links. Free flow rewards route times with a slight speedup; the matrix
// rewrite stays neutral at best.
func congestionFactor(speeds []float64, freeFlowBonus bool) float64 {
	slow := 0
	for _, v := range speeds {
		if v < slowThreshold {
			slow++
		}
	}
	ratio := float64(slow) / float64(len(speeds))
	switch {
	case ratio > 0.5:
		return 0.7
	case ratio > 0.3:
		return 0.85
	default:
		if freeFlowBonus {
			return 1.1
		}
		return 1.0
	}
}

// baseSpeed estimates free-flow speed (km/h) from segment length, bumped by
// street-name road-class keywords.
func baseSpeed(length float64, streetText string) float64 {
	var speed float64
	switch {
	case length >= 1.5:
		speed = 50
	case length >= 0.5:
		speed = 35
	default:
		speed = 25
	}
	switch {
	case containsAny(streetText, "고속도로", "순환로", "대로"):
		speed = math.Max(speed, 40)
	case strings.Contains(streetText, "로"):
		speed = math.Max(speed, 30)
	case containsAny(streetText, "길", "동"):
		speed = math.Min(speed, 30)
	}
	return speed
}

// areaFactor adjusts for chronically slow or fast regions recognized by
// street-name keywords.
func areaFactor(streetText string) float64 {
	switch {
	case containsAny(streetText, "강남", "테헤란", "서초", "역삼"):
		return 0.75
	case containsAny(streetText, "종로", "을지로", "명동", "세종대로", "중구"):
		return 0.8
	case containsAny(streetText, "강변북로", "올림픽대로", "한강대로"):
		return 1.3
	case containsAny(streetText, "외곽순환", "강서", "노원", "도봉"):
		return 1.15
	default:
		return 1.0
	}
}

// timeOfDayFactor covers rush hours, lunch, and the empty night roads.
func (r *Rewriter) timeOfDayFactor() float64 {
	hour := r.clock.Now().In(r.loc).Hour()
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 18 && hour <= 20):
		return 0.6
	case hour >= 12 && hour <= 14:
		return 0.8
	case hour >= 22 || hour <= 6:
		return 1.4
	default:
		return 1.0
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// effectiveSpeed combines the four factors for one maneuver, clamped to
// plausible urban driving speeds.
func (r *Rewriter) effectiveSpeed(length float64, streetNames []string, congestion float64) float64 {
	streetText := strings.ToLower(strings.Join(streetNames, " "))
	speed := baseSpeed(length, streetText) * congestion * areaFactor(streetText) * r.timeOfDayFactor()
	return math.Min(effectiveMaxSpeed, math.Max(effectiveMinSpeed, speed))
}

// RewriteRoute recomputes each maneuver's time from its length at the
// live effective speed. A rewrite is accepted per maneuver only when the new
// time stays within a plausibility band of the original; out-of-band values
// keep the upstream time. Leg and trip summaries are re-summed and the trip
// is annotated with coverage markers.
func (r *Rewriter) RewriteRoute(body map[string]any, s *Snapshot) bool {
	trip, ok := body["trip"].(map[string]any)
	if !ok {
		return false
	}
	speeds := usableSpeeds(s)
	if len(speeds) == 0 {
		trip["has_traffic"] = false
		trip["traffic_link_count"] = len(s.Speeds)
		return false
	}
	congestion := congestionFactor(speeds, true)

	applied, total := 0, 0
	var tripOriginalTime, tripNewTime float64
	legs, _ := trip["legs"].([]any)
	for _, rawLeg := range legs {
		leg, ok := rawLeg.(map[string]any)
		if !ok {
			continue
		}
		var legOriginalTime, legNewTime float64
		maneuvers, _ := leg["maneuvers"].([]any)
		for _, rawManeuver := range maneuvers {
			maneuver, ok := rawManeuver.(map[string]any)
			if !ok {
				continue
			}
			total++
			originalTime, _ := maneuver["time"].(float64)
			length, _ := maneuver["length"].(float64)
			legOriginalTime += originalTime
			if length <= 0 || originalTime <= 0 {
				legNewTime += originalTime
				continue
			}
			speed := r.effectiveSpeed(length, streetNames(maneuver), congestion)
			newTime := length / speed * 3600
			ratio := newTime / originalTime
			if ratio < routeMinBand || ratio > routeMaxBand {
				legNewTime += originalTime
				continue
			}
			maneuver["time"] = newTime
			maneuver["original_time"] = originalTime
			maneuver["real_speed_applied"] = speed
			legNewTime += newTime
			applied++
		}
		if summary, ok := leg["summary"].(map[string]any); ok {
			summary["original_time"] = legOriginalTime
			summary["time"] = legNewTime
		}
		tripOriginalTime += legOriginalTime
		tripNewTime += legNewTime
	}
	if summary, ok := trip["summary"].(map[string]any); ok {
		summary["original_time"] = tripOriginalTime
		summary["time"] = tripNewTime
	}
	trip["has_traffic"] = true
	trip["traffic_link_count"] = len(s.Speeds)
	trip["applied_segments"] = applied
	trip["total_segments"] = total
	return applied > 0
}

func streetNames(maneuver map[string]any) []string {
	raw, _ := maneuver["street_names"].([]any)
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if name, ok := v.(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// RewriteMatrix recomputes matrix cell times from each cell's distance at a
// distance-tiered expected speed under the congestion factor. Cells without
// a distance, and rewrites outside the acceptance band, pass through.
func (r *Rewriter) RewriteMatrix(body map[string]any, s *Snapshot) bool {
	speeds := usableSpeeds(s)
	if len(speeds) == 0 {
		return false
	}
	factor := congestionFactor(speeds, false)
	rows, ok := body["sources_to_targets"].([]any)
	if !ok {
		return false
	}
	changed := false
	for _, rawRow := range rows {
		row, ok := rawRow.([]any)
		if !ok {
			continue
		}
		for _, rawCell := range row {
			cell, ok := rawCell.(map[string]any)
			if !ok {
				continue
			}
			distance, ok := cell["distance"].(float64)
			if !ok || distance <= 0 {
				continue
			}
			originalTime, ok := cell["time"].(float64)
			if !ok || originalTime <= 0 {
				continue
			}
			expectedSpeed := tieredSpeed(distance) * factor
			newTime := distance / expectedSpeed * 3600
			ratio := newTime / originalTime
			if ratio < matrixMinBand || ratio > matrixMaxBand {
				continue
			}
			cell["time"] = newTime
			cell["original_time"] = originalTime
			cell["applied_speed"] = expectedSpeed
			cell["traffic_applied"] = true
			changed = true
		}
	}
	return changed
}

// tieredSpeed estimates expected speed (km/h) for a hop of the given
// distance (km): longer hops run on faster roads.
func tieredSpeed(distance float64) float64 {
	switch {
	case distance >= 5:
		return 45
	case distance >= 2:
		return 35
	default:
		return 25
	}
}
