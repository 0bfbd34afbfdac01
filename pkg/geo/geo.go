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

// Package geo holds the fixed geography of the service area: the hub, the
// per-district representative coordinates used when geocoding fails, and the
// district-to-zone grouping used for analytics.
package geo

import (
	"strings"
)

// DistrictSuffix terminates every district name in the service area ("구").
const DistrictSuffix = "구"

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a named coordinate.
type Location struct {
	Coordinate
	Name string `json:"name"`
}

// Hub is the fixed origin and terminus for all drivers.
var Hub = Location{Coordinate: Coordinate{Lat: 37.5299, Lon: 126.9648}, Name: "용산역"}

// CityHall is the ultimate geocoding fallback.
var CityHall = Location{Coordinate: Coordinate{Lat: 37.5665, Lon: 126.9780}, Name: "서울시청"}

// districtPoints maps each district to a representative coordinate. Order is
// significant: fallback scanning walks the list front to back so that a given
// address always resolves to the same district.
var districtPoints = []struct {
	District string
	Location Location
}{
	{"강남구", Location{Coordinate{37.5172, 127.0473}, "강남구 역삼동"}},
	{"서초구", Location{Coordinate{37.4837, 127.0324}, "서초구 서초동"}},
	{"송파구", Location{Coordinate{37.5145, 127.1059}, "송파구 잠실동"}},
	{"강동구", Location{Coordinate{37.5301, 127.1238}, "강동구 천호동"}},
	{"성동구", Location{Coordinate{37.5634, 127.0369}, "성동구 성수동"}},
	{"광진구", Location{Coordinate{37.5384, 127.0822}, "광진구 광장동"}},
	{"동대문구", Location{Coordinate{37.5744, 127.0396}, "동대문구 전농동"}},
	{"중랑구", Location{Coordinate{37.6063, 127.0927}, "중랑구 면목동"}},
	{"종로구", Location{Coordinate{37.5735, 126.9790}, "종로구 종로"}},
	{"중구", Location{Coordinate{37.5641, 126.9979}, "중구 명동"}},
	{"용산구", Location{Coordinate{37.5311, 126.9810}, "용산구 한강로"}},
	{"성북구", Location{Coordinate{37.5894, 127.0167}, "성북구 성북동"}},
	{"강북구", Location{Coordinate{37.6396, 127.0253}, "강북구 번동"}},
	{"도봉구", Location{Coordinate{37.6687, 127.0472}, "도봉구 방학동"}},
	{"노원구", Location{Coordinate{37.6543, 127.0568}, "노원구 상계동"}},
	{"은평구", Location{Coordinate{37.6176, 126.9269}, "은평구 불광동"}},
	{"서대문구", Location{Coordinate{37.5791, 126.9368}, "서대문구 신촌동"}},
	{"마포구", Location{Coordinate{37.5638, 126.9084}, "마포구 공덕동"}},
	{"양천구", Location{Coordinate{37.5170, 126.8667}, "양천구 목동"}},
	{"강서구", Location{Coordinate{37.5509, 126.8496}, "강서구 화곡동"}},
	{"구로구", Location{Coordinate{37.4954, 126.8877}, "구로구 구로동"}},
	{"금천구", Location{Coordinate{37.4564, 126.8955}, "금천구 가산동"}},
	{"영등포구", Location{Coordinate{37.5263, 126.8966}, "영등포구 영등포동"}},
	{"동작구", Location{Coordinate{37.5124, 126.9393}, "동작구 상도동"}},
	{"관악구", Location{Coordinate{37.4784, 126.9516}, "관악구 봉천동"}},
}

var districtZones = map[string]string{
	"은평구": "강북서부", "서대문구": "강북서부", "마포구": "강북서부",
	"도봉구": "강북동부", "노원구": "강북동부", "강북구": "강북동부", "성북구": "강북동부",
	"종로구": "강북중부", "중구": "강북중부", "용산구": "강북중부",
	"강서구": "강남서부", "양천구": "강남서부", "구로구": "강남서부",
	"영등포구": "강남서부", "동작구": "강남서부", "관악구": "강남서부", "금천구": "강남서부",
	"성동구": "강남동부", "광진구": "강남동부", "동대문구": "강남동부", "중랑구": "강남동부",
	"강동구": "강남동부", "송파구": "강남동부", "강남구": "강남동부", "서초구": "강남동부",
}

// DistrictFromAddress returns the first whitespace-delimited token of the
// address that ends with the district suffix.
func DistrictFromAddress(address string) (string, bool) {
	for _, part := range strings.Fields(address) {
		if strings.HasSuffix(part, DistrictSuffix) {
			return part, true
		}
	}
	return "", false
}

// FallbackPoint resolves an address to a representative district coordinate
// when the geocoder is unavailable. It scans the address for a known district
// name; addresses with no recognizable district resolve to city hall.
// The returned bool reports whether a district matched.
func FallbackPoint(address string) (Location, bool) {
	for _, dp := range districtPoints {
		if strings.Contains(address, dp.District) {
			return dp.Location, true
		}
	}
	return CityHall, false
}

// ZoneForDistrict maps a district to its coarse zone, or "Unknown".
func ZoneForDistrict(district string) string {
	if zone, ok := districtZones[district]; ok {
		return zone
	}
	return "Unknown"
}

// Districts returns all known district names in scan order.
func Districts() []string {
	out := make([]string, 0, len(districtPoints))
	for _, dp := range districtPoints {
		out = append(out, dp.District)
	}
	return out
}
