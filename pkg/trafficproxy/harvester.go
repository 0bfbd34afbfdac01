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
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"k8s.io/utils/clock"
	"knative.dev/pkg/logging"
)

const (
	// fetchPacing spaces per-link requests so the upstream API is never
	// hammered.
	fetchPacing  = 50 * time.Millisecond
	fetchTimeout = 5 * time.Second
)

// LinkMapping pairs a city traffic service link with the OSM way the routing
// graph uses.
type LinkMapping struct {
	ServiceLinkID int64
	OSMWayID      int64
}

// LoadMapping reads the service-link to OSM-way CSV. Rows with a blank or
// non-numeric id in either column are skipped; fractional ids are truncated.
func LoadMapping(path string) ([]LinkMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening link mapping, %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading link mapping, %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("link mapping %s is empty", path)
	}

	header := records[0]
	serviceCol, osmCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "service_link_id":
			serviceCol = i
		case "osm_way_id":
			osmCol = i
		}
	}
	if serviceCol < 0 || osmCol < 0 {
		return nil, fmt.Errorf("link mapping %s is missing service_link_id or osm_way_id columns", path)
	}

	var mappings []LinkMapping
	for _, record := range records[1:] {
		if serviceCol >= len(record) || osmCol >= len(record) {
			continue
		}
		serviceID, ok := parseID(record[serviceCol])
		if !ok {
			continue
		}
		osmID, ok := parseID(record[osmCol])
		if !ok {
			continue
		}
		mappings = append(mappings, LinkMapping{ServiceLinkID: serviceID, OSMWayID: osmID})
	}
	return mappings, nil
}

// parseID accepts integer or float-formatted ids, truncating the fraction.
// Blank and NaN cells are rejected.
func parseID(cell string) (int64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return 0, false
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

type trafficInfoResponse struct {
	Result struct {
		Code string `xml:"CODE"`
	} `xml:"RESULT"`
	Rows []struct {
		LinkID string `xml:"link_id"`
		Speed  string `xml:"prcs_spd"`
	} `xml:"row"`
}

// Harvester periodically sweeps the city traffic API for every mapped link
// and publishes the result as one atomic snapshot.
type Harvester struct {
	apiKey     string
	baseURL    string
	mappings   []LinkMapping
	table      *SpeedTable
	interval   time.Duration
	httpClient *http.Client
	clock      clock.Clock
}

func NewHarvester(apiKey string, mappings []LinkMapping, table *SpeedTable, interval time.Duration) *Harvester {
	return &Harvester{
		apiKey:     apiKey,
		baseURL:    "http://openapi.seoul.go.kr:8088",
		mappings:   mappings,
		table:      table,
		interval:   interval,
		httpClient: &http.Client{Timeout: fetchTimeout},
		clock:      clock.RealClock{},
	}
}

// WithBaseURL overrides the traffic API host.
func (h *Harvester) WithBaseURL(baseURL string) *Harvester {
	h.baseURL = baseURL
	return h
}

// WithClock overrides the clock.
func (h *Harvester) WithClock(c clock.Clock) *Harvester {
	h.clock = c
	return h
}

// Run sweeps immediately, then on every interval tick until the context is
// cancelled.
func (h *Harvester) Run(ctx context.Context) {
	h.Sweep(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep fetches every mapped link's current speed and publishes the result.
// Individual link failures are logged and skipped; the snapshot is published
// even when partial so stale data ages out rather than lingering.
func (h *Harvester) Sweep(ctx context.Context) {
	start := h.clock.Now()
	speeds := make(map[int64]float64, len(h.mappings))
	failures := 0
	for _, m := range h.mappings {
		speed, err := h.fetchLinkSpeed(ctx, m.ServiceLinkID)
		if err != nil {
			failures++
			logging.FromContext(ctx).Debugf("fetching speed for link %d, %s", m.ServiceLinkID, err)
		} else {
			speeds[m.OSMWayID] = speed
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(fetchPacing):
		}
	}
	h.table.Publish(speeds, h.clock.Now())
	LinksHarvested.Set(float64(len(speeds)))
	HarvestDuration.Observe(h.clock.Since(start).Seconds())
	logging.FromContext(ctx).Infof("harvested %d link speeds (%d failures) in %s",
		len(speeds), failures, h.clock.Since(start))
}

func (h *Harvester) fetchLinkSpeed(ctx context.Context, linkID int64) (float64, error) {
	url := fmt.Sprintf("%s/%s/xml/TrafficInfo/1/1/%d", h.baseURL, h.apiKey, linkID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("traffic API returned status %d", resp.StatusCode)
	}
	var parsed trafficInfoResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decoding traffic response, %w", err)
	}
	if parsed.Result.Code != "INFO-000" {
		return 0, fmt.Errorf("traffic API result code %s", parsed.Result.Code)
	}
	if len(parsed.Rows) == 0 {
		return 0, fmt.Errorf("no rows for link %d", linkID)
	}
	speed, err := strconv.ParseFloat(strings.TrimSpace(parsed.Rows[0].Speed), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed speed %q", parsed.Rows[0].Speed)
	}
	return speed, nil
}
