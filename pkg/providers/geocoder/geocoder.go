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

// Package geocoder resolves Korean street addresses to coordinates through
// the Kakao Local API, degrading through a fixed confidence ladder instead of
// failing: exact address match, keyword match, district representative point,
// city hall. A Geocode call never returns an error.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"knative.dev/pkg/logging"

	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
)

const (
	// Confidence levels for each rung of the resolution ladder.
	ConfidenceAddress  = 0.95
	ConfidenceKeyword  = 0.85
	ConfidenceDistrict = 0.5
	ConfidenceCityHall = 0.1
)

type Result struct {
	geo.Location
	CanonicalAddress string
	District         string
	Confidence       float64
}

type Provider struct {
	apiKey     string
	httpClient *http.Client
	cache      *cache.Cache

	// Overridable for tests.
	addressURL string
	keywordURL string
}

func NewProvider(apiKey string) *Provider {
	return &Provider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache.New(time.Hour, 10*time.Minute),
		addressURL: "https://dapi.kakao.com/v2/local/search/address.json",
		keywordURL: "https://dapi.kakao.com/v2/local/search/keyword.json",
	}
}

// WithEndpoints overrides the Kakao API endpoints.
func (p *Provider) WithEndpoints(addressURL, keywordURL string) *Provider {
	p.addressURL = addressURL
	p.keywordURL = keywordURL
	return p
}

type kakaoDocument struct {
	X           string `json:"x"`
	Y           string `json:"y"`
	AddressName string `json:"address_name"`
	Address     *struct {
		AddressName      string `json:"address_name"`
		Region2DepthName string `json:"region_2depth_name"`
	} `json:"address"`
	RoadAddress *struct {
		AddressName      string `json:"address_name"`
		Region2DepthName string `json:"region_2depth_name"`
	} `json:"road_address"`
}

type kakaoResponse struct {
	Documents []kakaoDocument `json:"documents"`
}

// Geocode resolves an address to a coordinate. It tries the address search
// first, then the keyword search, then the static district table, and finally
// city hall, tagging the result with the ladder rung's confidence. Results
// are cached by the raw address string.
func (p *Provider) Geocode(ctx context.Context, address string) Result {
	if cached, ok := p.cache.Get(address); ok {
		return cached.(Result)
	}
	result := p.resolve(ctx, address)
	p.cache.SetDefault(address, result)
	return result
}

func (p *Provider) resolve(ctx context.Context, address string) Result {
	if doc, err := p.search(ctx, p.addressURL, address); err == nil && doc != nil {
		return p.fromDocument(address, doc, ConfidenceAddress)
	} else if err != nil {
		logging.FromContext(ctx).Debugf("address search failed for %q, %s", address, err)
	}
	if doc, err := p.search(ctx, p.keywordURL, address); err == nil && doc != nil {
		return p.fromDocument(address, doc, ConfidenceKeyword)
	} else if err != nil {
		logging.FromContext(ctx).Debugf("keyword search failed for %q, %s", address, err)
	}
	loc, matched := geo.FallbackPoint(address)
	if matched {
		district, _ := geo.DistrictFromAddress(loc.Name)
		return Result{Location: loc, CanonicalAddress: address, District: district, Confidence: ConfidenceDistrict}
	}
	logging.FromContext(ctx).Warnf("no district recognized in %q, falling back to city hall", address)
	return Result{Location: loc, CanonicalAddress: address, District: "", Confidence: ConfidenceCityHall}
}

func (p *Provider) search(ctx context.Context, endpoint, query string) (*kakaoDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?query=%s", endpoint, url.QueryEscape(query)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("KakaoAK %s", p.apiKey))
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body kakaoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Documents) == 0 {
		return nil, nil
	}
	return &body.Documents[0], nil
}

func (p *Provider) fromDocument(address string, doc *kakaoDocument, confidence float64) Result {
	var lat, lon float64
	fmt.Sscanf(doc.Y, "%f", &lat)
	fmt.Sscanf(doc.X, "%f", &lon)

	canonical := doc.AddressName
	district := ""
	if doc.Address != nil {
		district = doc.Address.Region2DepthName
		if canonical == "" {
			canonical = doc.Address.AddressName
		}
	}
	if district == "" && doc.RoadAddress != nil {
		district = doc.RoadAddress.Region2DepthName
		if canonical == "" {
			canonical = doc.RoadAddress.AddressName
		}
	}
	if district == "" {
		district, _ = geo.DistrictFromAddress(canonical)
	}
	if district == "" {
		district, _ = geo.DistrictFromAddress(address)
	}
	if canonical == "" {
		canonical = address
	}
	return Result{
		Location:         geo.Location{Coordinate: geo.Coordinate{Lat: lat, Lon: lon}, Name: canonical},
		CanonicalAddress: canonical,
		District:         district,
		Confidence:       confidence,
	}
}

// District extracts the district for an address without a full geocode,
// preferring the token scan and consulting the API only when the address
// carries no recognizable district token.
func (p *Provider) District(ctx context.Context, address string) string {
	if district, ok := geo.DistrictFromAddress(address); ok {
		return district
	}
	return p.Geocode(ctx, address).District
}
