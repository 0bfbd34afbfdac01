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

// Package trafficproxy fronts the routing engine: requests pass through
// verbatim, while route and matrix responses get their travel times rewritten
// from a periodically harvested live speed table.
package trafficproxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"knative.dev/pkg/logging"
)

type Proxy struct {
	upstream   string
	table      *SpeedTable
	rewriter   *Rewriter
	httpClient *http.Client
}

func NewProxy(upstream string, table *SpeedTable, rewriter *Rewriter) *Proxy {
	return &Proxy{
		upstream:   upstream,
		table:      table,
		rewriter:   rewriter,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// Router builds the gin handler tree. Unknown paths fall through to a
// verbatim passthrough so the proxy stays transparent for endpoints it does
// not model.
func (p *Proxy) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// The engine has no /matrix endpoint; the proxy serves it and forwards
	// upstream as /sources_to_targets.
	router.POST("/route", p.handleRewritten("route", "/route", p.rewriter.RewriteRoute))
	router.POST("/matrix", p.handleRewritten("matrix", "/sources_to_targets", p.rewriter.RewriteMatrix))
	router.POST("/sources_to_targets", p.handlePassthrough)
	router.GET("/status", p.handlePassthrough)
	router.GET("/search", p.handlePassthrough)
	router.GET("/health", p.handleHealth)
	router.GET("/traffic-debug", p.handleTrafficDebug)
	router.NoRoute(p.handlePassthrough)
	return router
}

// liveTrafficRequested reads costing_options[costing].use_live_traffic from
// the request body.
func liveTrafficRequested(requestBody []byte) bool {
	var parsed struct {
		Costing        string                     `json:"costing"`
		CostingOptions map[string]json.RawMessage `json:"costing_options"`
	}
	if err := json.Unmarshal(requestBody, &parsed); err != nil {
		return false
	}
	raw, ok := parsed.CostingOptions[parsed.Costing]
	if !ok {
		return false
	}
	var opts struct {
		UseLiveTraffic bool `json:"use_live_traffic"`
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return false
	}
	return opts.UseLiveTraffic
}

func (p *Proxy) forward(c *gin.Context, upstreamPath string, requestBody []byte) (int, http.Header, []byte, error) {
	url := fmt.Sprintf("%s%s", p.upstream, upstreamPath)
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, bytes.NewReader(requestBody))
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header = c.Request.Header.Clone()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

// handleRewritten forwards the request, then applies the rewrite to the JSON
// body when the caller opted into live traffic. A failed forward returns
// 502; a body the rewrite cannot parse is returned verbatim.
func (p *Proxy) handleRewritten(endpoint, upstreamPath string, rewrite func(map[string]any, *Snapshot) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}
		status, _, body, err := p.forward(c, upstreamPath, requestBody)
		if err != nil {
			logging.FromContext(c.Request.Context()).Errorf("forwarding %s request, %s", endpoint, err)
			ProxiedRequests.WithLabelValues(endpoint, "error").Inc()
			c.JSON(http.StatusBadGateway, gin.H{"error": "routing engine unreachable"})
			return
		}
		ProxiedRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		if status != http.StatusOK {
			c.Data(status, "application/json", body)
			return
		}
		if !liveTrafficRequested(requestBody) {
			RewriteCount.WithLabelValues(endpoint, "not_requested").Inc()
			c.Data(status, "application/json", body)
			return
		}

		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err != nil {
			RewriteCount.WithLabelValues(endpoint, "unparseable").Inc()
			c.Data(status, "application/json", body)
			return
		}
		if rewrite(parsed, p.table.Load()) {
			RewriteCount.WithLabelValues(endpoint, "rewritten").Inc()
		} else {
			RewriteCount.WithLabelValues(endpoint, "passthrough").Inc()
		}
		c.JSON(status, parsed)
	}
}

func (p *Proxy) handlePassthrough(c *gin.Context) {
	requestBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}
	status, header, body, err := p.forward(c, c.Request.URL.RequestURI(), requestBody)
	if err != nil {
		ProxiedRequests.WithLabelValues("passthrough", "error").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "routing engine unreachable"})
		return
	}
	ProxiedRequests.WithLabelValues("passthrough", strconv.Itoa(status)).Inc()
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(status, contentType, body)
}

// handleHealth reports the proxy's own state plus snapshot statistics, and
// is served locally so health stays observable when the engine is down.
func (p *Proxy) handleHealth(c *gin.Context) {
	snapshot := p.table.Load()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"traffic_links": len(snapshot.Speeds),
		"average_speed": snapshot.AverageSpeed(),
		"fetched_at":    snapshot.FetchedAt,
	})
}

func (p *Proxy) handleTrafficDebug(c *gin.Context) {
	snapshot := p.table.Load()
	speeds := make(map[string]float64, len(snapshot.Speeds))
	for wayID, speed := range snapshot.Speeds {
		speeds[strconv.FormatInt(wayID, 10)] = speed
	}
	c.JSON(http.StatusOK, gin.H{
		"fetched_at":    snapshot.FetchedAt,
		"link_count":    len(snapshot.Speeds),
		"average_speed": snapshot.AverageSpeed(),
		"slow_ratio":    snapshot.SlowRatio(slowThreshold),
		"speeds":        speeds,
	})
}
