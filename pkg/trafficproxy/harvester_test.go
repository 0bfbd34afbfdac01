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
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadMapping", func() {
	var dir string
	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(content string) string {
		path := filepath.Join(dir, "mapping.csv")
		Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())
		return path
	}

	It("should locate the id columns by header name", func() {
		path := write("road_name,service_link_id,osm_way_id\n한강대로,1220001700,521766182\n테헤란로,1220001800,521766183\n")
		mappings, err := LoadMapping(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(Equal([]LinkMapping{
			{ServiceLinkID: 1220001700, OSMWayID: 521766182},
			{ServiceLinkID: 1220001800, OSMWayID: 521766183},
		}))
	})

	It("should truncate float-formatted ids and skip blanks and NaN", func() {
		path := write("service_link_id,osm_way_id\n1220001700.0,521766182.0\n,521766183\n1220001900,NaN\n")
		mappings, err := LoadMapping(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(Equal([]LinkMapping{
			{ServiceLinkID: 1220001700, OSMWayID: 521766182},
		}))
	})

	It("should reject a file without the expected columns", func() {
		path := write("a,b\n1,2\n")
		_, err := LoadMapping(path)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Sweep", func() {
	trafficXML := func(code string, linkID int64, speed string) string {
		return fmt.Sprintf(
			"<TrafficInfo><RESULT><CODE>%s</CODE></RESULT><row><link_id>%d</link_id><prcs_spd>%s</prcs_spd></row></TrafficInfo>",
			code, linkID, speed)
	}

	It("should publish a snapshot keyed by OSM way id, skipping failed links", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/test-key/xml/TrafficInfo/1/1/100":
				fmt.Fprint(w, trafficXML("INFO-000", 100, "42.5"))
			case r.URL.Path == "/test-key/xml/TrafficInfo/1/1/200":
				fmt.Fprint(w, trafficXML("INFO-200", 200, ""))
			default:
				fmt.Fprint(w, trafficXML("INFO-000", 300, "31.0"))
			}
		}))
		defer server.Close()

		table := NewSpeedTable()
		harvester := NewHarvester("test-key", []LinkMapping{
			{ServiceLinkID: 100, OSMWayID: 9100},
			{ServiceLinkID: 200, OSMWayID: 9200},
			{ServiceLinkID: 300, OSMWayID: 9300},
		}, table, time.Minute).WithBaseURL(server.URL)

		harvester.Sweep(context.Background())

		snapshot := table.Load()
		Expect(snapshot.Speeds).To(Equal(map[int64]float64{9100: 42.5, 9300: 31.0}))
		Expect(snapshot.FetchedAt).ToNot(BeZero())
	})

	It("should publish an empty snapshot when every link fails", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		table := NewSpeedTable()
		table.Publish(map[int64]float64{9100: 50}, time.Now())
		harvester := NewHarvester("test-key", []LinkMapping{
			{ServiceLinkID: 100, OSMWayID: 9100},
		}, table, time.Minute).WithBaseURL(server.URL)

		harvester.Sweep(context.Background())
		Expect(table.Load().Speeds).To(BeEmpty())
	})
})

var _ = Describe("Snapshot", func() {
	It("should compute average and slow ratio", func() {
		s := &Snapshot{Speeds: map[int64]float64{1: 20, 2: 40, 3: 60}}
		Expect(s.AverageSpeed()).To(Equal(40.0))
		Expect(s.SlowRatio(25)).To(BeNumerically("~", 1.0/3.0, 1e-9))
	})
	It("should stay defined when empty", func() {
		s := &Snapshot{}
		Expect(s.AverageSpeed()).To(Equal(0.0))
		Expect(s.SlowRatio(25)).To(Equal(0.0))
	})
})
