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

// Package options holds each process's configuration, sourced from flags
// with environment variable defaults.
package options

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/kau-subtrack/subtrack-backend/pkg/utils/env"
)

// Dispatcher configures the dispatcher API process.
type Dispatcher struct {
	*flag.FlagSet

	Host          string
	Port          int
	JWTSecret     string
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPass     string
	MySQLDB       string
	ProxyURL      string
	LKHServiceURL string
	KakaoAPIKey   string
	KafkaBrokers  string
	MetricsPort   int
}

func NewDispatcher(fs *flag.FlagSet) *Dispatcher {
	o := &Dispatcher{FlagSet: fs}
	fs.StringVar(&o.Host, "host", env.WithDefaultString("HOST", "0.0.0.0"), "Listen address.")
	fs.IntVar(&o.Port, "port", env.WithDefaultInt("PORT", 5000), "Listen port.")
	fs.StringVar(&o.JWTSecret, "jwt-secret", env.WithDefaultString("JWT_SECRET", ""), "HS256 signing secret for driver tokens.")
	fs.StringVar(&o.MySQLHost, "mysql-host", env.WithDefaultString("MYSQL_HOST", "localhost"), "MySQL host.")
	fs.IntVar(&o.MySQLPort, "mysql-port", env.WithDefaultInt("MYSQL_PORT", 3306), "MySQL port.")
	fs.StringVar(&o.MySQLUser, "mysql-user", env.WithDefaultString("MYSQL_USER", "root"), "MySQL user.")
	fs.StringVar(&o.MySQLPass, "mysql-password", env.WithDefaultString("MYSQL_PASSWORD", ""), "MySQL password.")
	fs.StringVar(&o.MySQLDB, "mysql-database", env.WithDefaultString("MYSQL_DATABASE", "subtrack"), "MySQL database name.")
	fs.StringVar(&o.ProxyURL, "traffic-proxy-url", env.WithDefaultString("TRAFFIC_PROXY_URL",
		fmt.Sprintf("http://%s:%d", env.WithDefaultString("VALHALLA_HOST", "localhost"), env.WithDefaultInt("VALHALLA_PORT", 8003))),
		"Base URL of the traffic proxy fronting the routing engine.")
	fs.StringVar(&o.LKHServiceURL, "lkh-service-url", env.WithDefaultString("LKH_SERVICE_URL", "http://localhost:5001"), "Base URL of the tour optimization service.")
	fs.StringVar(&o.KakaoAPIKey, "kakao-api-key", env.WithDefaultString("KAKAO_API_KEY", ""), "Kakao Local API key.")
	fs.StringVar(&o.KafkaBrokers, "kafka-brokers", env.WithDefaultString("KAFKA_BROKERS", ""), "Comma-separated Kafka brokers; empty disables event publishing.")
	fs.IntVar(&o.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 9090), "Prometheus metrics port.")
	return o
}

func (o *Dispatcher) Validate() error {
	var err error
	if o.JWTSecret == "" {
		err = multierr.Append(err, fmt.Errorf("jwt-secret is required"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port %d out of range", o.Port))
	}
	if o.MySQLHost == "" {
		err = multierr.Append(err, fmt.Errorf("mysql-host is required"))
	}
	return err
}

func (o *Dispatcher) MustParse(args []string) *Dispatcher {
	mustParse(o.FlagSet, args, o.Validate)
	return o
}

// DSN builds the MySQL connection string. parseTime is required so DATETIME
// columns scan into time.Time.
func (o *Dispatcher) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		o.MySQLUser, o.MySQLPass, o.MySQLHost, o.MySQLPort, o.MySQLDB)
}

// TrafficProxy configures the traffic proxy process.
type TrafficProxy struct {
	*flag.FlagSet

	Host            string
	Port            int
	UpstreamURL     string
	SeoulAPIKey     string
	LinkMappingPath string
	UpdateInterval  time.Duration
	MetricsPort     int
}

func NewTrafficProxy(fs *flag.FlagSet) *TrafficProxy {
	o := &TrafficProxy{FlagSet: fs}
	fs.StringVar(&o.Host, "host", env.WithDefaultString("HOST", "0.0.0.0"), "Listen address.")
	fs.IntVar(&o.Port, "port", env.WithDefaultInt("PORT", 8003), "Listen port.")
	fs.StringVar(&o.UpstreamURL, "valhalla-url", env.WithDefaultString("VALHALLA_URL",
		fmt.Sprintf("http://%s:%d", env.WithDefaultString("VALHALLA_HOST", "localhost"), env.WithDefaultInt("VALHALLA_PORT", 8002))),
		"Base URL of the routing engine.")
	fs.StringVar(&o.SeoulAPIKey, "seoul-api-key", env.WithDefaultString("SEOUL_API_KEY", ""), "Seoul open data API key for the speed feed.")
	fs.StringVar(&o.LinkMappingPath, "link-mapping-file", env.WithDefaultString("LINK_MAPPING_FILE", "link_mapping.csv"), "CSV mapping of service link ids to OSM way ids.")
	fs.DurationVar(&o.UpdateInterval, "traffic-update-interval", env.WithDefaultDuration("TRAFFIC_UPDATE_INTERVAL", 300*time.Second), "Harvest sweep cadence.")
	fs.IntVar(&o.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 9091), "Prometheus metrics port.")
	return o
}

func (o *TrafficProxy) Validate() error {
	var err error
	if o.SeoulAPIKey == "" {
		err = multierr.Append(err, fmt.Errorf("seoul-api-key is required"))
	}
	if o.UpdateInterval < time.Second {
		err = multierr.Append(err, fmt.Errorf("traffic-update-interval %s too small", o.UpdateInterval))
	}
	return err
}

func (o *TrafficProxy) MustParse(args []string) *TrafficProxy {
	mustParse(o.FlagSet, args, o.Validate)
	return o
}

// Solver configures the tour optimization service.
type Solver struct {
	*flag.FlagSet

	Host        string
	Port        int
	Executable  string
	MetricsPort int
}

func NewSolver(fs *flag.FlagSet) *Solver {
	o := &Solver{FlagSet: fs}
	fs.StringVar(&o.Host, "host", env.WithDefaultString("HOST", "0.0.0.0"), "Listen address.")
	fs.IntVar(&o.Port, "port", env.WithDefaultInt("PORT", 5001), "Listen port.")
	fs.StringVar(&o.Executable, "lkh-executable", env.WithDefaultString("LKH_EXECUTABLE", "/usr/local/bin/LKH"), "Path to the LKH binary.")
	fs.IntVar(&o.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 9092), "Prometheus metrics port.")
	return o
}

func (o *Solver) Validate() error {
	if o.Executable == "" {
		return fmt.Errorf("lkh-executable is required")
	}
	return nil
}

func (o *Solver) MustParse(args []string) *Solver {
	mustParse(o.FlagSet, args, o.Validate)
	return o
}

func mustParse(fs *flag.FlagSet, args []string, validate func() error) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
