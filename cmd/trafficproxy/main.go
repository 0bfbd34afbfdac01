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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
	"knative.dev/pkg/logging"

	"github.com/kau-subtrack/subtrack-backend/pkg/operator/options"
	"github.com/kau-subtrack/subtrack-backend/pkg/trafficproxy"
)

func main() {
	_ = godotenv.Load()
	opts := options.NewTrafficProxy(flag.NewFlagSet("trafficproxy", flag.ExitOnError)).MustParse(os.Args[1:])

	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	ctx := logging.WithLogger(context.Background(), zapLogger.Sugar())
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := logging.FromContext(ctx)

	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		logger.Fatalf("loading timezone, %s", err)
	}

	mappings, err := trafficproxy.LoadMapping(opts.LinkMappingPath)
	if err != nil {
		logger.Fatalf("loading link mapping, %s", err)
	}
	logger.Infof("loaded %d link mappings from %s", len(mappings), opts.LinkMappingPath)

	table := trafficproxy.NewSpeedTable()
	harvester := trafficproxy.NewHarvester(opts.SeoulAPIKey, mappings, table, opts.UpdateInterval)
	rewriter := trafficproxy.NewRewriter(clock.RealClock{}, loc)
	proxy := trafficproxy.NewProxy(opts.UpstreamURL, table, rewriter)

	apiServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:     proxy.Router(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.MetricsPort),
		Handler: metricsMux,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		harvester.Run(ctx)
		return nil
	})
	group.Go(func() error {
		logger.Infof("traffic proxy listening on %s, upstream %s", apiServer.Addr, opts.UpstreamURL)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		return apiServer.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil {
		logger.Fatalf("traffic proxy exited, %s", err)
	}
}
