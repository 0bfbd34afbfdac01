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
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"knative.dev/pkg/logging"

	"github.com/kau-subtrack/subtrack-backend/pkg/controllers"
	"github.com/kau-subtrack/subtrack-backend/pkg/dispatch"
	"github.com/kau-subtrack/subtrack-backend/pkg/events"
	"github.com/kau-subtrack/subtrack-backend/pkg/operator/options"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/geocoder"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/optimizer"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/routing"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

func main() {
	_ = godotenv.Load()
	opts := options.NewDispatcher(flag.NewFlagSet("dispatcher", flag.ExitOnError)).MustParse(os.Args[1:])

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

	db, err := sql.Open("mysql", opts.DSN())
	if err != nil {
		logger.Fatalf("opening database, %s", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)

	var brokers []string
	if opts.KafkaBrokers != "" {
		brokers = strings.Split(opts.KafkaBrokers, ",")
	}
	producer := events.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	repo := repository.New(db)
	core := dispatch.NewCore(
		repo,
		geocoder.NewProvider(opts.KakaoAPIKey),
		routing.NewClient(opts.ProxyURL),
		optimizer.NewClient(opts.LKHServiceURL),
		producer,
		loc,
	)
	controller := controllers.New(core, repo, db, []byte(opts.JWTSecret))

	apiServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:     controller.Router(),
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
		logger.Infof("dispatcher listening on %s", apiServer.Addr)
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
		logger.Fatalf("dispatcher exited, %s", err)
	}
}
