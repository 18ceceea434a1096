package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"

	"github.com/digineo/purged/cache"
	"github.com/digineo/purged/config"
	"github.com/digineo/purged/metrics"
	"github.com/digineo/purged/requestid"
	"github.com/digineo/purged/service/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	mimeTypeJSON  = "application/json; charset=utf-8"
	mimeTypePlain = "text/plain; charset=utf-8"
)

type Options struct {
	Addr   string
	Routes []config.Route
	Zones  []*cache.Zone

	// Mirror names the downstream adapter in use, if any.
	Mirror string
}

type service struct {
	routes []config.Route
	zones  []*cache.Zone
	mirror string

	log *zap.Logger
}

func newService(opts Options, log *zap.Logger) *service {
	routes := make([]config.Route, len(opts.Routes))
	copy(routes, opts.Routes)

	// longest prefix first, so "/purge-all" is not shadowed by "/purge"
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Path) > len(routes[j].Path)
	})

	return &service{
		routes: routes,
		zones:  opts.Zones,
		mirror: opts.Mirror,
		log:    log,
	}
}

func (svc *service) handler() (http.Handler, error) {
	for _, z := range svc.zones {
		z := z
		err := metrics.RegisterZone(z.Name(), func() (int, int64) {
			st := z.Stats()
			return st.Entries, st.Size
		})
		if err != nil {
			return nil, fmt.Errorf("registering metrics for zone %s: %w", z.Name(), err)
		}
	}
	mirror := svc.mirror
	if mirror == "" {
		mirror = "none"
	}
	metrics.Info.WithLabelValues(mirror).Set(1)

	r := mux.NewRouter()
	r.HandleFunc("/status", svc.HandleStatus).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	for _, rt := range svc.routes {
		r.PathPrefix(rt.Path).Handler(svc.purgeHandler(rt)).Methods(rt.Methods...)
	}

	r.Use(requestid.Middleware)
	r.Use(handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(svc.Logger())),
		handlers.PrintRecoveryStack(true),
	))
	r.Use(handlers.CompressHandler)
	r.Use(middleware.WithLogging(svc.Logger()))
	r.Use(middleware.DiscardBody(svc.Logger()))
	return r, nil
}

func Start(opts Options, log *zap.Logger) (func(context.Context) error, error) {
	svc := newService(opts, log)
	return svc.start(opts.Addr)
}

func (svc *service) start(addr string) (func(context.Context) error, error) {
	h, err := svc.handler()
	if err != nil {
		return nil, err
	}

	srv := http.Server{
		Addr:    addr,
		Handler: h,
	}

	log := svc.Logger()
	log.Info("starting server", zap.String("addr", addr))

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		if e := srv.Serve(l); !errors.Is(e, http.ErrServerClosed) {
			log.Error("unexpected HTTP server shutdown", zap.Error(e))
		}
	}()

	return func(ctx context.Context) error {
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	}, nil
}

var discardlog = zap.NewNop()

func (svc *service) Logger() *zap.Logger {
	if svc.log == nil {
		return discardlog
	}
	return svc.log
}
