package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"brokerhub/core/internal/api"
	"brokerhub/core/internal/cache"
	"brokerhub/core/internal/config"
	"brokerhub/core/internal/events"
	"brokerhub/core/internal/health"
	"brokerhub/core/internal/search"
	"brokerhub/core/internal/storage"
	"brokerhub/core/internal/stream"
	"brokerhub/core/internal/types"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	st, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer st.Close()

	journal := events.NewJournal(cfg.Events.JournalSize)
	bus := events.New(events.WithJournal(journal))

	searchCache := cache.New[[]types.Broker](cache.Options{
		Namespace:     cfg.Cache.Namespace + "/search",
		MaxEntries:    cfg.Cache.MaxEntries,
		Store:         st,
		FlightTimeout: cfg.Upstream.Timeout,
	})

	if cfg.Upstream.BaseURL == "" {
		log.Printf("UPSTREAM_BASE_URL not set; searches will fail until it is configured")
	}
	fetcher := search.NewHTTPFetcher(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout)
	svc := search.NewService(searchCache, fetcher, bus, cfg.Cache.SearchTTL)

	deps := health.Deps{Store: st}
	if cfg.Upstream.BaseURL != "" {
		deps.Upstream = fetcher
	}

	janitor, err := cache.NewJanitor(cfg.Cache.CleanupSchedule, searchCache)
	if err != nil {
		log.Fatalf("janitor: %v", err)
	}
	janitor.Start()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Another process (cachectl) may rewrite a file store underneath us.
	if fs, ok := st.(*storage.File); ok {
		go func() {
			err := fs.Watch(ctx, func() {
				n := searchCache.Forget()
				log.Printf("[storage] %s changed on disk; dropped %d memory entries", cfg.Storage.Path, n)
			})
			if err != nil {
				log.Printf("[storage] watch: %v", err)
			}
		}()
	}

	h := api.NewHandlers(cfg, bus, journal, svc, deps, searchCache)
	reg := stream.NewRegistry()
	wss := stream.NewServer(bus, svc, reg, cfg.Stream.TokenSecret, cfg.Stream.TokenSkewSecs, cfg.Stream.Debounce)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h, wss.HandleStream))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(cfg.Server.LogLevel, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// metrics endpoint
	go func() {
		m := http.NewServeMux()
		m.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics on %s", cfg.Server.MetricsAddr)
		if err := http.ListenAndServe(cfg.Server.MetricsAddr, m); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	// gRPC health mirrors the readiness checks
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() {
		l, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Printf("grpc listen: %v", err)
			return
		}
		log.Printf("grpc health listening on %s", cfg.Server.GRPCAddr)
		if err := gs.Serve(l); err != nil {
			log.Printf("grpc serve: %v", err)
		}
	}()
	go reportHealth(ctx, hs, deps)

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		stop()
		hs.Shutdown()
		<-janitor.Stop().Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		gs.GracefulStop()
	}()

	log.Printf("server starting on %s (skin=%s)", addr, cfg.Site.Skin)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
	bus.RemoveAllListeners()
}

func reportHealth(ctx context.Context, hs *grpchealth.Server, deps health.Deps) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status := health.CheckAll(cctx, deps)
		cancel()
		next := healthpb.HealthCheckResponse_SERVING
		if !status.OK {
			next = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if next != last {
			log.Printf("[health] %s", status)
			hs.SetServingStatus("", next)
			last = next
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func logMiddleware(level string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if level == "debug" || r.URL.Path != "/healthz" {
			log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
		}
	})
}
