// Package main is the entrypoint for the Mailman 3 Prometheus exporter.
// It loads configuration, opens the database client, registers the
// collector and serves the scrape endpoint with graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/mailman-tools/mailman-exporter/internal/collector"
	"github.com/mailman-tools/mailman-exporter/internal/config"
	"github.com/mailman-tools/mailman-exporter/internal/db"
	"github.com/mailman-tools/mailman-exporter/internal/health"
	"github.com/mailman-tools/mailman-exporter/internal/registry"
)

var (
	configPath = flag.String("config", "", "Path to optional YAML configuration file")
	dsnFlag    = flag.String("dsn", "", "PostgreSQL DSN (default: built from DB_HOST/DB_PORT/DB_NAME/DB_USER/DB_PASS env vars)")
	portFlag   = flag.Int("port", 0, "Port to listen on (default: $MAILMAN_EXPORTER_PORT or 9934)")
	stdoutFlag = flag.Bool("stdout", false, "Print metrics to stdout and exit")
)

const landingPage = `<html>
<head><title>Mailman Exporter</title></head>
<body>
<h1>Mailman Exporter</h1>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Println("[main] Starting Mailman exporter")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] Failed to load configuration: %v", err)
	}
	if *dsnFlag != "" {
		cfg.Database.RawDSN = *dsnFlag
	}
	if *portFlag != 0 {
		cfg.Exporter.ListenPort = *portFlag
	}

	scrapeTimeout, err := time.ParseDuration(cfg.Exporter.ScrapeTimeout)
	if err != nil {
		log.Fatalf("[main] Invalid scrape_timeout %q: %v", cfg.Exporter.ScrapeTimeout, err)
	}

	log.Printf("[main] Database: %s", cfg.RedactedDSN())

	client, err := db.Open(cfg.DSN())
	if err != nil {
		log.Fatalf("[main] Failed to open database client: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("[main] Database close error: %v", err)
		}
	}()

	defs := registry.Definitions()
	log.Printf("[main] Metric catalog: %d entries", len(defs))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collector.New(client, defs, scrapeTimeout))

	if *stdoutFlag {
		if err := dumpMetrics(reg); err != nil {
			log.Fatalf("[main] Failed to write metrics: %v", err)
		}
		return
	}

	checker := health.NewChecker(client)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog: log.Default(),
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, landingPage)
	})
	checker.Register(mux)

	server := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: scrapeTimeout + 10*time.Second,
	}

	go func() {
		log.Printf("[main] Listening on %s/metrics", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("[main] Received signal %v, shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] HTTP server shutdown error: %v", err)
	}

	log.Println("[main] Shutdown complete.")
}

// dumpMetrics runs one collection pass and writes the text exposition
// format to stdout.
func dumpMetrics(g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
