package main

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datafold/datafold/pkg/log"
	"github.com/datafold/datafold/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator worker and the metrics/health HTTP server",
	Long: `Serve opens the embedded store, starts the transform
orchestrator's background worker, and exposes /metrics, /health, /ready
and /live, until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		e.orchestrator.Start()
		fmt.Println("✓ orchestrator started")

		collector := metrics.NewCollector(e.atoms, e.refs, e.schemas, e.orchestrator, e.bus)
		collector.Start()
		fmt.Println("✓ metrics collector started")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", true, "open")
		metrics.RegisterComponent("bus", true, "running")
		metrics.RegisterComponent("orchestrator", true, "running")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		if enablePprof, _ := cmd.Flags().GetBool("enable-pprof"); enablePprof {
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			fmt.Printf("✓ profiling endpoints enabled at http://%s/debug/pprof/\n", cfg.MetricsAddr)
		}

		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		fmt.Printf("✓ metrics endpoint: http://%s/metrics\n", cfg.MetricsAddr)
		fmt.Printf("✓ health endpoints: http://%s/health, /ready, /live\n", cfg.MetricsAddr)
		fmt.Println()
		fmt.Println("DataFold core running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			log.Error(err.Error())
		}

		collector.Stop()
		e.orchestrator.Stop()
		if err := server.Close(); err != nil {
			log.Errorf("metrics server shutdown error", err)
		}

		fmt.Println("✓ shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints on the metrics server")
}
