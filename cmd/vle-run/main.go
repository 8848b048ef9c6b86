// Command vle-run loads a project file and drives it to completion over
// the root vle.Kernel facade. Grounded on cli/cmd/ariadne/main.go's flag
// layout, signal handling and metrics/health endpoint wiring, repointed
// from a crawl run's seed/checkpoint/snapshot flags to a simulation run's
// project/runtime/plugin-dir/csv-output flags.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/nsm120/vle"
	"github.com/nsm120/vle/adapters/telemetryhttp"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/observation"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		projectPath string
		runtimePath string
		pluginDirs  string
		csvOut      string
		metricsAddr string
		healthAddr  string
		showVersion bool
	)
	flag.StringVar(&projectPath, "project", "", "Path to the XML project file (required)")
	flag.StringVar(&runtimePath, "runtime", "", "Optional YAML runtime options file")
	flag.StringVar(&pluginDirs, "plugin-dir", "", "Comma separated list of directories to search for Dynamics plugins (appended to the runtime options' search paths)")
	flag.StringVar(&csvOut, "csv-output", "", "Register a built-in \"csv\" output stream writing to this path (in addition to the built-in \"memory\" and \"metrics\" streams)")
	flag.StringVar(&metricsAddr, "metrics", "", "Expose Prometheus metrics on address (e.g. :9090)")
	flag.StringVar(&healthAddr, "health", "", "Expose health endpoint on address (e.g. :9091)")
	flag.BoolVar(&showVersion, "version", false, "Show version / build info")
	flag.Parse()

	if showVersion {
		fmt.Println("vle-run - DEVS kernel runner")
		return 0
	}
	if projectPath == "" {
		fmt.Fprintln(os.Stderr, "no project file given. Use -project")
		return 2
	}

	var opts []vle.Option
	if csvOut != "" {
		opts = append(opts, vle.WithStream("csv", func() (observation.Stream, error) {
			f, err := os.Create(csvOut)
			if err != nil {
				return nil, err
			}
			return observation.NewCSVStream(f, f), nil
		}))
	}
	if pluginDirs != "" {
		var dirs []string
		for _, d := range strings.Split(pluginDirs, ",") {
			if d = strings.TrimSpace(d); d != "" {
				dirs = append(dirs, d)
			}
		}
		opts = append(opts, vle.WithPluginDirs(dirs...))
	}

	k, err := vle.New(projectPath, runtimePath, opts...)
	if err != nil {
		log.Printf("load kernel: %v", err)
		return kernelerr.ExitCode(err)
	}
	defer func() { _ = k.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; stopping after the current step")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	stopServers := startTelemetryServers(metricsAddr, healthAddr, k)
	defer stopServers()

	if err := k.Run(ctx); err != nil {
		log.Printf("simulation run: %v", err)
		return kernelerr.ExitCode(err)
	}

	snap := k.Snapshot()
	b, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Fprintf(os.Stderr, "=== FINAL SNAPSHOT ===\n%s\n", string(b))
	return 0
}

// startTelemetryServers starts the optional metrics/health HTTP endpoints
// and returns a func that shuts them down. Either address may be empty to
// skip that endpoint.
func startTelemetryServers(metricsAddr, healthAddr string, k *vle.Kernel) func() {
	var servers []*http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetryhttp.NewMetricsHandler(k.MetricsProvider()))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		servers = append(servers, srv)
		go func() {
			log.Printf("metrics listening on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server: %v", err)
			}
		}()
	}
	if healthAddr != "" {
		mux := http.NewServeMux()
		opts := telemetryhttp.HealthHandlerOptions{Source: k, IncludeProbes: true}
		mux.Handle("/healthz", telemetryhttp.NewHealthHandler(opts))
		mux.Handle("/readyz", telemetryhttp.NewReadinessHandler(opts))
		srv := &http.Server{Addr: healthAddr, Handler: mux}
		servers = append(servers, srv)
		go func() {
			log.Printf("health endpoint listening on %s", healthAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("health server: %v", err)
			}
		}()
	}
	return func() {
		for _, srv := range servers {
			_ = srv.Shutdown(context.Background())
		}
	}
}
