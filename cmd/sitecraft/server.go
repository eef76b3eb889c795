package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sitecraft/internal/analyzer"
	"github.com/kalambet/sitecraft/internal/api"
	"github.com/kalambet/sitecraft/internal/chat"
	"github.com/kalambet/sitecraft/internal/config"
	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/generator"
	"github.com/kalambet/sitecraft/internal/logging"
	"github.com/kalambet/sitecraft/internal/metrics"
	"github.com/kalambet/sitecraft/internal/scheduler"
	"github.com/kalambet/sitecraft/internal/storage"
	"github.com/kalambet/sitecraft/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sitecraft server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sitecraft server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sitecraft system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve sitecraft tools over MCP (stdio)",
	Long: `Serve plan_site, generate_site, list_components and edit_component as MCP
tools on stdin/stdout. Queued generations run in this process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sitecraft.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// app is the wired service shared by the HTTP server and the MCP server.
type app struct {
	store  *storage.Store
	deps   api.Deps
	worker *worker.Worker
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildApp wires the generation pipeline from cfg. A model backend that is
// not reachable is reported and tolerated: every component then comes from
// the fallback library.
func buildApp(ctx context.Context, cfg config.Config, progress io.Writer) (*app, error) {
	eng, err := engine.Detect(ctx, engine.DetectConfig{
		Backend:       cfg.Model.Backend,
		GeminiAPIKey:  cfg.Gemini.APIKey,
		GeminiModel:   cfg.Gemini.Model,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OllamaModel:   cfg.Ollama.Model,
		Temperature:   float32(cfg.Model.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("configuring model backend: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, progress); err != nil {
		slog.Warn("model backend not ready, generated sections will use fallback templates", "backend", eng.Name(), "error", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	fs := files.New(filepath.Join(cfg.Storage.DataDir, "sites"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	gen := generator.New(eng, generator.Options{
		Policy: generator.Policy{
			MaxAttempts:   cfg.Generation.MaxAttempts,
			RetryDelay:    cfg.Generation.RetryDelay,
			OverloadDelay: cfg.Generation.OverloadDelay,
			CallTimeout:   cfg.Generation.CallTimeout,
		},
		Metrics: rec,
	})
	bus := events.NewBus()
	sched := scheduler.New(gen, fs, scheduler.Options{
		InterCallDelay: cfg.Generation.InterCallDelay,
		Events:         bus,
		Recorder:       store,
		Metrics:        rec,
	})
	classifier := chat.NewClassifier(eng, chat.ClassifierOptions{
		CallTimeout: cfg.Generation.CallTimeout,
		Metrics:     rec,
	})

	return &app{
		store: store,
		deps: api.Deps{
			Store: store,
			Files: fs,
			Planner: analyzer.New(eng, analyzer.Options{
				Timeout:       cfg.Generation.CallTimeout,
				MaxComponents: cfg.Generation.MaxComponents,
				Metrics:       rec,
			}),
			Patcher: chat.NewPatcher(classifier, gen, fs, bus),
			Bus:     bus,
			Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		},
		worker: worker.New(store, sched, 500*time.Millisecond),
	}, nil
}

func setupLogging(cfg config.Config) (io.Closer, error) {
	return logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "sitecraft version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logCloser, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(a.deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "sitecraft listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol, so logs and progress go to stderr only.
	logCloser, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.worker.Run(gctx)
	})
	g.Go(func() error {
		stdio := server.NewStdioServer(api.NewMCPServer(a.deps, version))
		slog.Info("MCP server started (stdio transport)")
		err := stdio.Listen(gctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		stop()
		return nil
	})
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("sitecraft is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("could not stop sitecraft (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to sitecraft (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	c := newClientFor(cfg)
	if err := c.Health(ctx); err != nil {
		printStatus("Server", "stopped (%s)", c.BaseURL())
	} else {
		printStatus("Server", "running at %s", c.BaseURL())
		if sessions, err := c.Sessions(ctx, 100); err == nil {
			printStatus("Sessions", "%s", countLabel(len(sessions), 100))
		}
	}

	backend := cfg.Model.Backend
	if backend == config.BackendAuto {
		backend = "auto"
	}
	printStatus("Model backend", "%s", backend)
	printStatus("Gemini model", "%s", cfg.Gemini.Model)
	printStatus("Ollama model", "%s at %s", cfg.Ollama.Model, cfg.Ollama.BaseURL)
	printStatus("Inter-call delay", "%s", cfg.Generation.InterCallDelay)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return strconv.Itoa(count)
}
