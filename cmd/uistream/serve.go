package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/uistream/pkg/agent"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/model/echo"
	"github.com/nstogner/uistream/pkg/model/gemini"
	"github.com/nstogner/uistream/pkg/obs"
	"github.com/nstogner/uistream/pkg/sandbox"
	"github.com/nstogner/uistream/pkg/sandbox/docker"
	"github.com/nstogner/uistream/pkg/server"
	"github.com/nstogner/uistream/pkg/store/sqlite"
	"github.com/nstogner/uistream/pkg/stream"
	"github.com/nstogner/uistream/pkg/tools"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().String("host", "0.0.0.0", "listen host")
	a.v.BindPFlag("host", cmd.Flags().Lookup("host"))
	cmd.Flags().IntP("port", "p", 5001, "listen port")
	a.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	cmd.Flags().String("db", "uistream.db", "sqlite database path")
	a.v.BindPFlag("db_path", cmd.Flags().Lookup("db"))
	cmd.Flags().Bool("sandbox", false, "enable the docker sandbox for run_python")
	a.v.BindPFlag("sandbox.enabled", cmd.Flags().Lookup("sandbox"))
	cmd.Flags().Bool("metrics", false, "export stream metrics to stdout")
	a.v.BindPFlag("metrics.enabled", cmd.Flags().Lookup("metrics"))

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	var coordOpts []stream.Option
	if cfg.Metrics.Enabled {
		ms, err := obs.NewMeterSetup(os.Stdout, cfg.Metrics.Interval)
		if err != nil {
			return fmt.Errorf("setting up metrics: %w", err)
		}
		defer ms.Shutdown(context.Background())
		coordOpts = append(coordOpts, stream.WithMeterProvider(ms.MeterProvider()))
	}

	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	var provider model.Provider
	modelID := cfg.Model
	if cfg.LLMConfigured() {
		p, err := gemini.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("initializing gemini: %w", err)
		}
		provider = p
	} else {
		slog.Warn("GEMINI_API_KEY not set, answering in fallback mode")
		provider = echo.New()
		modelID = echo.ModelID
	}

	var sb sandbox.Manager
	if cfg.Sandbox.Enabled {
		m, err := docker.New(cfg.Sandbox.Image)
		if err != nil {
			return fmt.Errorf("initializing sandbox: %w", err)
		}
		defer m.Close()
		go func() {
			if err := m.Run(ctx, st); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Sandbox manager stopped", "error", err)
			}
		}()
		sb = m
	}

	registry := tools.NewRegistry(
		&tools.CurrentTimeTool{},
		&tools.CalculateTool{},
		&tools.RunPythonTool{Sandbox: sb},
	)
	agentOpts := []agent.Option{
		agent.WithTools(registry),
		agent.WithStore(st),
		agent.WithModel(modelID),
		agent.WithMaxSteps(cfg.MaxSteps),
	}
	if cfg.Instructions != "" {
		agentOpts = append(agentOpts, agent.WithInstructions(cfg.Instructions))
	}
	ag := agent.New(provider, agentOpts...)

	coordOpts = append(coordOpts,
		stream.WithToolOutputChunkSize(cfg.Stream.ToolOutputChunkSize),
		stream.WithLogger(a.logger),
	)
	coord, err := stream.New(coordOpts...)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{
		server.WithLLMConfigured(cfg.LLMConfigured()),
		server.WithDefaultModel(modelID),
	}
	if sb != nil {
		srvOpts = append(srvOpts, server.WithSandbox(sb))
	}
	srv := server.New(ag, coord, st, provider, srvOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Addr()) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
