package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/viralforge/fieldcapture/internal/adapters/remote"
	"github.com/viralforge/fieldcapture/internal/adapters/tui"
	"github.com/viralforge/fieldcapture/internal/workflow"
)

// ClientRuntime wires the terminal client. Stdout belongs to the UI, so
// logs go to the configured file or nowhere.
type ClientRuntime struct {
	cfg     ClientConfig
	logger  *slog.Logger
	client  *remote.Client
	closeFn func()
}

func NewClientRuntime(configPath string) (*ClientRuntime, error) {
	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}

	var sink io.Writer = io.Discard
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		sink = f
		closeFn = func() { _ = f.Close() }
	}
	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})).
		With("service", "field-capture-client")

	client, err := remote.NewClient(remote.Config{
		Endpoint: cfg.BackendURL,
		Timeout:  cfg.RequestTimeout,
		Logger:   logger,
	})
	if err != nil {
		closeFn()
		return nil, err
	}
	return &ClientRuntime{cfg: cfg, logger: logger, client: client, closeFn: closeFn}, nil
}

// Run blocks until the user quits or ctx ends.
func (r *ClientRuntime) Run(ctx context.Context) error {
	defer r.closeFn()
	r.logger.Info("client started",
		"module", "bootstrap",
		"layer", "app",
		"operation", "run_client",
		"outcome", "success",
		"request_timeout_ms", r.cfg.RequestTimeout.Milliseconds(),
	)

	machine := workflow.New(workflow.Config{Logger: r.logger})
	program := tea.NewProgram(tui.New(ctx, machine, r.client), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
