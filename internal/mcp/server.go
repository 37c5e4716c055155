// Package mcp provides an MCP (Model Context Protocol) server that lets a
// client run simulations, inspect network topology and list saved runs.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/cellnet/internal/config"
	"github.com/nvandessel/cellnet/internal/experiment"
	"github.com/nvandessel/cellnet/internal/logging"
	"github.com/nvandessel/cellnet/internal/ratelimit"
	"github.com/nvandessel/cellnet/internal/store"
)

// Limits on a single tool call.
const (
	MaxCells = 100
	MaxTStop = 10000.0 // ms
)

// Server wraps the MCP SDK server with the simulation tools.
type Server struct {
	server   *sdk.Server
	settings *config.CellnetConfig
	runner   *experiment.Runner
	store    store.RunStore
	audit    *AuditLogger
	limiters ratelimit.ToolLimiters
	logger   *slog.Logger
	dataDir  string

	closeOnce sync.Once
	closeErr  error
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "cellnet")
	Version string // Server version

	// DataDir holds the run store and the audit log.
	DataDir string

	// Settings supplies the cell template and the "network" experiment.
	// Nil uses config.Default().
	Settings *config.CellnetConfig

	Logger *slog.Logger
}

// NewServer creates a server and opens its run store.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	rs, err := store.NewRunStore(settings.Store.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	runner := experiment.NewRunner(settings.CellTemplate())
	runner.Logger = logger

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:   mcpServer,
		settings: settings,
		runner:   runner,
		store:    rs,
		audit:    NewAuditLogger(cfg.DataDir),
		limiters: ratelimit.NewToolLimiters(),
		logger:   logger,
		dataDir:  cfg.DataDir,
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until the client disconnects, the context is
// cancelled or an interrupt arrives.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	defer s.Close()

	s.logger.Info("mcp server starting", "data_dir", s.dataDir, "store", s.settings.Store.Backend)
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the run store and the audit log. Later calls are no-ops.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.store.Close()
		if err := s.audit.Close(); s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
