package commands

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/topolane/topolane/internal/config"
	"github.com/topolane/topolane/internal/store"
	"github.com/topolane/topolane/internal/store/embedded"
	"github.com/topolane/topolane/internal/store/falkordb"
	"github.com/topolane/topolane/internal/store/memory"
	"github.com/topolane/topolane/internal/store/postgres"
)

// buildStore opens the Graph Store backend selected by cfg. Config
// validation has already confirmed the required fields are set for the
// chosen backend.
func buildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "embedded":
		return embedded.Open(cfg.Path)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN, cfg.SchemaPrefix)
	case "falkordb":
		fcfg, err := parseFalkorDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("store: parse falkordb dsn: %w", err)
		}
		return falkordb.Open(ctx, fcfg)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// parseFalkorDSN accepts "host:port" or "host:port/graphName", since
// config.StoreConfig carries one DSN string for every backend rather than
// a backend-specific struct.
func parseFalkorDSN(dsn string) (falkordb.Config, error) {
	cfg := falkordb.DefaultConfig()

	hostPort, graphName, _ := strings.Cut(dsn, "/")
	if graphName != "" {
		cfg.GraphName = graphName
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return falkordb.Config{}, fmt.Errorf("expected host:port, got %q: %w", hostPort, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return falkordb.Config{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	cfg.Host = host
	cfg.Port = port
	return cfg, nil
}
