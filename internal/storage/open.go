package storage

import (
	"context"
	"fmt"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/internal/storage/redisstore"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// Config selects and configures a storage backend.
type Config struct {
	// Kind is one of "memory", "badger" or "redis".
	Kind   string
	Badger BadgerConfig
	Redis  redisstore.Config
}

// Open creates the backend named by cfg.Kind.
func Open(ctx context.Context, cfg Config, log logger.Logger) (service.Store, error) {
	switch cfg.Kind {
	case memory.Kind:
		return memory.New(), nil
	case BadgerKind, "":
		return OpenBadger(cfg.Badger, log)
	case redisstore.Kind:
		return redisstore.Open(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("storage: unknown kind %q", cfg.Kind)
	}
}
