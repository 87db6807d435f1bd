package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory message store, history is lost on restart")
		store = NewMemoryStore()
	case config.DriverPostgres:
		store, err = OpenPostgres(ctx, cfg)
	case config.DriverMongo:
		store, err = OpenMongo(ctx, cfg)
	case config.DriverRedis:
		store, err = OpenRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Info("message store ready", zap.String("driver", cfg.Driver))
	return store, nil
}
