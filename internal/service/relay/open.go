package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
)

// Open builds the relay selected by cfg.Provider. Callers should close the result when it
// implements io.Closer.
func Open(ctx context.Context, cfg config.RelayConfig, history HistoryReader, log *zap.Logger) (Relay, error) {
	switch cfg.Provider {
	case config.ProviderDialogflow:
		r, err := NewDialogflow(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("intent relay ready",
			zap.String("provider", cfg.Provider),
			zap.String("project_id", cfg.Dialogflow.ProjectID),
			zap.Bool("service_account", cfg.Dialogflow.HasServiceAccount()),
		)
		return r, nil
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		r, err := NewArk(ctx, chatModel, history, cfg, log)
		if err != nil {
			return nil, err
		}
		log.Info("intent relay ready", zap.String("provider", cfg.Provider), zap.String("model", cfg.Ark.Model))
		return r, nil
	case config.ProviderNone, "":
		log.Warn("no intent engine configured; chat requests will fail with relay_unavailable")
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unsupported relay provider %q", cfg.Provider)
	}
}
