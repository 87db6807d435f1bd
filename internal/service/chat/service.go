// Package chat runs the message exchange pipeline shared by the HTTP and WebSocket transports.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/history"
	"github.com/zhouzirui/chat-relay/backend/internal/service/relay"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSessionRequired = errors.New("session required")
)

// DefaultMaxMessageLength matches the intent engine's text query limit.
const DefaultMaxMessageLength = 256

// Service persists both sides of an exchange around one relay call.
type Service struct {
	store     history.Store
	relay     relay.Relay
	log       *zap.Logger
	maxLength int
}

// NewService wires the pipeline. A non-positive maxLength selects DefaultMaxMessageLength.
func NewService(store history.Store, r relay.Relay, maxLength int, log *zap.Logger) *Service {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, relay: r, log: log, maxLength: maxLength}
}

// Validate rejects messages that must not reach the store.
func (s *Service) Validate(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	if n := utf8.RuneCountInString(message); n > s.maxLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRequest, s.maxLength)
	}
	return nil
}

// Exchange records the user turn, asks the relay for a reply and records the bot turn.
// An empty sessionID runs unscoped: turns are stored without a session and the relay gets
// a throwaway session of its own.
//
// The user turn is never rolled back. A failure to store the bot turn is logged and the
// reply is still returned.
func (s *Service) Exchange(ctx context.Context, sessionID, message, language string) (string, error) {
	if err := s.Validate(message); err != nil {
		return "", err
	}

	if _, err := s.store.Append(ctx, chat.UserTurn(sessionID, message)); err != nil {
		return "", fmt.Errorf("failed to persist user turn: %w", err)
	}

	relaySession := sessionID
	if relaySession == "" {
		relaySession = uuid.NewString()
	}

	reply, err := s.relay.Detect(ctx, relaySession, message, language)
	if err != nil {
		s.log.Error("intent relay failed",
			zap.String("session_id", sessionID),
			zap.String("kind", string(relay.KindOf(err))),
			zap.Error(err),
		)
		return "", err
	}

	if _, err := s.store.Append(ctx, chat.BotTurn(sessionID, reply)); err != nil {
		s.log.Warn("failed to persist bot turn",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	return reply, nil
}

// History returns the session's turns oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	turns, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return turns, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
