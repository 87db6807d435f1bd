package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// HistoryReader exposes the stored turns of a session.
type HistoryReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error)
}

// Ark relays queries to an LLM through an eino chain. The engine is stateless, so
// per-session context is rebuilt from stored history on every call.
type Ark struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	history      HistoryReader
	log          *zap.Logger
	systemPrompt string
	historyLimit int
	language     string
	fallback     string
	timeout      time.Duration
}

// NewArk compiles the prompt chain around chatModel.
func NewArk(ctx context.Context, chatModel model.BaseChatModel, history HistoryReader, cfg config.RelayConfig, log *zap.Logger) (*Ark, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Ark{
		chain:        runnable,
		history:      history,
		log:          log,
		systemPrompt: cfg.Ark.SystemPrompt,
		historyLimit: cfg.Ark.HistoryLimit,
		language:     cfg.Language,
		fallback:     cfg.FallbackReply,
		timeout:      cfg.Timeout,
	}, nil
}

// Detect runs one chain invocation for text within the session's context.
func (a *Ark) Detect(ctx context.Context, sessionID, text, languageHint string) (string, error) {
	language := languageHint
	if language == "" {
		language = a.language
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	input := map[string]any{
		"system":  a.buildSystemPrompt(language),
		"history": a.buildHistoryMessages(a.loadHistory(callCtx, sessionID), text),
		"query":   text,
	}

	response, err := a.chain.Invoke(callCtx, input)
	if err != nil {
		return "", classify(callCtx, fmt.Errorf("failed to run chat chain: %w", err))
	}
	if response == nil {
		return "", &Error{Kind: KindMalformed, Err: errors.New("chat model returned no message")}
	}

	a.log.Debug("ark reply generated",
		zap.String("session_id", sessionID),
		zap.Int("length", len(response.Content)),
	)
	return replyOrFallback(response.Content, a.fallback), nil
}

func (a *Ark) loadHistory(ctx context.Context, sessionID string) []chat.Turn {
	if a.history == nil || sessionID == "" || a.historyLimit <= 0 {
		return nil
	}
	turns, err := a.history.ListBySession(ctx, sessionID)
	if err != nil {
		// Context is an enhancement; answer without it.
		a.log.Warn("failed to load session history", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return turns
}

func (a *Ark) buildSystemPrompt(language string) string {
	if language == "" {
		return a.systemPrompt
	}
	var builder strings.Builder
	builder.WriteString(a.systemPrompt)
	builder.WriteString("\nAnswer in the language identified by the code \"")
	builder.WriteString(language)
	builder.WriteString("\".")
	return builder.String()
}

// buildHistoryMessages keeps the last historyLimit turns before the current query. The
// caller persists the user turn before relaying, so a trailing matching user turn is dropped.
func (a *Ark) buildHistoryMessages(turns []chat.Turn, query string) []*schema.Message {
	if n := len(turns); n > 0 && turns[n-1].Role == chat.RoleUser && turns[n-1].Content == query {
		turns = turns[:n-1]
	}
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > a.historyLimit {
		startIdx = len(turns) - a.historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleBot:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
