package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	dialogflow "cloud.google.com/go/dialogflow/apiv2"
	"cloud.google.com/go/dialogflow/apiv2/dialogflowpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
)

type sessionsClient interface {
	DetectIntent(ctx context.Context, req *dialogflowpb.DetectIntentRequest, opts ...gax.CallOption) (*dialogflowpb.DetectIntentResponse, error)
	Close() error
}

// Dialogflow relays text queries to a Dialogflow ES agent.
type Dialogflow struct {
	client    sessionsClient
	projectID string
	language  string
	fallback  string
	timeout   time.Duration
}

// NewDialogflow dials the Dialogflow sessions API. Inline service-account credentials are
// used when configured, Application Default Credentials otherwise.
func NewDialogflow(ctx context.Context, cfg config.RelayConfig) (*Dialogflow, error) {
	var opts []option.ClientOption
	if cfg.Dialogflow.HasServiceAccount() {
		creds, err := serviceAccountJSON(cfg.Dialogflow)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}

	client, err := dialogflow.NewSessionsClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialogflow sessions client: %w", err)
	}

	return newDialogflow(client, cfg), nil
}

func newDialogflow(client sessionsClient, cfg config.RelayConfig) *Dialogflow {
	return &Dialogflow{
		client:    client,
		projectID: cfg.Dialogflow.ProjectID,
		language:  cfg.Language,
		fallback:  cfg.FallbackReply,
		timeout:   cfg.Timeout,
	}
}

func serviceAccountJSON(cfg config.DialogflowConfig) ([]byte, error) {
	creds, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   cfg.ProjectID,
		"client_email": cfg.ClientEmail,
		"private_key":  cfg.PrivateKey,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode service account: %w", err)
	}
	return creds, nil
}

// SessionPath is the agent session resource the query is scoped to.
func (d *Dialogflow) SessionPath(sessionID string) string {
	return fmt.Sprintf("projects/%s/agent/sessions/%s", d.projectID, sessionID)
}

// Detect sends one text query and returns the fulfillment text.
func (d *Dialogflow) Detect(ctx context.Context, sessionID, text, languageHint string) (string, error) {
	language := languageHint
	if language == "" {
		language = d.language
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.DetectIntent(callCtx, &dialogflowpb.DetectIntentRequest{
		Session: d.SessionPath(sessionID),
		QueryInput: &dialogflowpb.QueryInput{
			Input: &dialogflowpb.QueryInput_Text{
				Text: &dialogflowpb.TextInput{Text: text, LanguageCode: language},
			},
		},
	})
	if err != nil {
		if status.Code(err) == codes.DeadlineExceeded {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", classify(callCtx, err)
	}
	if resp == nil {
		return "", &Error{Kind: KindMalformed, Err: errors.New("empty detect intent response")}
	}

	return replyOrFallback(resp.GetQueryResult().GetFulfillmentText(), d.fallback), nil
}

// Close releases the gRPC connection.
func (d *Dialogflow) Close() error {
	return d.client.Close()
}
