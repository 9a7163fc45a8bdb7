// Package chatsync is the conversation synchronization client for the
// Worklane platform: it keeps a participant's view of their conversations
// consistent across a persistent push channel and a pull-based fallback.
//
// The package has four parts: the mutation gateway (Client and its
// sub-clients), the push-channel connection manager (ConnManager), the
// client-side cache (Store), and the Coordinator that ties the three
// together.
//
// Example:
//
//	client := chatsync.NewClient("https://worklane.example")
//	me := chatsync.Identity{UserID: "u-1", Kind: chatsync.ParticipantClient}
//
//	store := chatsync.NewStore()
//	coord := chatsync.NewCoordinator(client, store, me, nil)
//	coord.Start()
//	defer coord.Stop()
//
//	conn := chatsync.NewConnManager(me, chatsync.ConnConfig{BaseURL: client.BaseURL()})
//	coord.Attach(conn)
//	conn.Connect(ctx)
//	defer conn.Disconnect()
package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds individual gateway round trips.
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the conversation/message mutation gateway plus the pull-based
// read path. All state-changing operations go through it; the push channel
// carries no application state.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger

	conversations *ConversationsClient
	messages      *MessagesClient
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token attached to every request. Authorization
// decisions themselves are server-side; the gateway only carries the token.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a gateway client against the platform base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.conversations = &ConversationsClient{client: c}
	c.messages = &MessagesClient{client: c}
	return c
}

// BaseURL returns the configured platform base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Conversations returns the conversation sub-client.
func (c *Client) Conversations() *ConversationsClient {
	return c.conversations
}

// Messages returns the message sub-client.
func (c *Client) Messages() *MessagesClient {
	return c.messages
}

// StartConversation creates a conversation and sends the first message into
// it. The two calls are not atomic: if the send fails, the empty conversation
// remains and the error is returned alongside it so the caller can resend.
func (c *Client) StartConversation(ctx context.Context, opts CreateConversationOptions, draft SendMessageOptions) (*Conversation, *Message, error) {
	conv, err := c.conversations.Create(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	draft.ConversationID = conv.ID
	msg, err := c.messages.Send(ctx, draft)
	if err != nil {
		return conv, nil, fmt.Errorf("conversation %s created but first message failed: %w", conv.ID, err)
	}
	return conv, msg, nil
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// decodeAPIError extracts a typed error from a non-2xx body, falling back to
// a status-code error when the body carries no recognizable shape.
func decodeAPIError(status int, data []byte) error {
	var apiErr APIError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
		if apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("HTTP_%d", status)
		}
		return &apiErr
	}
	return &APIError{
		Code:    fmt.Sprintf("HTTP_%d", status),
		Message: http.StatusText(status),
	}
}

// ============================================================================
// Conversations sub-client
// ============================================================================

// ConversationsClient handles conversation reads and mutations.
type ConversationsClient struct{ client *Client }

// List fetches all conversations for a participant identity.
func (cv *ConversationsClient) List(ctx context.Context, id Identity) ([]Conversation, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("identity is required to list conversations")
	}
	var convs []Conversation
	path := "/api/chat/conversations/" + string(id.Kind) + "/" + id.UserID
	if err := cv.client.doRequest(ctx, http.MethodGet, path, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Create opens a new conversation. No existing-conversation check is made:
// repeated calls for the same participants create distinct conversations.
func (cv *ConversationsClient) Create(ctx context.Context, opts CreateConversationOptions) (*Conversation, error) {
	var conv Conversation
	if err := cv.client.doRequest(ctx, http.MethodPost, "/api/chat/conversations", opts, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// MarkRead flags the conversation read for a participant. Read state is not
// safety-critical; callers on the background path swallow the returned error.
func (cv *ConversationsClient) MarkRead(ctx context.Context, conversationID string, id Identity) error {
	path := "/api/chat/conversations/" + conversationID + "/read"
	return cv.client.doRequest(ctx, http.MethodPut, path, id, nil)
}

// ============================================================================
// Messages sub-client
// ============================================================================

// MessagesClient handles message reads and sends.
type MessagesClient struct{ client *Client }

// List fetches the full message history of a conversation. The result is a
// complete snapshot; callers replace their cache wholesale.
func (m *MessagesClient) List(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	path := "/api/chat/conversations/" + conversationID + "/messages"
	if err := m.client.doRequest(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send persists a message. Failures surface to the caller; the draft stays
// uncommitted and there is no automatic retry.
func (m *MessagesClient) Send(ctx context.Context, opts SendMessageOptions) (*Message, error) {
	if opts.ConversationID == "" {
		return nil, fmt.Errorf("conversationId is required")
	}
	if opts.Kind == "" {
		opts.Kind = MessageText
	}
	var msg Message
	if err := m.client.doRequest(ctx, http.MethodPost, "/api/chat/messages", opts, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
