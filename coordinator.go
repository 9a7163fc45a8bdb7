package chatsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Configuration
// ============================================================================

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// PullInterval is the fixed self-healing refetch interval for the open
	// conversation. It bounds staleness when the push channel is down or a
	// frame was dropped.
	PullInterval time.Duration

	Logger zerolog.Logger
}

func (c *CoordinatorConfig) defaults() {
	if c.PullInterval == 0 {
		c.PullInterval = 5 * time.Second
	}
}

// ============================================================================
// Coordinator
// ============================================================================

// Coordinator decides when the cached conversation list and message history
// are stale and must be refetched. Four triggers feed it, each independently
// sufficient: an inbound chat_message push frame, the pull timer, a confirmed
// send, and a conversation-selection change. All four funnel into the same
// refetch-and-replace path, so concurrent triggers only cost redundant,
// idempotent refetches.
//
// Refetches run on their own goroutines and are never cancelled; a fetch that
// outlives its relevance lands under its conversation-id key, where it is
// harmless.
type Coordinator struct {
	client       *Client
	store        *Store
	identity     Identity
	log          zerolog.Logger
	pullInterval time.Duration

	mu       sync.Mutex
	selected string
	stopCh   chan struct{}
	started  bool
}

// NewCoordinator creates a coordinator for one participant identity.
// cfg may be nil for defaults.
func NewCoordinator(client *Client, store *Store, identity Identity, cfg *CoordinatorConfig) *Coordinator {
	var c CoordinatorConfig
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	return &Coordinator{
		client:       client,
		store:        store,
		identity:     identity,
		log:          c.Logger.With().Str("component", "sync").Logger(),
		pullInterval: c.PullInterval,
	}
}

// Start arms the pull timer. The timer only refetches while a conversation is
// selected.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.stopCh = make(chan struct{})
	go c.pullLoop(c.stopCh)
}

// Stop disarms the pull timer. Idempotent. In-flight refetches complete and
// land in the store.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	close(c.stopCh)
}

// Attach subscribes the coordinator to a connection manager's inbound frames.
func (c *Coordinator) Attach(conn *ConnManager) {
	conn.OnChatMessage(c.HandleFrame)
}

// Identity returns the participant identity the coordinator synchronizes for.
func (c *Coordinator) Identity() Identity {
	return c.identity
}

// Selected returns the currently open conversation id, or "".
func (c *Coordinator) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Select switches the open conversation and loads its history. The previous
// conversation's cache entry is retained, not evicted. Selecting "" closes
// the view without clearing anything.
func (c *Coordinator) Select(conversationID string) {
	c.mu.Lock()
	c.selected = conversationID
	c.mu.Unlock()

	if conversationID != "" {
		c.invalidateMessages(conversationID)
	}
}

// HandleFrame reacts to an inbound push frame. A chat_message frame
// invalidates both the open conversation's history and the conversation list,
// since either may have changed ordering or content. Other frame kinds are
// ignored here.
func (c *Coordinator) HandleFrame(f Frame) {
	if f.Type != FrameChatMessage {
		return
	}
	if sel := c.Selected(); sel != "" {
		c.invalidateMessages(sel)
	}
	c.invalidateConversations()
}

// SendMessage persists a message through the mutation gateway. On success the
// conversation's history cache is invalidated exactly once; failures surface
// to the caller with the cache untouched. An empty ConversationID targets the
// currently selected conversation.
func (c *Coordinator) SendMessage(ctx context.Context, draft SendMessageOptions) (*Message, error) {
	if draft.ConversationID == "" {
		draft.ConversationID = c.Selected()
	}

	msg, err := c.client.Messages().Send(ctx, draft)
	if err != nil {
		return nil, err
	}

	c.invalidateMessages(draft.ConversationID)
	return msg, nil
}

// StartConversation creates a conversation, sends its first message, selects
// the new conversation, and refreshes the list. Creation and send are two
// round trips; a failure between them leaves an empty conversation the caller
// recovers from by resending.
func (c *Coordinator) StartConversation(ctx context.Context, opts CreateConversationOptions, draft SendMessageOptions) (*Conversation, *Message, error) {
	conv, msg, err := c.client.StartConversation(ctx, opts, draft)
	if conv != nil {
		c.Select(conv.ID)
		c.invalidateConversations()
	}
	return conv, msg, err
}

// MarkRead flags a conversation read for this identity. Best-effort: failures
// are logged and swallowed, since read state is not safety-critical.
func (c *Coordinator) MarkRead(ctx context.Context, conversationID string) {
	if err := c.client.Conversations().MarkRead(ctx, conversationID, c.identity); err != nil {
		c.log.Warn().Err(err).Str("conversation", conversationID).Msg("mark read failed")
	}
}

// RefreshConversations forces a conversation list refetch.
func (c *Coordinator) RefreshConversations() {
	c.invalidateConversations()
}

// ============================================================================
// Refetch path
// ============================================================================

func (c *Coordinator) pullLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Unconditional while a conversation is open, regardless of
			// push-channel health: this bounds staleness to one interval.
			if sel := c.Selected(); sel != "" {
				c.invalidateMessages(sel)
			}
		}
	}
}

func (c *Coordinator) invalidateMessages(conversationID string) {
	go func() {
		msgs, err := c.client.Messages().List(context.Background(), conversationID)
		if err != nil {
			c.log.Warn().Err(err).Str("conversation", conversationID).Msg("message refetch failed")
			return
		}
		c.store.ReplaceMessages(conversationID, msgs)
	}()
}

func (c *Coordinator) invalidateConversations() {
	go func() {
		convs, err := c.client.Conversations().List(context.Background(), c.identity)
		if err != nil {
			c.log.Warn().Err(err).Msg("conversation list refetch failed")
			return
		}
		c.store.ReplaceConversations(c.identity, convs)
	}()
}
