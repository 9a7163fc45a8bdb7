package chatsync

import (
	"context"
	"testing"
	"time"
)

func newTestCoordinator(t *testing.T, p *fakePlatform, pull time.Duration) (*Coordinator, *Store) {
	t.Helper()
	client := NewClient(p.srv.URL)
	store := NewStore()
	coord := NewCoordinator(client, store, testIdentity, &CoordinatorConfig{
		PullInterval: pull,
	})
	t.Cleanup(coord.Stop)
	return coord, store
}

func seedConversation(t *testing.T, p *fakePlatform, content string) string {
	t.Helper()
	client := NewClient(p.srv.URL)
	conv, err := client.Conversations().Create(context.Background(), CreateConversationOptions{
		ProjectID: "proj-1",
		ClientID:  testIdentity.UserID,
		Kind:      ConversationProject,
	})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	if content != "" {
		_, err = client.Messages().Send(context.Background(), SendMessageOptions{
			ConversationID: conv.ID,
			SenderID:       "emp-1",
			SenderKind:     ParticipantEmployee,
			Content:        content,
		})
		if err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
	return conv.ID
}

func TestSelectLoadsConversation(t *testing.T) {
	p := newFakePlatform(t)
	convID := seedConversation(t, p, "hello")
	coord, store := newTestCoordinator(t, p, time.Minute)

	coord.Select(convID)
	if coord.Selected() != convID {
		t.Fatalf("selection not recorded: %s", coord.Selected())
	}

	waitFor(t, 2*time.Second, func() bool {
		msgs, ok := store.Messages(convID)
		return ok && len(msgs) == 1
	}, "selected conversation loaded")
}

func TestSelectRetainsPreviousCache(t *testing.T) {
	// Switching conversations keeps the previous one's cached history; the
	// cache is only ever replaced by a fresh fetch, never evicted.
	p := newFakePlatform(t)
	first := seedConversation(t, p, "first")
	second := seedConversation(t, p, "second")
	coord, store := newTestCoordinator(t, p, time.Minute)

	coord.Select(first)
	waitFor(t, 2*time.Second, func() bool {
		_, ok := store.Messages(first)
		return ok
	}, "first conversation loaded")

	coord.Select(second)
	waitFor(t, 2*time.Second, func() bool {
		_, ok := store.Messages(second)
		return ok
	}, "second conversation loaded")

	if _, ok := store.Messages(first); !ok {
		t.Fatal("previous conversation's cache was evicted")
	}
}

func TestPushFrameTriggersRefetch(t *testing.T) {
	// An incoming chat_message frame causes a refetch of the open
	// conversation and of the conversation list. The frame payload itself is
	// never merged into the cache.
	p := newFakePlatform(t)
	convID := seedConversation(t, p, "hello")
	coord, store := newTestCoordinator(t, p, time.Minute)

	coord.Select(convID)
	waitFor(t, 2*time.Second, func() bool {
		msgs, ok := store.Messages(convID)
		return ok && len(msgs) == 1
	}, "initial load")

	// New message lands server-side, then the push notification arrives.
	other := NewClient(p.srv.URL)
	other.Messages().Send(context.Background(), SendMessageOptions{
		ConversationID: convID,
		SenderID:       "emp-1",
		SenderKind:     ParticipantEmployee,
		Content:        "are you there?",
	})
	before := p.conversationListCount()
	coord.HandleFrame(Frame{Type: FrameChatMessage})

	waitFor(t, 2*time.Second, func() bool {
		msgs, _ := store.Messages(convID)
		return len(msgs) == 2
	}, "refetch after push frame")
	waitFor(t, 2*time.Second, func() bool {
		return p.conversationListCount() > before
	}, "conversation list refetched")
}

func TestPullTimerRefetchesSelected(t *testing.T) {
	// With the push channel down entirely, the pull timer alone keeps the
	// open conversation converging on server state.
	p := newFakePlatform(t)
	convID := seedConversation(t, p, "hello")
	coord, store := newTestCoordinator(t, p, 30*time.Millisecond)

	coord.Select(convID)
	coord.Start()
	waitFor(t, 2*time.Second, func() bool {
		msgs, _ := store.Messages(convID)
		return len(msgs) == 1
	}, "initial load")

	other := NewClient(p.srv.URL)
	other.Messages().Send(context.Background(), SendMessageOptions{
		ConversationID: convID,
		SenderID:       "emp-1",
		SenderKind:     ParticipantEmployee,
		Content:        "typed while you were away",
	})

	waitFor(t, 2*time.Second, func() bool {
		msgs, _ := store.Messages(convID)
		return len(msgs) == 2
	}, "pull timer picked up the new message")
}

func TestPullTimerIdleWithoutSelection(t *testing.T) {
	p := newFakePlatform(t)
	seedConversation(t, p, "hello")
	coord, _ := newTestCoordinator(t, p, 20*time.Millisecond)

	coord.Start()
	time.Sleep(150 * time.Millisecond)
	coord.Stop()

	// No conversation open: the ticker must not hit the message endpoint.
	p.mu.Lock()
	total := 0
	for _, n := range p.messageCalls {
		total += n
	}
	p.mu.Unlock()
	if total != 0 {
		t.Fatalf("pull timer fetched messages with nothing selected: %d calls", total)
	}
}

func TestSendMessageRefetchesOnce(t *testing.T) {
	// A confirmed send triggers exactly one refetch of the conversation.
	p := newFakePlatform(t)
	convID := seedConversation(t, p, "")
	coord, _ := newTestCoordinator(t, p, time.Hour)

	coord.Select(convID)
	waitFor(t, 2*time.Second, func() bool {
		return p.messageCount(convID) >= 1
	}, "initial load")
	base := p.messageCount(convID)

	_, err := coord.SendMessage(context.Background(), SendMessageOptions{
		SenderID:   testIdentity.UserID,
		SenderKind: testIdentity.Kind,
		Content:    "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return p.messageCount(convID) == base+1
	}, "refetch after send")
	time.Sleep(100 * time.Millisecond)
	if got := p.messageCount(convID); got != base+1 {
		t.Fatalf("expected exactly one refetch after send, got %d extra", got-base)
	}
}

func TestSendMessageDefaultsToSelected(t *testing.T) {
	p := newFakePlatform(t)
	convID := seedConversation(t, p, "")
	coord, store := newTestCoordinator(t, p, time.Hour)

	coord.Select(convID)
	msg, err := coord.SendMessage(context.Background(), SendMessageOptions{
		SenderID: testIdentity.UserID,
		Content:  "routed to selection",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ConversationID != convID {
		t.Fatalf("message went to %s, selected was %s", msg.ConversationID, convID)
	}

	waitFor(t, 2*time.Second, func() bool {
		msgs, _ := store.Messages(convID)
		return len(msgs) == 1
	}, "cache reflects the send")
}

func TestSendMessageFailureNoRefetch(t *testing.T) {
	p := newFakePlatform(t)
	convID := seedConversation(t, p, "")
	coord, _ := newTestCoordinator(t, p, time.Hour)

	coord.Select(convID)
	waitFor(t, 2*time.Second, func() bool {
		return p.messageCount(convID) >= 1
	}, "initial load")
	base := p.messageCount(convID)

	p.mu.Lock()
	p.failSend = true
	p.mu.Unlock()

	if _, err := coord.SendMessage(context.Background(), SendMessageOptions{Content: "doomed"}); err == nil {
		t.Fatal("expected send error")
	}

	time.Sleep(100 * time.Millisecond)
	if got := p.messageCount(convID); got != base {
		t.Fatalf("failed send caused a refetch: %d -> %d", base, got)
	}
}

func TestStartConversationSelectsAndRefreshes(t *testing.T) {
	p := newFakePlatform(t)
	coord, store := newTestCoordinator(t, p, time.Hour)

	conv, msg, err := coord.StartConversation(context.Background(),
		CreateConversationOptions{ProjectID: "proj-1", ClientID: testIdentity.UserID, Kind: ConversationProject},
		SendMessageOptions{SenderID: testIdentity.UserID, SenderKind: testIdentity.Kind, Content: "kickoff"},
	)
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if coord.Selected() != conv.ID {
		t.Fatalf("new conversation not selected: %s", coord.Selected())
	}
	if msg.ConversationID != conv.ID {
		t.Fatalf("first message in wrong conversation: %s", msg.ConversationID)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(store.Conversations(testIdentity)) == 1
	}, "conversation list refreshed")
}

func TestMarkReadSwallowsFailure(t *testing.T) {
	// Read receipts are best effort: a failing mark-read call is logged and
	// otherwise invisible to the caller.
	p := newFakePlatform(t)
	p.failMarkRead = true
	convID := seedConversation(t, p, "hello")
	coord, _ := newTestCoordinator(t, p, time.Hour)

	coord.MarkRead(context.Background(), convID)

	p.mu.Lock()
	calls := len(p.readCalls)
	p.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one read call, got %d", calls)
	}
}

func TestAttachWiresPushFrames(t *testing.T) {
	p := newFakePlatform(t)
	convID := seedConversation(t, p, "hello")
	coord, store := newTestCoordinator(t, p, time.Minute)

	conn := newTestConn(t, p, testIdentity, time.Second)
	coord.Attach(conn)
	conn.Connect(context.Background())
	<-p.registered
	waitFor(t, time.Second, func() bool { return conn.State() == ConnOpen }, "connection open")

	coord.Select(convID)
	waitFor(t, 2*time.Second, func() bool {
		msgs, _ := store.Messages(convID)
		return len(msgs) == 1
	}, "initial load")

	other := NewClient(p.srv.URL)
	other.Messages().Send(context.Background(), SendMessageOptions{
		ConversationID: convID,
		SenderID:       "emp-1",
		SenderKind:     ParticipantEmployee,
		Content:        "pushed",
	})
	p.push(t, Frame{Type: FrameChatMessage})

	waitFor(t, 2*time.Second, func() bool {
		msgs, _ := store.Messages(convID)
		return len(msgs) == 2
	}, "push frame drove a refetch through the attached connection")
}

func TestStartStopIdempotent(t *testing.T) {
	p := newFakePlatform(t)
	coord, _ := newTestCoordinator(t, p, 20*time.Millisecond)

	coord.Start()
	coord.Start()
	coord.Stop()
	coord.Stop()
}
