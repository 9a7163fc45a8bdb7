package chatsync

import "time"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error returned by the chat API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ParticipantKind is the role tag attached to a conversation participant.
// It is used both for addressing (push-channel registration, conversation
// list lookup) and for display.
type ParticipantKind string

const (
	ParticipantClient   ParticipantKind = "client"
	ParticipantEmployee ParticipantKind = "employee"
	ParticipantAdmin    ParticipantKind = "admin"
)

// Identity is a participant identity: user id plus participant kind.
// One push channel and one conversation list exist per identity.
type Identity struct {
	UserID string          `json:"userId"`
	Kind   ParticipantKind `json:"userType"`
}

// IsZero reports whether the identity has not been resolved yet.
func (i Identity) IsZero() bool {
	return i.UserID == "" || i.Kind == ""
}

// ============================================================================
// Conversation
// ============================================================================

// ConversationKind distinguishes project-linked conversations from direct ones.
type ConversationKind string

const (
	ConversationProject ConversationKind = "project"
	ConversationDirect  ConversationKind = "direct"
)

// ConversationStatus is the open/closed lifecycle flag. Conversations are
// never hard-deleted; they are closed via a status transition only.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is a chat thread between platform participants. The optional
// project/client/employee references identify the participants; LastMessageAt
// is monotonically non-decreasing and updated only by message arrival, and is
// the list ordering key.
type Conversation struct {
	ID            string             `json:"id"`
	ProjectID     string             `json:"projectId,omitempty"`
	ClientID      string             `json:"clientId,omitempty"`
	EmployeeID    string             `json:"employeeId,omitempty"`
	Kind          ConversationKind   `json:"type"`
	Status        ConversationStatus `json:"status"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// ============================================================================
// Message
// ============================================================================

// MessageKind tags the message content: plain text or an attachment with a
// filename and URL.
type MessageKind string

const (
	MessageText       MessageKind = "text"
	MessageAttachment MessageKind = "attachment"
)

// Message belongs exclusively to its parent conversation. Sender display name
// is denormalized at send time and does not update retroactively. Messages
// are ordered by CreatedAt for display; two messages created in the same
// instant have undefined relative order.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	SenderID       string          `json:"senderId"`
	SenderKind     ParticipantKind `json:"senderType"`
	SenderName     string          `json:"senderName"`
	Content        string          `json:"content"`
	Kind           MessageKind     `json:"messageType"`
	FileName       string          `json:"fileName,omitempty"`
	FileURL        string          `json:"fileUrl,omitempty"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ============================================================================
// Request Options
// ============================================================================

// CreateConversationOptions names the participants of a new conversation.
// No duplicate check is performed: two create calls for the same
// project/participant pair yield two distinct conversations.
type CreateConversationOptions struct {
	ProjectID  string           `json:"projectId,omitempty"`
	ClientID   string           `json:"clientId,omitempty"`
	EmployeeID string           `json:"employeeId,omitempty"`
	Kind       ConversationKind `json:"type"`
}

// SendMessageOptions carries a full message draft, including the sender
// display name captured at send time.
type SendMessageOptions struct {
	ConversationID string          `json:"conversationId"`
	SenderID       string          `json:"senderId"`
	SenderKind     ParticipantKind `json:"senderType"`
	SenderName     string          `json:"senderName"`
	Content        string          `json:"content"`
	Kind           MessageKind     `json:"messageType"`
	FileName       string          `json:"fileName,omitempty"`
	FileURL        string          `json:"fileUrl,omitempty"`
}
