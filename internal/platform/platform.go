package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConnected is returned by Send before Connect or after Close.
	ErrNotConnected = errors.New("platform: not connected")

	// ErrConnectionFailed wraps failures of the initial connection.
	ErrConnectionFailed = errors.New("platform: connection failed")

	// ErrInvalidEvent is returned for gateway events that cannot be decoded.
	ErrInvalidEvent = errors.New("platform: invalid event")
)

// User identifies a chat user.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// String returns the display name, falling back to the user name.
func (u User) String() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

// ReadyEvent is delivered once the gateway session is established.
type ReadyEvent struct {
	User    User   `json:"user"`
	Session string `json:"session_id,omitempty"`
}

// Message is a chat message delivered by the gateway.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id,omitempty"` // empty for direct messages
	Author    User      `json:"author"`
	RoleIDs   []int64   `json:"role_ids,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// IsDirect reports whether the message was sent outside a guild.
func (m Message) IsDirect() bool {
	return m.GuildID == ""
}

// EventHandler receives platform events. Implementations must be safe for
// concurrent use; events may arrive on different goroutines.
type EventHandler interface {
	HandleReady(ctx context.Context, ev ReadyEvent)
	HandleMessage(ctx context.Context, msg Message)
}

// Sender posts text to a channel.
type Sender interface {
	Send(ctx context.Context, channelID, content string) error
}

// Platform is the chat platform connection.
type Platform interface {
	Sender

	// Connect opens the connection and starts delivering events to h.
	// It does not retry; a failed connection is returned to the caller.
	Connect(ctx context.Context, h EventHandler) error

	// Latency returns the last reported gateway round-trip latency.
	Latency() time.Duration

	// Close disconnects. Events stop before Close returns.
	Close() error
}
