// Package analyst holds the AI analyst chat: a client-side assistant with an
// offline fallback, the keyword engine used by the mock backend, and
// markdown rendering for terminals.
package analyst

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"backdash/internal/domain"
)

// Chatter is the backend call the assistant depends on.
type Chatter interface {
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

// Role identifies who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation.
type Message struct {
	ID        string
	Role      Role
	Content   string // markdown
	Type      ResponseType
	Fallback  bool // answered offline after a backend failure
	Err       error
	Timestamp time.Time
}

// Assistant keeps a conversation with the backend analyst.
type Assistant struct {
	chat Chatter
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	history []Message
}

// NewAssistant creates an assistant backed by chat.
func NewAssistant(chat Chatter, log *slog.Logger) *Assistant {
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{chat: chat, log: log, now: time.Now}
}

// Ask sends question about runID (may be empty) and returns the answer. A
// backend failure never surfaces as an error: the answer falls back to an
// offline response and records the cause in Message.Err.
func (a *Assistant) Ask(ctx context.Context, question, runID string) Message {
	a.append(Message{ID: uuid.NewString(), Role: RoleUser, Content: question, Timestamp: a.now()})

	req := domain.ChatRequest{Message: question, RunID: runID}
	if runID != "" {
		req.Context = map[string]any{"run_id": runID}
	}

	reply := Message{ID: uuid.NewString(), Role: RoleAssistant}
	resp, err := a.chat.Chat(ctx, req)
	if err != nil {
		a.log.Warn("analyst unavailable, using offline answer", "error", err)
		reply.Content = Fallback(question)
		reply.Type = DetectType(question)
		reply.Fallback = true
		reply.Err = err
	} else {
		reply.Content = resp.Response
		reply.Type = typeFromMetadata(resp.Metadata, question)
	}
	reply.Timestamp = a.now()
	a.append(reply)
	return reply
}

func typeFromMetadata(md map[string]any, question string) ResponseType {
	if s, ok := md["type"].(string); ok && s != "" {
		return ResponseType(s)
	}
	return DetectType(question)
}

func (a *Assistant) append(m Message) {
	a.mu.Lock()
	a.history = append(a.history, m)
	a.mu.Unlock()
}

// History returns a copy of the conversation so far.
func (a *Assistant) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// Reset clears the conversation.
func (a *Assistant) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}
