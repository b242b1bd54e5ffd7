package chat

import (
	"time"

	"github.com/google/uuid"

	"problinx/internal/domain"
)

const greetingText = "Hello! I'm here to help you. How can I assist you today?"

// HistoryWindow is how many prior user turns are forwarded as context.
const HistoryWindow = 3

// History holds the rolling chat transcript for one conversation. It is
// owned by the caller (the widget or CLI session), not by the Dispatcher;
// turns are append-only and ordered by insertion. Not safe for concurrent
// use.
type History struct {
	turns []domain.Message
	now   func() time.Time
}

// NewHistory returns a transcript seeded with the fixed bot greeting.
func NewHistory() *History {
	h := &History{now: time.Now}
	h.Clear()
	return h
}

// Add appends a turn with the given sender role.
func (h *History) Add(sender, text string) domain.Message {
	m := domain.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: h.now(),
	}
	h.turns = append(h.turns, m)
	return m
}

// Clear resets the transcript back to the initial greeting.
func (h *History) Clear() {
	if h.now == nil {
		h.now = time.Now
	}
	h.turns = []domain.Message{{
		ID:        uuid.NewString(),
		Text:      greetingText,
		Sender:    "bot",
		Timestamp: h.now(),
	}}
}

// Turns returns the transcript in insertion order.
func (h *History) Turns() []domain.Message {
	out := make([]domain.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

// RecentUserTexts returns the last n user-authored turns, oldest first,
// for use as dispatcher context.
func (h *History) RecentUserTexts(n int) []string {
	var texts []string
	for _, m := range h.turns {
		if m.Sender == "user" {
			texts = append(texts, m.Text)
		}
	}
	if len(texts) > n {
		texts = texts[len(texts)-n:]
	}
	return texts
}
