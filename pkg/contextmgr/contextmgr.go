// Package contextmgr manages bounded per-user conversation histories.
//
// A history optionally starts with the configured system directive, which is inserted
// exactly once on first contact and survives every trim. The rest of the history is a
// sliding window of user and assistant messages. All mutation of one user's history
// happens inside a Turn, which holds that user's lock.
package contextmgr

import (
	"fmt"
	"strings"

	"linechat/pkg/llm"
)

// DefaultWindow is the maximum number of messages kept per user, directive included.
const DefaultWindow = 10

// Message is one immutable role/content pair.
type Message = llm.CompletionMessage

// Options configures a Manager.
type Options struct {
	// Directive is the fixed system message. Empty disables directive injection.
	Directive string
	// Window bounds the history length. Values below the minimum are raised to it.
	Window int
}

// History is the ordered message sequence for one user.
type History struct {
	messages []Message
}

// IsEmpty reports whether the history has never been seeded.
func (h *History) IsEmpty() bool {
	return len(h.messages) == 0
}

// Len returns the number of messages in the history.
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the history.
func (h *History) Messages() []Message {
	result := make([]Message, len(h.messages))
	copy(result, h.messages)
	return result
}

func (h *History) append(msg Message) {
	h.messages = append(h.messages, msg)
}

// trim enforces the window. A leading system message is kept and the most recent
// window-1 messages follow it; without one, the most recent window messages are kept.
func (h *History) trim(window int) {
	if len(h.messages) <= window {
		return
	}

	trimmed := make([]Message, 0, window)
	if h.messages[0].Role == llm.RoleSystem {
		trimmed = append(trimmed, h.messages[0])
		trimmed = append(trimmed, h.messages[len(h.messages)-(window-1):]...)
	} else {
		trimmed = append(trimmed, h.messages[len(h.messages)-window:]...)
	}
	h.messages = trimmed
}

// Summary returns a brief description of the history for logs.
func (h *History) Summary() string {
	if len(h.messages) == 0 {
		return "empty history"
	}

	counts := make(map[llm.CompletionRole]int)
	for i := range h.messages {
		counts[h.messages[i].Role]++
	}

	parts := make([]string, 0, len(counts))
	for _, role := range []llm.CompletionRole{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		if counts[role] > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", role, counts[role]))
		}
	}
	return fmt.Sprintf("%d messages - %s", len(h.messages), strings.Join(parts, ", "))
}

// Manager applies the directive and window policy to histories held in a Store.
type Manager struct {
	store     *Store
	directive string
	window    int
}

// NewManager creates a manager over store.
func NewManager(store *Store, opts Options) *Manager {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	// A directive plus the newest message must always fit.
	if opts.Directive != "" && window < 2 {
		window = 2
	}
	return &Manager{
		store:     store,
		directive: opts.Directive,
		window:    window,
	}
}

// Directive returns the configured system directive ("" when disabled).
func (m *Manager) Directive() string {
	return m.directive
}

// Window returns the effective window size.
func (m *Manager) Window() int {
	return m.window
}

// Store returns the underlying store.
func (m *Manager) Store() *Store {
	return m.store
}

// Begin starts a turn for userID, blocking until no other turn for the same user is active.
// The caller must call End.
func (m *Manager) Begin(userID string) *Turn {
	e := m.store.entry(userID)
	e.mu.Lock()
	return &Turn{manager: m, entry: e, userID: userID}
}

// PrepareRequest appends text for userID and returns the messages to submit.
// It runs as a single-step turn.
func (m *Manager) PrepareRequest(userID, text string) []Message {
	turn := m.Begin(userID)
	defer turn.End()
	return turn.Prepare(text)
}

// RecordReply appends the model's reply for userID as a single-step turn.
func (m *Manager) RecordReply(userID, reply string) {
	turn := m.Begin(userID)
	defer turn.End()
	turn.Record(reply)
}

// Turn is exclusive access to one user's history.
type Turn struct {
	manager *Manager
	entry   *entry
	userID  string
	ended   bool
}

// UserID returns the user this turn belongs to.
func (t *Turn) UserID() string {
	return t.userID
}

// Prepare seeds the history with the directive on first contact, appends the user
// message, trims, and returns a copy of the full history to submit.
func (t *Turn) Prepare(text string) []Message {
	h := &t.entry.history
	if h.IsEmpty() && t.manager.directive != "" {
		h.append(llm.NewSystemMessage(t.manager.directive))
	}
	h.append(llm.NewUserMessage(text))
	h.trim(t.manager.window)
	return h.Messages()
}

// Record appends the assistant reply and trims.
func (t *Turn) Record(reply string) {
	h := &t.entry.history
	h.append(llm.NewAssistantMessage(reply))
	h.trim(t.manager.window)
}

// Summary describes the current history for logs.
func (t *Turn) Summary() string {
	return t.entry.history.Summary()
}

// End releases the user's lock. Calling End more than once is a no-op.
func (t *Turn) End() {
	if t.ended {
		return
	}
	t.ended = true
	t.entry.mu.Unlock()
}
