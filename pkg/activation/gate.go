// Package activation holds the process-wide on/off switch that decides whether chat
// messages reach the model, and the two reserved commands that flip it.
package activation

import (
	"strings"
	"sync/atomic"
)

// Default reserved commands and their acknowledgments.
const (
	DefaultActivateCommand   = "啟動"
	DefaultDeactivateCommand = "安靜"
	DefaultActivateReply     = "我是時下流行的 AI 智能，目前可以為您服務囉，歡迎來跟我互動~"
	DefaultDeactivateReply   = "感謝您的使用，若需要我的服務，請跟我說 「啟動」 謝謝~"
)

// Command identifies a reserved control message.
type Command int

const (
	// CommandNone means the text is ordinary chat.
	CommandNone Command = iota
	// CommandActivate turns the bot on.
	CommandActivate
	// CommandDeactivate turns the bot off.
	CommandDeactivate
)

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandActivate:
		return "activate"
	case CommandDeactivate:
		return "deactivate"
	default:
		return "invalid"
	}
}

// Commands configures the reserved command words and the replies sent for them.
type Commands struct {
	Activate        string
	Deactivate      string
	ActivateReply   string
	DeactivateReply string
}

// DefaultCommands returns the stock command words and acknowledgments.
func DefaultCommands() Commands {
	return Commands{
		Activate:        DefaultActivateCommand,
		Deactivate:      DefaultDeactivateCommand,
		ActivateReply:   DefaultActivateReply,
		DeactivateReply: DefaultDeactivateReply,
	}
}

// withDefaults trims the command words and fills empty fields from DefaultCommands.
func (c Commands) withDefaults() Commands {
	d := DefaultCommands()
	c.Activate = strings.TrimSpace(c.Activate)
	c.Deactivate = strings.TrimSpace(c.Deactivate)
	if c.Activate == "" {
		c.Activate = d.Activate
	}
	if c.Deactivate == "" {
		c.Deactivate = d.Deactivate
	}
	if c.ActivateReply == "" {
		c.ActivateReply = d.ActivateReply
	}
	if c.DeactivateReply == "" {
		c.DeactivateReply = d.DeactivateReply
	}
	return c
}

// Gate is the activation state machine. The zero value is not usable; use NewGate.
type Gate struct {
	commands Commands
	active   atomic.Bool
}

// NewGate creates a gate in the given initial state.
func NewGate(initial bool, commands Commands) *Gate {
	g := &Gate{commands: commands.withDefaults()}
	g.active.Store(initial)
	return g
}

// SetActive sets the state. Concurrent writers race and the last write wins.
func (g *Gate) SetActive(active bool) {
	g.active.Store(active)
}

// IsActive reports whether non-command messages should be answered.
func (g *Gate) IsActive() bool {
	return g.active.Load()
}

// Commands returns the configured command set.
func (g *Gate) Commands() Commands {
	return g.commands
}

// Match classifies text as a reserved command. Matching is exact and case-sensitive
// after trimming surrounding whitespace.
func (g *Gate) Match(text string) Command {
	switch strings.TrimSpace(text) {
	case g.commands.Activate:
		return CommandActivate
	case g.commands.Deactivate:
		return CommandDeactivate
	default:
		return CommandNone
	}
}

// Apply executes cmd and returns its acknowledgment. It reports false for CommandNone.
// Applying a command that matches the current state is allowed and answers the same way.
func (g *Gate) Apply(cmd Command) (string, bool) {
	switch cmd {
	case CommandActivate:
		g.SetActive(true)
		return g.commands.ActivateReply, true
	case CommandDeactivate:
		g.SetActive(false)
		return g.commands.DeactivateReply, true
	case CommandNone:
		return "", false
	default:
		return "", false
	}
}
