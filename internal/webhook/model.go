package webhook

import (
	"slices"

	"github.com/sydlexius/releasewire/internal/event"
)

// Webhook is an endpoint notified about import runs.
type Webhook struct {
	Name string
	URL  string
	Type string
	// Events limits delivery to these event types. Empty means all import
	// events.
	Events []string
}

// Webhook types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
)

// Matches reports whether the webhook wants events of type t.
func (w *Webhook) Matches(t event.Type) bool {
	return len(w.Events) == 0 || slices.Contains(w.Events, string(t))
}
