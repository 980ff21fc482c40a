package api

import (
	"slices"

	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/outbox"
	"github.com/matheus3301/opsms/internal/querycache"
)

// EmptyText is shown for a conversation without messages.
const EmptyText = "No messages"

// Chronological flattens c oldest first, the order a thread is read in.
func Chronological(c *querycache.Collection) []openphone.Message {
	if c == nil {
		return nil
	}
	msgs := slices.Collect(c.All())
	slices.Reverse(msgs)
	return msgs
}

// StatusGlyph returns the delivery mark shown next to a message.
func StatusGlyph(m openphone.Message) string {
	if outbox.IsSpeculative(m) {
		return "…"
	}
	switch m.Status {
	case openphone.StatusDelivered:
		return "✓✓"
	case openphone.StatusSent:
		return "✓"
	case openphone.StatusUndelivered, openphone.StatusFailed:
		return "✗"
	}
	return ""
}
