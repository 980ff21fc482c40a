package outbox

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/opsms/internal/openphone"
)

// SpeculativePrefix marks ids generated locally for unconfirmed messages.
// Server ids never carry it.
const SpeculativePrefix = "temp-"

// NewSpeculativeID returns a fresh speculative id of the form temp-<unixms>-<uuid>.
func NewSpeculativeID(now time.Time) string {
	return SpeculativePrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
}

// IsSpeculativeID reports whether id was generated by NewSpeculativeID.
func IsSpeculativeID(id string) bool {
	return strings.HasPrefix(id, SpeculativePrefix)
}

// IsSpeculative reports whether m is a locally pending message.
func IsSpeculative(m openphone.Message) bool {
	return IsSpeculativeID(m.ID)
}

func speculativeMessage(id string, d Draft, now time.Time) openphone.Message {
	return openphone.Message{
		ID:            id,
		To:            []string{d.Key.Participant},
		From:          d.Key.PhoneNumberID,
		Text:          d.Content,
		PhoneNumberID: d.Key.PhoneNumberID,
		Direction:     openphone.Outgoing,
		Status:        openphone.StatusSent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
