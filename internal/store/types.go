package store

// Snapshot is a persisted message collection for one conversation.
// Data is the JSON encoding of the collection.
type Snapshot struct {
	Key           string
	PhoneNumberID string
	Participant   string
	Data          []byte
	UpdatedAt     int64
}

// SendStatus is the outcome of a journaled send.
type SendStatus string

const (
	SendPending    SendStatus = "pending"
	SendReconciled SendStatus = "reconciled"
	SendRolledBack SendStatus = "rolled_back"
	SendAbandoned  SendStatus = "abandoned"
)

// SendEntry is one row of the send journal.
type SendEntry struct {
	ID            int64
	SpeculativeID string
	PhoneNumberID string
	Participant   string
	Body          string
	Status        SendStatus
	ServerMsgID   string
	ErrorMessage  string
	CreatedAt     int64
	UpdatedAt     int64
}
