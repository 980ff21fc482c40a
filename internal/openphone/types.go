package openphone

import (
	"time"

	"github.com/matheus3301/opsms/internal/pages"
)

// Direction tells whether a message was sent or received by the local number.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Known message statuses. The server may report others.
const (
	StatusQueued      = "queued"
	StatusSent        = "sent"
	StatusDelivered   = "delivered"
	StatusUndelivered = "undelivered"
	StatusReceived    = "received"
	StatusFailed      = "failed"
)

// Message is a single SMS as returned by the API.
type Message struct {
	ID            string    `json:"id"`
	To            []string  `json:"to"`
	From          string    `json:"from"`
	Text          string    `json:"text"`
	PhoneNumberID string    `json:"phoneNumberId"`
	Direction     Direction `json:"direction"`
	UserID        *string   `json:"userId"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ItemID implements pages.Identifiable.
func (m Message) ItemID() string { return m.ID }

// MessagesResponse is one page of GET /v1/messages, newest first.
type MessagesResponse struct {
	Data          []Message `json:"data"`
	TotalItems    int       `json:"totalItems"`
	NextPageToken *string   `json:"nextPageToken"`
}

// Page converts the response into a cache page.
func (r *MessagesResponse) Page() pages.Page[Message] {
	p := pages.Page[Message]{Items: r.Data, TotalItems: r.TotalItems}
	if r.NextPageToken != nil {
		p.NextPageToken = *r.NextPageToken
	}
	return p
}

// ListMessagesParams filters GET /v1/messages.
type ListMessagesParams struct {
	PhoneNumberID string
	Participants  []string
	UserID        string
	CreatedAfter  string
	CreatedBefore string
	PageToken     string
	MaxResults    int
}

// SendMessageParams is the body of POST /v1/messages.
type SendMessageParams struct {
	Content string   `json:"content"`
	From    string   `json:"from"`
	To      []string `json:"to"`
}

// SendMessageResponse wraps the created message.
type SendMessageResponse struct {
	Data Message `json:"data"`
}

// Conversation is a thread between a local phone number and its participants.
type Conversation struct {
	ID             string     `json:"id"`
	PhoneNumberID  string     `json:"phoneNumberId"`
	Name           *string    `json:"name"`
	AssignedTo     *string    `json:"assignedTo"`
	Participants   []string   `json:"participants"`
	LastActivityAt *time.Time `json:"lastActivityAt"`
	CreatedAt      *time.Time `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt"`
}

// Participant returns the first participant address, or "".
func (c Conversation) Participant() string {
	if len(c.Participants) == 0 {
		return ""
	}
	return c.Participants[0]
}

// ActivityAt is UpdatedAt falling back to CreatedAt.
func (c Conversation) ActivityAt() time.Time {
	switch {
	case c.UpdatedAt != nil:
		return *c.UpdatedAt
	case c.CreatedAt != nil:
		return *c.CreatedAt
	}
	return time.Time{}
}

// ConversationsResponse is one page of GET /v1/conversations.
type ConversationsResponse struct {
	Data          []Conversation `json:"data"`
	TotalItems    int            `json:"totalItems"`
	NextPageToken *string        `json:"nextPageToken"`
}

// ListConversationsParams filters GET /v1/conversations.
type ListConversationsParams struct {
	PhoneNumbers    []string
	UserID          string
	CreatedAfter    string
	CreatedBefore   string
	UpdatedAfter    string
	UpdatedBefore   string
	ExcludeInactive *bool
	PageToken       string
	MaxResults      int
}

// PhoneNumberUser is a workspace member with access to a phone number.
type PhoneNumberUser struct {
	ID        string  `json:"id"`
	GroupID   string  `json:"groupId"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
}

// RestrictionStatus maps a region to "restricted" or "unrestricted".
type RestrictionStatus struct {
	CA   string `json:"CA"`
	US   string `json:"US"`
	Intl string `json:"Intl"`
}

// PhoneNumberRestrictions lists messaging and calling restrictions.
type PhoneNumberRestrictions struct {
	Messaging RestrictionStatus `json:"messaging"`
	Calling   RestrictionStatus `json:"calling"`
}

// PhoneNumber is a local number owned by the workspace.
type PhoneNumber struct {
	ID              string                  `json:"id"`
	GroupID         string                  `json:"groupId"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
	Name            string                  `json:"name"`
	Number          string                  `json:"number"`
	FormattedNumber *string                 `json:"formattedNumber"`
	Forward         *string                 `json:"forward"`
	PortRequestID   *string                 `json:"portRequestId"`
	PortingStatus   *string                 `json:"portingStatus"`
	Symbol          *string                 `json:"symbol"`
	Users           []PhoneNumberUser       `json:"users"`
	Restrictions    PhoneNumberRestrictions `json:"restrictions"`
}

// Display returns the formatted number when present, else the raw number.
func (p PhoneNumber) Display() string {
	if p.FormattedNumber != nil && *p.FormattedNumber != "" {
		return *p.FormattedNumber
	}
	return p.Number
}

// PhoneNumbersResponse is the body of GET /v1/phone-numbers.
type PhoneNumbersResponse struct {
	Data []PhoneNumber `json:"data"`
}

// ListPhoneNumbersParams filters GET /v1/phone-numbers.
type ListPhoneNumbersParams struct {
	UserID string
}
