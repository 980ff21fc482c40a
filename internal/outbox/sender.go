// Package outbox sends messages optimistically: the message is shown in the
// conversation cache before the server confirms it, then reconciled with the
// server's copy or rolled back.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/pages"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/matheus3301/opsms/internal/sendstate"
	"go.uber.org/zap"
)

// ErrSendInFlight is returned when a conversation already has a pending send
// and concurrent sends were not allowed.
var ErrSendInFlight = errors.New("a send is already pending for this conversation")

// Transport submits messages to the server.
type Transport interface {
	SendMessage(ctx context.Context, p openphone.SendMessageParams) (*openphone.SendMessageResponse, error)
}

// Journal records the outcome of every send. *store.DB implements it.
type Journal interface {
	RecordSend(speculativeID, phoneNumberID, participant, body string) error
	MarkSendReconciled(speculativeID, serverMsgID string) error
	MarkSendRolledBack(speculativeID, errMsg string) error
}

// Draft is a message the user wants to send. It is sent from
// Key.PhoneNumberID to Key.Participant.
type Draft struct {
	Key     querycache.Key
	Content string
}

func (d Draft) params() openphone.SendMessageParams {
	p := openphone.SendMessageParams{Content: d.Content, From: d.Key.PhoneNumberID}
	if d.Key.Participant != "" {
		p.To = []string{d.Key.Participant}
	}
	return p
}

// SendFailure is returned when the server rejected a send or could not be
// reached. The conversation has already been rolled back when it is returned.
type SendFailure struct {
	Key           querycache.Key
	SpeculativeID string
	Err           error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Key.Participant, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }

// Sender coordinates optimistic sends against the conversation cache.
type Sender struct {
	cache     *querycache.Store
	transport Transport
	states    *sendstate.Registry
	journal   Journal
	logger    *zap.Logger

	now             func() time.Time
	newID           func(time.Time) string
	allowConcurrent bool

	mu       sync.Mutex
	inflight map[querycache.Key]int
}

type Option func(*Sender)

// WithJournal records every send in j.
func WithJournal(j Journal) Option {
	return func(s *Sender) { s.journal = j }
}

// WithClock overrides time.Now for speculative timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

// WithIDGenerator overrides NewSpeculativeID.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(s *Sender) { s.newID = gen }
}

// AllowConcurrentSends lets a conversation have more than one pending send.
func AllowConcurrentSends() Option {
	return func(s *Sender) { s.allowConcurrent = true }
}

// NewSender creates a coordinator writing to cache and submitting through t.
func NewSender(cache *querycache.Store, t Transport, states *sendstate.Registry, logger *zap.Logger, opts ...Option) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sender{
		cache:     cache,
		transport: t,
		states:    states,
		logger:    logger,
		now:       time.Now,
		newID:     NewSpeculativeID,
		inflight:  make(map[querycache.Key]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsPending reports whether key has a send in flight.
func (s *Sender) IsPending(key querycache.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[key] > 0
}

// Send shows d in the conversation immediately and submits it. On success the
// speculative message is replaced by the server's copy, which is returned.
// On failure the conversation is restored to what it was before the send
// and a *SendFailure is returned. Either way fetches started while the send
// was pending are cancelled and the conversation is invalidated so it gets
// refetched.
//
// Invalid drafts return an *openphone.ValidationError without touching the
// cache or the transport.
func (s *Sender) Send(ctx context.Context, d Draft) (openphone.Message, error) {
	params := d.params()
	if err := openphone.ValidateSend(params); err != nil {
		return openphone.Message{}, err
	}
	if err := s.acquire(d.Key); err != nil {
		return openphone.Message{}, err
	}

	key := d.Key
	s.cache.Cancel(key)

	now := s.now()
	specID := s.newID(now)
	speculative := speculativeMessage(specID, d, now)

	var previous *querycache.Collection
	s.cache.Update(key, func(cur *querycache.Collection) *querycache.Collection {
		previous = cur
		return pages.InsertAtHead(cur, speculative)
	})
	s.journalRecord(specID, d)

	resp, err := s.transport.SendMessage(ctx, params)
	// Reads issued while the send was pending predate it on the server.
	s.cache.Cancel(key)
	if err != nil {
		s.cache.Set(key, previous)
		s.journalRollback(specID, err)
		s.release(key, sendstate.RolledBack)
		s.cache.Invalidate(key)

		s.logger.Warn("send failed, conversation rolled back",
			zap.Stringer("key", key),
			zap.String("speculative_id", specID),
			zap.Error(err),
		)
		return openphone.Message{}, &SendFailure{Key: key, SpeculativeID: specID, Err: err}
	}

	confirmed := resp.Data
	s.cache.Update(key, func(cur *querycache.Collection) *querycache.Collection {
		return pages.ReplaceByID(cur, specID, confirmed)
	})
	s.journalReconcile(specID, confirmed.ID)
	s.release(key, sendstate.Reconciled)
	s.cache.Invalidate(key)

	s.logger.Info("message sent",
		zap.Stringer("key", key),
		zap.String("speculative_id", specID),
		zap.String("server_msg_id", confirmed.ID),
	)
	return confirmed, nil
}

func (s *Sender) acquire(key querycache.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.inflight[key]
	if n > 0 && !s.allowConcurrent {
		return ErrSendInFlight
	}
	s.inflight[key] = n + 1
	if n == 0 {
		s.transition(key, sendstate.Pending)
	}
	return nil
}

func (s *Sender) release(key querycache.Key, outcome sendstate.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[key]--
	if s.inflight[key] > 0 {
		return
	}
	delete(s.inflight, key)
	s.transition(key, outcome)
}

func (s *Sender) transition(key querycache.Key, to sendstate.State) {
	if s.states == nil {
		return
	}
	if err := s.states.For(key.String()).Transition(to); err != nil {
		s.logger.Error("send state", zap.Stringer("key", key), zap.Error(err))
	}
}

func (s *Sender) journalRecord(specID string, d Draft) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordSend(specID, d.Key.PhoneNumberID, d.Key.Participant, d.Content); err != nil {
		s.logger.Warn("failed to journal send", zap.String("speculative_id", specID), zap.Error(err))
	}
}

func (s *Sender) journalReconcile(specID, serverID string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkSendReconciled(specID, serverID); err != nil {
		s.logger.Warn("failed to journal reconcile", zap.String("speculative_id", specID), zap.Error(err))
	}
}

func (s *Sender) journalRollback(specID string, cause error) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkSendRolledBack(specID, cause.Error()); err != nil {
		s.logger.Warn("failed to journal rollback", zap.String("speculative_id", specID), zap.Error(err))
	}
}
