// Package api is the surface the TUI and CLI build on: read-only listings of
// phone numbers and conversations, a query handle per conversation, and a
// mutation handle for sending.
package api

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/opsms/internal/bus"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/outbox"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/matheus3301/opsms/internal/store"
	syncer "github.com/matheus3301/opsms/internal/sync"
	"go.uber.org/zap"
)

// Directory lists phone numbers and conversations. *openphone.Client implements it.
type Directory interface {
	ListPhoneNumbers(ctx context.Context, p openphone.ListPhoneNumbersParams) (*openphone.PhoneNumbersResponse, error)
	ListConversations(ctx context.Context, p openphone.ListConversationsParams) (*openphone.ConversationsResponse, error)
}

// SendLog reads the send journal. *store.DB implements it.
type SendLog interface {
	ListSends(limit int) ([]store.SendEntry, error)
}

// Service wires the cache, pager and sender behind per-conversation handles.
type Service struct {
	dir      Directory
	cache    *querycache.Store
	pager    *syncer.Pager
	sender   *outbox.Sender
	sendLog  SendLog
	bus      *bus.Bus
	pageSize int
	logger   *zap.Logger
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Directory Directory
	Cache     *querycache.Store
	Pager     *syncer.Pager
	Sender    *outbox.Sender
	SendLog   SendLog
	Bus       *bus.Bus
	PageSize  int
	Logger    *zap.Logger
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		dir:      d.Directory,
		cache:    d.Cache,
		pager:    d.Pager,
		sender:   d.Sender,
		sendLog:  d.SendLog,
		bus:      d.Bus,
		pageSize: d.PageSize,
		logger:   logger,
	}
}

// PhoneNumbers returns the workspace's phone numbers.
func (s *Service) PhoneNumbers(ctx context.Context) ([]openphone.PhoneNumber, error) {
	resp, err := s.dir.ListPhoneNumbers(ctx, openphone.ListPhoneNumbersParams{})
	if err != nil {
		return nil, fmt.Errorf("list phone numbers: %w", err)
	}
	return resp.Data, nil
}

// Conversations returns the conversations of one phone number, most recently
// active first.
func (s *Service) Conversations(ctx context.Context, phoneNumberID string) ([]openphone.Conversation, error) {
	resp, err := s.dir.ListConversations(ctx, openphone.ListConversationsParams{
		PhoneNumbers: []string{phoneNumberID},
		MaxResults:   s.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs := slices.Clone(resp.Data)
	slices.SortStableFunc(convs, func(a, b openphone.Conversation) int {
		return cmp.Compare(b.ActivityAt().UnixNano(), a.ActivityAt().UnixNano())
	})
	return convs, nil
}

// Messages returns the query handle for a conversation.
func (s *Service) Messages(key querycache.Key) *MessagesQuery {
	return &MessagesQuery{key: key, cache: s.cache, pager: s.pager, bus: s.bus, logger: s.logger}
}

// Send returns the mutation handle for a conversation.
func (s *Service) Send(key querycache.Key) *SendMutation {
	return &SendMutation{key: key, sender: s.sender}
}

// History returns the most recent sends, newest first.
func (s *Service) History(limit int) ([]store.SendEntry, error) {
	if s.sendLog == nil {
		return nil, nil
	}
	return s.sendLog.ListSends(limit)
}
