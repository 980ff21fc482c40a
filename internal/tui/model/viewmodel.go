// Package model holds TUI state loaded from the api.Service, independent of
// any widget.
package model

import (
	"context"
	"sync"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/matheus3301/opsms/internal/store"
)

// ViewModel caches the phone number and conversation listings and the
// current selection.
type ViewModel struct {
	mu sync.RWMutex

	svc           *api.Service
	phones        []openphone.PhoneNumber
	conversations []openphone.Conversation
	activePhone   *openphone.PhoneNumber
}

// NewViewModel creates a view model reading from svc.
func NewViewModel(svc *api.Service) *ViewModel {
	return &ViewModel{svc: svc}
}

// LoadPhoneNumbers fetches the workspace's phone numbers.
func (vm *ViewModel) LoadPhoneNumbers(ctx context.Context) error {
	phones, err := vm.svc.PhoneNumbers(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.phones = phones
	vm.mu.Unlock()
	return nil
}

// PhoneNumbers returns the last loaded phone numbers.
func (vm *ViewModel) PhoneNumbers() []openphone.PhoneNumber {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.phones
}

// SelectPhone makes the phone number with id the active one. Conversations of
// the previous phone number are dropped.
func (vm *ViewModel) SelectPhone(id string) (openphone.PhoneNumber, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for i := range vm.phones {
		if vm.phones[i].ID == id {
			p := vm.phones[i]
			if vm.activePhone == nil || vm.activePhone.ID != id {
				vm.conversations = nil
			}
			vm.activePhone = &p
			return p, true
		}
	}
	return openphone.PhoneNumber{}, false
}

// ActivePhone returns the selected phone number.
func (vm *ViewModel) ActivePhone() (openphone.PhoneNumber, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.activePhone == nil {
		return openphone.PhoneNumber{}, false
	}
	return *vm.activePhone, true
}

// LoadConversations fetches the conversations of the active phone number.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	phone, ok := vm.ActivePhone()
	if !ok {
		return nil
	}
	convs, err := vm.svc.Conversations(ctx, phone.ID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	// The selection may have moved on while the request was in flight.
	if vm.activePhone != nil && vm.activePhone.ID == phone.ID {
		vm.conversations = convs
	}
	vm.mu.Unlock()
	return nil
}

// Conversations returns the last loaded conversations of the active phone number.
func (vm *ViewModel) Conversations() []openphone.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Thread returns the thread with participant on the active phone number.
func (vm *ViewModel) Thread(participant string) (*Thread, bool) {
	phone, ok := vm.ActivePhone()
	if !ok || participant == "" {
		return nil, false
	}
	key := querycache.Key{PhoneNumberID: phone.ID, Participant: participant}
	return &Thread{
		Query:    vm.svc.Messages(key),
		Mutation: vm.svc.Send(key),
	}, true
}

// History returns the most recent journaled sends.
func (vm *ViewModel) History(limit int) ([]store.SendEntry, error) {
	return vm.svc.History(limit)
}
