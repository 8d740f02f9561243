package confirmation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/haltman-io/mailfwd/internal/domain"
	"github.com/haltman-io/mailfwd/internal/mailer"
	"github.com/haltman-io/mailfwd/internal/repository/postgres"
)

// memStore is an in-memory PendingStore with the same conditional-write
// semantics as the database implementation: predicates are evaluated under
// one lock, so it is safe to hammer from concurrent goroutines.
type memStore struct {
	mu     sync.Mutex
	rows   []*domain.PendingConfirmation
	nextID int
	now    func() time.Time

	failGet    error
	failCreate error
	failRotate error
	failBump   error
}

func newMemStore() *memStore {
	return &memStore{now: time.Now}
}

func (s *memStore) live(p *domain.PendingConfirmation) bool {
	return p.Status == domain.StatusPending && p.ExpiresAt.After(s.now())
}

func (s *memStore) GetActivePendingByEmail(_ context.Context, email string) (*domain.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	var newest *domain.PendingConfirmation
	for _, p := range s.rows {
		if p.Email == email && s.live(p) {
			if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
				newest = p
			}
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (s *memStore) CreatePending(_ context.Context, params postgres.CreatePendingParams) (*domain.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	now := s.now()
	for _, p := range s.rows {
		if p.Email == params.Email && p.Status == domain.StatusPending && !p.ExpiresAt.After(now) {
			p.Status = domain.StatusExpired
		}
	}
	s.nextID++
	row := &domain.PendingConfirmation{
		ID:          fmt.Sprintf("pc-%d", s.nextID),
		Email:       params.Email,
		TokenHash:   append([]byte(nil), params.TokenHash...),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(params.TTLMinutes) * time.Minute),
		SendCount:   1,
		LastSentAt:  now,
		Intent:      params.Intent,
		AliasName:   params.AliasName,
		AliasDomain: params.AliasDomain,
		RequestIP:   params.RequestIP,
		UserAgent:   params.UserAgent,
	}
	s.rows = append(s.rows, row)
	cp := *row
	return &cp, nil
}

func (s *memStore) RotateTokenForPending(_ context.Context, params postgres.RotateParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRotate != nil {
		return false, s.failRotate
	}
	now := s.now()
	rotated := false
	for _, p := range s.rows {
		if p.Email == params.Email && s.live(p) {
			p.TokenHash = append([]byte(nil), params.TokenHash...)
			p.ExpiresAt = now.Add(time.Duration(params.TTLMinutes) * time.Minute)
			p.SendCount++
			p.LastSentAt = now
			rotated = true
		}
	}
	return rotated, nil
}

func (s *memStore) GetPendingByTokenHash(_ context.Context, hash []byte) (*domain.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	for _, p := range s.rows {
		if bytes.Equal(p.TokenHash, hash) && s.live(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) MarkConfirmedByID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.ID == id && s.live(p) {
			t := s.now()
			p.Status = domain.StatusConfirmed
			p.ConfirmedAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) BumpConfirmAttemptsByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBump != nil {
		return s.failBump
	}
	for _, p := range s.rows {
		if p.ID == id {
			p.ConfirmAttempts++
		}
	}
	return nil
}

// find returns the stored row by id, for assertions.
func (s *memStore) find(id string) *domain.PendingConfirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.ID == id {
			cp := *p
			return &cp
		}
	}
	return nil
}

// fakeSender records dispatched mail.
type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last() mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return mailer.Message{}
	}
	return f.sent[len(f.sent)-1]
}

var reTokenParam = regexp.MustCompile(`\?token=([A-Za-z0-9]+)`)

// lastToken extracts the raw token from the most recent mail body.
func (f *fakeSender) lastToken() string {
	m := reTokenParam.FindStringSubmatch(f.last().Text)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

// fakeAliases is an in-memory AliasDirectory.
type fakeAliases struct {
	mu      sync.Mutex
	byAddr  map[string]*domain.Alias
	nextID  int
	failGet error
}

func newFakeAliases() *fakeAliases {
	return &fakeAliases{byAddr: make(map[string]*domain.Alias)}
}

func (f *fakeAliases) add(address, gotoEmail string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.byAddr[address] = &domain.Alias{
		ID:      fmt.Sprintf("al-%d", f.nextID),
		Address: address,
		Goto:    gotoEmail,
		Active:  active,
	}
}

func (f *fakeAliases) GetByAddress(_ context.Context, address string) (*domain.Alias, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	a, ok := f.byAddr[address]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAliases) ExistsByAddress(_ context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byAddr[address]
	return ok, nil
}

func (f *fakeAliases) CreateIfNotExists(_ context.Context, address, gotoEmail, domainID string) (bool, *domain.Alias, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byAddr[address]; ok {
		cp := *a
		return false, &cp, nil
	}
	f.nextID++
	f.byAddr[address] = &domain.Alias{
		ID:       fmt.Sprintf("al-%d", f.nextID),
		Address:  address,
		Goto:     gotoEmail,
		Active:   true,
		DomainID: domainID,
	}
	return true, nil, nil
}

func (f *fakeAliases) DeleteByAddress(_ context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byAddr[address]; !ok {
		return false, nil
	}
	delete(f.byAddr, address)
	return true, nil
}

// fakeDomains is an in-memory DomainRegistry.
type fakeDomains struct {
	active map[string]string // name -> id
}

func newFakeDomains(names ...string) *fakeDomains {
	f := &fakeDomains{active: make(map[string]string)}
	for i, n := range names {
		f.active[n] = fmt.Sprintf("dom-%d", i+1)
	}
	return f
}

func (f *fakeDomains) GetActiveByName(_ context.Context, name string) (*domain.AliasDomain, error) {
	id, ok := f.active[name]
	if !ok {
		return nil, nil
	}
	return &domain.AliasDomain{ID: id, Name: name, Active: true}, nil
}

var errStoreDown = errors.New("store down")
