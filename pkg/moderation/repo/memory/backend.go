package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/tendant/simple-moderation/pkg/moderation"
)

type locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// noLock is used inside a transaction, where the backend lock is already held.
type noLock struct{}

func (noLock) Lock()    {}
func (noLock) Unlock()  {}
func (noLock) RLock()   {}
func (noLock) RUnlock() {}

type state[T any] struct {
	records        map[int64]*moderation.Record[T]
	proposals      map[int64]*moderation.Proposal[T]
	nextRecordID   int64
	nextProposalID int64
}

// clone copies the maps. Stored values are never mutated in place, so the
// pointers can be shared.
func (s *state[T]) clone() *state[T] {
	c := *s
	c.records = maps.Clone(s.records)
	c.proposals = maps.Clone(s.proposals)
	return &c
}

// Backend implements moderation.Backend using in-memory storage
type Backend[T any] struct {
	mu    sync.RWMutex
	state *state[T]
}

// NewBackend creates a new in-memory backend
func NewBackend[T any]() *Backend[T] {
	return &Backend[T]{
		state: &state[T]{
			records:   make(map[int64]*moderation.Record[T]),
			proposals: make(map[int64]*moderation.Proposal[T]),
		},
	}
}

func (b *Backend[T]) Canonical() moderation.CanonicalStore[T] {
	return &canonicalStore[T]{b: b, lk: &b.mu}
}

func (b *Backend[T]) Proposals() moderation.ProposalStore[T] {
	return &proposalStore[T]{b: b, lk: &b.mu}
}

// WithTx holds the backend lock for the whole of fn and restores the
// previous state if fn fails.
func (b *Backend[T]) WithTx(ctx context.Context, fn func(tx moderation.Tables[T]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := b.state.clone()
	if err := fn(txTables[T]{b: b}); err != nil {
		b.state = snapshot
		return err
	}
	return nil
}

type txTables[T any] struct {
	b *Backend[T]
}

func (t txTables[T]) Canonical() moderation.CanonicalStore[T] {
	return &canonicalStore[T]{b: t.b, lk: noLock{}}
}

func (t txTables[T]) Proposals() moderation.ProposalStore[T] {
	return &proposalStore[T]{b: t.b, lk: noLock{}}
}

// Canonical records

type canonicalStore[T any] struct {
	b  *Backend[T]
	lk locker
}

func (s *canonicalStore[T]) slugHeld(slug string, except int64) bool {
	for id, r := range s.b.state.records {
		if id != except && r.Slug == slug {
			return true
		}
	}
	return false
}

func (s *canonicalStore[T]) Create(ctx context.Context, record *moderation.Record[T]) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if s.slugHeld(record.Slug, 0) {
		return fmt.Errorf("%w: %s", moderation.ErrSlugTaken, record.Slug)
	}
	s.b.state.nextRecordID++
	record.ID = s.b.state.nextRecordID

	// Create a copy to avoid external modifications
	recordCopy := *record
	s.b.state.records[record.ID] = &recordCopy
	return nil
}

func (s *canonicalStore[T]) Get(ctx context.Context, id int64) (*moderation.Record[T], error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	record, exists := s.b.state.records[id]
	if !exists {
		return nil, moderation.ErrNotFound
	}
	recordCopy := *record
	return &recordCopy, nil
}

func (s *canonicalStore[T]) GetBySlug(ctx context.Context, slug string) (*moderation.Record[T], error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	for _, record := range s.b.state.records {
		if record.Slug == slug {
			recordCopy := *record
			return &recordCopy, nil
		}
	}
	return nil, moderation.ErrNotFound
}

func (s *canonicalStore[T]) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.slugHeld(slug, 0), nil
}

func (s *canonicalStore[T]) Update(ctx context.Context, record *moderation.Record[T]) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if _, exists := s.b.state.records[record.ID]; !exists {
		return moderation.ErrNotFound
	}
	if s.slugHeld(record.Slug, record.ID) {
		return fmt.Errorf("%w: %s", moderation.ErrSlugTaken, record.Slug)
	}
	recordCopy := *record
	s.b.state.records[record.ID] = &recordCopy
	return nil
}

func (s *canonicalStore[T]) Delete(ctx context.Context, id int64) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if _, exists := s.b.state.records[id]; !exists {
		return moderation.ErrNotFound
	}
	delete(s.b.state.records, id)
	return nil
}

func (s *canonicalStore[T]) List(ctx context.Context, createdBy string) ([]*moderation.Record[T], error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	var result []*moderation.Record[T]
	for _, record := range s.b.state.records {
		if createdBy == "" || record.CreatedBy == createdBy {
			recordCopy := *record
			result = append(result, &recordCopy)
		}
	}
	sortRecords(result)
	return result, nil
}

func (s *canonicalStore[T]) ListByIDs(ctx context.Context, ids []int64) ([]*moderation.Record[T], error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	seen := make(map[int64]bool, len(ids))
	var result []*moderation.Record[T]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if record, exists := s.b.state.records[id]; exists {
			recordCopy := *record
			result = append(result, &recordCopy)
		}
	}
	sortRecords(result)
	return result, nil
}

// Sort by created_at descending
func sortRecords[T any](records []*moderation.Record[T]) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
}

// Proposals

type proposalStore[T any] struct {
	b  *Backend[T]
	lk locker
}

// pendingConflict mirrors the partial unique indexes of the Postgres schema:
// one pending proposal per slug and per canonical record.
func (s *proposalStore[T]) pendingConflict(p *moderation.Proposal[T]) error {
	if p.AuthCode != moderation.AuthPending {
		return nil
	}
	for id, other := range s.b.state.proposals {
		if id == p.ID || other.AuthCode != moderation.AuthPending {
			continue
		}
		if other.Slug == p.Slug {
			return fmt.Errorf("%w: %s", moderation.ErrSlugTaken, p.Slug)
		}
		if p.CanonicalID != nil && other.CanonicalID != nil && *other.CanonicalID == *p.CanonicalID {
			return moderation.ErrPendingExists
		}
	}
	return nil
}

func (s *proposalStore[T]) Create(ctx context.Context, proposal *moderation.Proposal[T]) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if err := s.pendingConflict(&moderation.Proposal[T]{
		AuthCode:    proposal.AuthCode,
		Slug:        proposal.Slug,
		CanonicalID: proposal.CanonicalID,
	}); err != nil {
		return err
	}
	s.b.state.nextProposalID++
	proposal.ID = s.b.state.nextProposalID

	proposalCopy := *proposal
	s.b.state.proposals[proposal.ID] = &proposalCopy
	return nil
}

func (s *proposalStore[T]) Get(ctx context.Context, id int64) (*moderation.Proposal[T], error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	proposal, exists := s.b.state.proposals[id]
	if !exists {
		return nil, moderation.ErrNotFound
	}
	proposalCopy := *proposal
	return &proposalCopy, nil
}

func (s *proposalStore[T]) Update(ctx context.Context, proposal *moderation.Proposal[T]) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if _, exists := s.b.state.proposals[proposal.ID]; !exists {
		return moderation.ErrNotFound
	}
	if err := s.pendingConflict(proposal); err != nil {
		return err
	}
	proposalCopy := *proposal
	s.b.state.proposals[proposal.ID] = &proposalCopy
	return nil
}

func (s *proposalStore[T]) DeleteRejected(ctx context.Context, id int64) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	proposal, exists := s.b.state.proposals[id]
	if !exists || proposal.AuthCode != moderation.AuthRejected {
		return moderation.ErrNotFound
	}
	delete(s.b.state.proposals, id)
	return nil
}

func (s *proposalStore[T]) List(ctx context.Context, filter moderation.ProposalFilter) ([]*moderation.Proposal[T], error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	var result []*moderation.Proposal[T]
	for _, p := range s.b.state.proposals {
		if !matches(p, filter) {
			continue
		}
		proposalCopy := *p
		result = append(result, &proposalCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func matches[T any](p *moderation.Proposal[T], f moderation.ProposalFilter) bool {
	if f.AuthCode != "" && p.AuthCode != f.AuthCode {
		return false
	}
	if f.CanonicalID != nil && (p.CanonicalID == nil || *p.CanonicalID != *f.CanonicalID) {
		return false
	}
	if f.Slug != "" && p.Slug != f.Slug {
		return false
	}
	if f.Participant != "" && p.CreatedBy != f.Participant && p.UpdatedBy != f.Participant {
		return false
	}
	if !f.CreatedBefore.IsZero() && !p.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}
