package moderation

import (
	"context"
	"fmt"
)

// List returns the reconciled list view of actor.
func (e *Engine[T]) List(ctx context.Context, actor Actor) ([]View[T], error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("%w: anonymous actors have no reconciled view", ErrForbidden)
	}

	createdBy, filter := actor.ID, ProposalFilter{Participant: actor.ID}
	if actor.IsAdmin() {
		createdBy, filter = "", ProposalFilter{}
	}
	records, err := e.backend.Canonical().List(ctx, createdBy)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", e.Kind(), err)
	}
	proposals, err := e.backend.Proposals().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s proposals: %w", e.Kind(), err)
	}
	return Reconcile(actor, records, proposals), nil
}

// Get returns the detail view of a canonical record. The owner and admins
// see a pending change blended in; everyone else sees canonical values.
func (e *Engine[T]) Get(ctx context.Context, actor Actor, id int64) (View[T], error) {
	rec, err := e.backend.Canonical().Get(ctx, id)
	if err != nil {
		return View[T]{}, &RecordError{Kind: e.Kind(), ID: id, Op: "get", Err: err}
	}
	if !actor.IsAdmin() && (actor.Anonymous() || rec.CreatedBy != actor.ID) {
		return CanonicalView(rec), nil
	}
	proposals, err := e.backend.Proposals().List(ctx, ProposalFilter{CanonicalID: &id})
	if err != nil {
		return View[T]{}, fmt.Errorf("list %s proposals: %w", e.Kind(), err)
	}
	return ReconcileOne(actor, rec, proposals), nil
}

// GetBySlug returns the canonical values of the record with slug.
func (e *Engine[T]) GetBySlug(ctx context.Context, slug string) (View[T], error) {
	rec, err := e.backend.Canonical().GetBySlug(ctx, slug)
	if err != nil {
		return View[T]{}, fmt.Errorf("get %s %q: %w", e.Kind(), slug, err)
	}
	return CanonicalView(rec), nil
}

// ListApproved returns every canonical record, newest first.
func (e *Engine[T]) ListApproved(ctx context.Context) ([]View[T], error) {
	records, err := e.backend.Canonical().List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", e.Kind(), err)
	}
	return canonicalViews(records), nil
}

// ListMine returns the canonical records created by actor.
func (e *Engine[T]) ListMine(ctx context.Context, actor Actor) ([]View[T], error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("%w: anonymous actors own no records", ErrForbidden)
	}
	records, err := e.backend.Canonical().List(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", e.Kind(), err)
	}
	return canonicalViews(records), nil
}

// ListProposals returns the proposals matching filter, newest first.
// Admin only.
func (e *Engine[T]) ListProposals(ctx context.Context, actor Actor, filter ProposalFilter) ([]*Proposal[T], error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list proposals", ErrForbidden)
	}
	if filter.AuthCode != "" {
		if _, err := ParseAuthCode(string(filter.AuthCode)); err != nil {
			return nil, err
		}
	}
	proposals, err := e.backend.Proposals().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s proposals: %w", e.Kind(), err)
	}
	return proposals, nil
}

// GetProposal returns a proposal visible to actor. Proposals the actor may
// not see are reported as not found.
func (e *Engine[T]) GetProposal(ctx context.Context, actor Actor, id int64) (*Proposal[T], error) {
	p, err := e.backend.Proposals().Get(ctx, id)
	if err != nil {
		return nil, &ProposalError{Kind: e.Kind(), ID: id, Op: "get", Err: err}
	}
	if !p.VisibleTo(actor) {
		return nil, &ProposalError{Kind: e.Kind(), ID: id, Op: "get", Err: ErrNotFound}
	}
	return p, nil
}

func canonicalViews[T any](records []*Record[T]) []View[T] {
	views := make([]View[T], 0, len(records))
	for _, r := range records {
		views = append(views, CanonicalView(r))
	}
	SortViews(views)
	return views
}
