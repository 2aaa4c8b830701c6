package moderation

import (
	"sort"
)

// newer reports whether a supersedes b: later UpdatedAt wins, then the
// higher proposal ID.
func newer[T any](a, b *Proposal[T]) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

// LatestPerCanonical picks, for every canonical ID, the most recent proposal
// targeting it. Proposals for new records are ignored.
func LatestPerCanonical[T any](proposals []*Proposal[T]) map[int64]*Proposal[T] {
	latest := make(map[int64]*Proposal[T])
	for _, p := range proposals {
		if p.CanonicalID == nil {
			continue
		}
		id := *p.CanonicalID
		if cur, ok := latest[id]; !ok || newer(p, cur) {
			latest[id] = p
		}
	}
	return latest
}

// LatestNewPerSlug picks, for every slug, the most recent proposal that does
// not target a canonical record yet. Older drafts for the same slug are
// superseded.
func LatestNewPerSlug[T any](proposals []*Proposal[T]) []*Proposal[T] {
	bySlug := make(map[string]*Proposal[T])
	for _, p := range proposals {
		if p.CanonicalID != nil {
			continue
		}
		if cur, ok := bySlug[p.Slug]; !ok || newer(p, cur) {
			bySlug[p.Slug] = p
		}
	}
	out := make([]*Proposal[T], 0, len(bySlug))
	for _, p := range bySlug {
		out = append(out, p)
	}
	return out
}

// CanonicalView is the untagged view of a record.
func CanonicalView[T any](r *Record[T]) View[T] {
	return View[T]{
		ID:        r.ID,
		Slug:      r.Slug,
		Data:      r.Data,
		CreatedBy: r.CreatedBy,
		UpdatedBy: r.UpdatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ProposalView is the view of a proposal that has no canonical record yet.
// The proposal ID stands in as the item ID.
func ProposalView[T any](p *Proposal[T]) View[T] {
	v := View[T]{
		ID:          p.ID,
		Slug:        p.Slug,
		Data:        p.Data,
		StagedAsset: p.StagedAsset,
		CreatedBy:   p.CreatedBy,
		UpdatedBy:   p.UpdatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	tag(&v, p)
	return v
}

// blend merges a record with its latest proposal. A pending proposal shows
// its own values over the record's identity; a decided one only tags the
// canonical values.
func blend[T any](r *Record[T], p *Proposal[T]) View[T] {
	v := CanonicalView(r)
	if p == nil {
		return v
	}
	if p.AuthCode == AuthPending {
		v.Slug = p.Slug
		v.Data = p.Data
		v.StagedAsset = p.StagedAsset
		v.UpdatedBy = p.UpdatedBy
		v.UpdatedAt = p.UpdatedAt
	}
	tag(&v, p)
	return v
}

func tag[T any](v *View[T], p *Proposal[T]) {
	auth, action, id := p.AuthCode, p.ActionCode, p.ID
	v.AuthCode = &auth
	v.ActionCode = &action
	v.ProposalID = &id
}

// Reconcile builds the list view seen by actor from the canonical records and
// proposals of one kind. Admins see every record and proposal; other actors
// see only the records they created and the proposals they created or last
// updated. The result is ordered by CreatedAt, newest first.
func Reconcile[T any](actor Actor, records []*Record[T], proposals []*Proposal[T]) []View[T] {
	visible := make([]*Proposal[T], 0, len(proposals))
	for _, p := range proposals {
		if p.VisibleTo(actor) {
			visible = append(visible, p)
		}
	}

	latest := LatestPerCanonical(visible)
	views := make([]View[T], 0, len(records)+len(visible))
	for _, r := range records {
		if !actor.IsAdmin() && r.CreatedBy != actor.ID {
			continue
		}
		views = append(views, blend(r, latest[r.ID]))
	}
	// Approved adds carry their canonical ID, so only pending and rejected
	// drafts remain here.
	for _, p := range LatestNewPerSlug(visible) {
		views = append(views, ProposalView(p))
	}

	SortViews(views)
	return views
}

// ReconcileOne builds the detail view of a single record. Non-owners get the
// canonical values only.
func ReconcileOne[T any](actor Actor, record *Record[T], proposals []*Proposal[T]) View[T] {
	if !actor.IsAdmin() && (actor.Anonymous() || record.CreatedBy != actor.ID) {
		return CanonicalView(record)
	}
	var latest *Proposal[T]
	for _, p := range proposals {
		if p.CanonicalID == nil || *p.CanonicalID != record.ID || !p.VisibleTo(actor) {
			continue
		}
		if latest == nil || newer(p, latest) {
			latest = p
		}
	}
	return blend(record, latest)
}

// SortViews orders views by CreatedAt descending, then ID descending.
func SortViews[T any](views []View[T]) {
	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})
}
