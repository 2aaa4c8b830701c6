package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Actor{ID: "alice"}
	bob   = Actor{ID: "bob"}
	admin = Actor{ID: "root", Roles: []string{RoleAdmin}}
)

func ptr[T any](v T) *T { return &v }

func at(minutes int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func record(id int64, slug, name, owner string, created int) *Record[CategoryFields] {
	return &Record[CategoryFields]{
		ID: id, Slug: slug, Data: CategoryFields{Name: name},
		CreatedBy: owner, UpdatedBy: owner,
		CreatedAt: at(created), UpdatedAt: at(created),
	}
}

func proposal(id int64, target *int64, slug, name, owner string, auth AuthCode, action ActionCode, updated int) *Proposal[CategoryFields] {
	return &Proposal[CategoryFields]{
		ID: id, CanonicalID: target, Slug: slug, Data: CategoryFields{Name: name},
		AuthCode: auth, ActionCode: action,
		CreatedBy: owner, UpdatedBy: owner,
		CreatedAt: at(updated), UpdatedAt: at(updated),
	}
}

func TestLatestPerCanonical(t *testing.T) {
	proposals := []*Proposal[CategoryFields]{
		proposal(1, ptr(int64(5)), "a", "A", "alice", AuthRejected, ActionEdit, 1),
		proposal(2, ptr(int64(5)), "b", "B", "alice", AuthPending, ActionEdit, 3),
		proposal(3, ptr(int64(6)), "c", "C", "alice", AuthApproved, ActionEdit, 2),
		proposal(4, ptr(int64(6)), "d", "D", "alice", AuthRejected, ActionEdit, 2),
		proposal(5, nil, "e", "E", "alice", AuthPending, ActionAdd, 9),
	}

	latest := LatestPerCanonical(proposals)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(2), latest[5].ID)
	// equal timestamps: the higher ID wins
	assert.Equal(t, int64(4), latest[6].ID)
}

func TestLatestNewPerSlug(t *testing.T) {
	proposals := []*Proposal[CategoryFields]{
		proposal(1, nil, "tech", "Tech", "alice", AuthRejected, ActionAdd, 1),
		proposal(2, nil, "tech", "Tech", "alice", AuthPending, ActionAdd, 2),
		proposal(3, nil, "news", "News", "alice", AuthPending, ActionAdd, 1),
		proposal(4, ptr(int64(1)), "tech", "Tech", "alice", AuthPending, ActionEdit, 5),
	}

	latest := LatestNewPerSlug(proposals)
	require.Len(t, latest, 2)
	ids := map[string]int64{}
	for _, p := range latest {
		ids[p.Slug] = p.ID
	}
	assert.Equal(t, map[string]int64{"tech": 2, "news": 3}, ids)
}

func TestReconcileOne_PendingEditVisibleToOwnerOnly(t *testing.T) {
	rec := record(5, "original", "Original", "alice", 0)
	proposals := []*Proposal[CategoryFields]{
		proposal(9, ptr(int64(5)), "x", "X", "alice", AuthPending, ActionEdit, 10),
	}

	owner := ReconcileOne(alice, rec, proposals)
	assert.Equal(t, int64(5), owner.ID)
	assert.Equal(t, "x", owner.Slug)
	assert.Equal(t, "X", owner.Data.Name)
	require.NotNil(t, owner.AuthCode)
	assert.Equal(t, AuthPending, *owner.AuthCode)
	assert.Equal(t, ActionEdit, *owner.ActionCode)
	assert.Equal(t, int64(9), *owner.ProposalID)
	assert.Equal(t, at(0), owner.CreatedAt)
	assert.Equal(t, at(10), owner.UpdatedAt)

	other := ReconcileOne(bob, rec, proposals)
	assert.Equal(t, "Original", other.Data.Name)
	assert.Nil(t, other.AuthCode)

	anonymous := ReconcileOne(Actor{}, rec, proposals)
	assert.Equal(t, "Original", anonymous.Data.Name)

	reviewer := ReconcileOne(admin, rec, proposals)
	assert.Equal(t, "X", reviewer.Data.Name)
}

func TestReconcileOne_DecidedProposalOnlyTags(t *testing.T) {
	rec := record(5, "original", "Original", "alice", 0)
	proposals := []*Proposal[CategoryFields]{
		proposal(9, ptr(int64(5)), "x", "X", "alice", AuthRejected, ActionEdit, 10),
	}

	v := ReconcileOne(alice, rec, proposals)
	assert.Equal(t, "Original", v.Data.Name)
	assert.Equal(t, "original", v.Slug)
	require.NotNil(t, v.AuthCode)
	assert.Equal(t, AuthRejected, *v.AuthCode)
	assert.Equal(t, at(0), v.UpdatedAt)
}

func TestReconcile(t *testing.T) {
	records := []*Record[CategoryFields]{
		record(1, "go", "Go", "alice", 0),
		record(2, "rust", "Rust", "bob", 1),
	}
	proposals := []*Proposal[CategoryFields]{
		proposal(10, ptr(int64(1)), "golang", "Golang", "alice", AuthPending, ActionEdit, 5),
		proposal(11, nil, "zig", "Zig", "alice", AuthPending, ActionAdd, 6),
		proposal(12, nil, "nim", "Nim", "bob", AuthRejected, ActionAdd, 7),
		// approved add already materialized as record 2
		proposal(13, ptr(int64(2)), "rust", "Rust", "bob", AuthApproved, ActionAdd, 1),
	}

	t.Run("owner sees own records and proposals", func(t *testing.T) {
		views := Reconcile(alice, records, proposals)
		require.Len(t, views, 2)

		assert.Equal(t, int64(11), views[0].ID)
		assert.Equal(t, "zig", views[0].Slug)
		assert.Equal(t, AuthPending, *views[0].AuthCode)

		assert.Equal(t, int64(1), views[1].ID)
		assert.Equal(t, "Golang", views[1].Data.Name)
		assert.Equal(t, int64(10), *views[1].ProposalID)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		views := Reconcile(admin, records, proposals)
		require.Len(t, views, 4)

		ids := make([]int64, len(views))
		for i, v := range views {
			ids[i] = v.ID
		}
		// created desc: nim(7), zig(6), rust(1), go(0)
		assert.Equal(t, []int64{12, 11, 2, 1}, ids)
		assert.Equal(t, AuthRejected, *views[0].AuthCode)
		assert.Equal(t, AuthApproved, *views[2].AuthCode)
		assert.Equal(t, "Rust", views[2].Data.Name)
	})

	t.Run("other user sees only own", func(t *testing.T) {
		views := Reconcile(bob, records, proposals)
		require.Len(t, views, 2)
		for _, v := range views {
			assert.NotEqual(t, "Golang", v.Data.Name)
			assert.NotEqual(t, "zig", v.Slug)
		}
	})
}

func TestSortViews(t *testing.T) {
	views := []View[TagFields]{
		{ID: 1, CreatedAt: at(1)},
		{ID: 3, CreatedAt: at(2)},
		{ID: 2, CreatedAt: at(2)},
		{ID: 4, CreatedAt: at(0)},
	}
	SortViews(views)

	ids := make([]int64, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	assert.Equal(t, []int64{3, 2, 1, 4}, ids)
}
