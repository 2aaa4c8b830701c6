package moderation_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-moderation/pkg/moderation"
	"github.com/tendant/simple-moderation/pkg/moderation/repo/memory"
	memorystorage "github.com/tendant/simple-moderation/pkg/moderation/storage/memory"
)

var (
	alice     = moderation.Actor{ID: "alice", Username: "alice"}
	bob       = moderation.Actor{ID: "bob", Username: "bob"}
	admin     = moderation.Actor{ID: "root", Username: "root", Roles: []string{moderation.RoleAdmin}}
	anonymous = moderation.Actor{}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *moderation.Service
	blobs *memorystorage.Backend
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs := memorystorage.New()
	clock := newFakeClock()
	svc, err := moderation.New(memory.New(),
		moderation.WithAssetStore(moderation.NewAssetStore(blobs)),
		moderation.WithClock(clock.Now),
	)
	require.NoError(t, err)
	return &fixture{svc: svc, blobs: blobs, clock: clock}
}

func (f *fixture) addCategory(t *testing.T, actor moderation.Actor, name string) *moderation.Proposal[moderation.CategoryFields] {
	t.Helper()
	f.clock.Advance(time.Minute)
	p, err := f.svc.Categories().Submit(context.Background(), actor, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.CategoryFields{Name: name},
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) approveCategory(t *testing.T, proposalID int64) *moderation.Proposal[moderation.CategoryFields] {
	t.Helper()
	f.clock.Advance(time.Minute)
	p, err := f.svc.Categories().Decide(context.Background(), admin, moderation.DecideRequest{ProposalID: proposalID, AuthCode: "A"})
	require.NoError(t, err)
	return p
}

// category creates an approved category owned by actor and returns its ID.
func (f *fixture) category(t *testing.T, actor moderation.Actor, name string) int64 {
	t.Helper()
	p := f.approveCategory(t, f.addCategory(t, actor, name).ID)
	require.NotNil(t, p.CanonicalID)
	return *p.CanonicalID
}

func (f *fixture) tag(t *testing.T, actor moderation.Actor, name string) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.Tags().Submit(ctx, actor, moderation.SubmitRequest[moderation.TagFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.TagFields{Name: name},
	})
	require.NoError(t, err)
	p, err = f.svc.Tags().Decide(ctx, admin, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "A"})
	require.NoError(t, err)
	return *p.CanonicalID
}

func pngUpload(name string) *moderation.AssetUpload {
	return &moderation.AssetUpload{Filename: name, ContentType: "image/png", Body: bytes.NewReader(pngData)}
}

func keysWithPrefix(keys []string, prefix string) []string {
	var out []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func TestSubmitAdd_SlugReservedByPendingAndCanonical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()

	first := f.addCategory(t, alice, "Tech News")
	assert.Equal(t, "tech-news", first.Slug)
	assert.Equal(t, moderation.AuthPending, first.AuthCode)
	assert.Equal(t, moderation.ActionAdd, first.ActionCode)
	assert.Nil(t, first.CanonicalID)

	_, err := categories.Submit(ctx, bob, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.CategoryFields{Name: "Tech News!!"},
	})
	assert.ErrorIs(t, err, moderation.ErrSlugTaken)
	assert.ErrorIs(t, err, moderation.ErrConflict)

	approved := f.approveCategory(t, first.ID)
	require.NotNil(t, approved.CanonicalID)

	rec, err := categories.GetBySlug(ctx, "tech-news")
	require.NoError(t, err)
	assert.Equal(t, *approved.CanonicalID, rec.ID)
	assert.Equal(t, "Tech News", rec.Data.Name)
	assert.Equal(t, "alice", rec.CreatedBy)
	assert.Equal(t, "root", rec.UpdatedBy)

	_, err = categories.Submit(ctx, bob, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.CategoryFields{Name: "tech news"},
	})
	assert.ErrorIs(t, err, moderation.ErrSlugTaken)
}

func TestSubmitAdd_RejectedProposalFreesSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.addCategory(t, alice, "Go")
	_, err := f.svc.Categories().Decide(ctx, admin, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "R"})
	require.NoError(t, err)

	again := f.addCategory(t, bob, "Go")
	assert.Equal(t, "go", again.Slug)
}

func TestSubmit_EmptySlugRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Tags().Submit(context.Background(), alice, moderation.SubmitRequest[moderation.TagFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.TagFields{Name: "!!!"},
	})
	assert.ErrorIs(t, err, moderation.ErrBadRequest)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Categories().Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.CategoryFields{Name: "   "},
	})
	assert.ErrorIs(t, err, moderation.ErrBadRequest)

	_, err = f.svc.Categories().Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionEdit,
		Data:   moderation.CategoryFields{Name: "No Target"},
	})
	assert.ErrorIs(t, err, moderation.ErrBadRequest)

	_, err = f.svc.Categories().Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionCode("X"),
		Data:   moderation.CategoryFields{Name: "Bad Action"},
	})
	assert.ErrorIs(t, err, moderation.ErrInvalidCode)

	_, err = f.svc.Categories().Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.CategoryFields{Name: "With Image"},
		Asset:  pngUpload("a.png"),
	})
	assert.ErrorIs(t, err, moderation.ErrBadRequest)
	assert.Empty(t, f.blobs.Keys())
}

func TestSubmit_Forbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.category(t, alice, "Go")

	_, err := f.svc.Categories().Submit(ctx, anonymous, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.CategoryFields{Name: "Anon"},
	})
	assert.ErrorIs(t, err, moderation.ErrForbidden)

	_, err = f.svc.Categories().Submit(ctx, bob, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	assert.ErrorIs(t, err, moderation.ErrForbidden)

	_, err = f.svc.Categories().Submit(ctx, bob, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionDelete,
		CanonicalID: &id,
	})
	assert.ErrorIs(t, err, moderation.ErrForbidden)

	// admins may change anyone's record, still through review
	p, err := f.svc.Categories().Submit(ctx, admin, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	require.NoError(t, err)
	assert.Equal(t, moderation.AuthPending, p.AuthCode)
}

func TestSubmit_UnknownTarget(t *testing.T) {
	f := newFixture(t)
	missing := int64(404)
	_, err := f.svc.Categories().Submit(context.Background(), alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &missing,
		Data:        moderation.CategoryFields{Name: "Ghost"},
	})
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	var recErr *moderation.RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, int64(404), recErr.ID)
}

func TestSubmit_AdminProposalsArePending(t *testing.T) {
	f := newFixture(t)
	p := f.addCategory(t, admin, "Announcements")
	assert.Equal(t, moderation.AuthPending, p.AuthCode)

	_, err := f.svc.Categories().GetBySlug(context.Background(), "announcements")
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestSubmit_OnePendingProposalPerRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.category(t, alice, "Go")

	_, err := f.svc.Categories().Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	require.NoError(t, err)

	_, err = f.svc.Categories().Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Go Lang"},
	})
	assert.ErrorIs(t, err, moderation.ErrPendingExists)

	_, err = f.svc.Categories().Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionDelete,
		CanonicalID: &id,
	})
	assert.ErrorIs(t, err, moderation.ErrPendingExists)
}

func TestSubmitEdit_KeepsOwnSlug(t *testing.T) {
	f := newFixture(t)
	id := f.category(t, alice, "Go")

	p, err := f.svc.Categories().Submit(context.Background(), alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "GO"},
	})
	require.NoError(t, err)
	assert.Equal(t, "go", p.Slug)
}

func TestSubmitEdit_SlugOfAnotherRecordTaken(t *testing.T) {
	f := newFixture(t)
	f.category(t, bob, "Rust")
	id := f.category(t, alice, "Go")

	_, err := f.svc.Categories().Submit(context.Background(), alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "rust"},
	})
	assert.ErrorIs(t, err, moderation.ErrSlugTaken)
}

func TestApproveAdd_CreatesExactlyOneRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.addCategory(t, alice, "Go")
	approved := f.approveCategory(t, p.ID)
	assert.Equal(t, moderation.AuthApproved, approved.AuthCode)
	assert.Equal(t, "root", approved.UpdatedBy)
	require.NotNil(t, approved.CanonicalID)

	records, err := f.svc.Categories().ListApproved(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, *approved.CanonicalID, records[0].ID)

	stored, err := f.svc.Categories().GetProposal(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, approved.CanonicalID, stored.CanonicalID)
}

func TestDecide_SecondDecisionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()

	approved := f.addCategory(t, alice, "Go")
	f.approveCategory(t, approved.ID)
	for _, code := range []string{"A", "R"} {
		_, err := categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: approved.ID, AuthCode: code})
		assert.ErrorIs(t, err, moderation.ErrAlreadyDecided)
	}

	rejected := f.addCategory(t, alice, "Rust")
	_, err := categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: rejected.ID, AuthCode: "R"})
	require.NoError(t, err)
	_, err = categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: rejected.ID, AuthCode: "A"})
	assert.ErrorIs(t, err, moderation.ErrAlreadyDecided)

	var propErr *moderation.ProposalError
	require.True(t, errors.As(err, &propErr))
	assert.Equal(t, rejected.ID, propErr.ID)
	assert.Equal(t, moderation.KindCategory, propErr.Kind)

	records, err := categories.ListApproved(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDecide_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()
	p := f.addCategory(t, alice, "Go")

	_, err := categories.Decide(ctx, alice, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "A"})
	assert.ErrorIs(t, err, moderation.ErrForbidden)

	_, err = categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "P"})
	assert.ErrorIs(t, err, moderation.ErrBadRequest)

	_, err = categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "Q"})
	assert.ErrorIs(t, err, moderation.ErrInvalidCode)

	_, err = categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "A", ActionCode: "E"})
	assert.ErrorIs(t, err, moderation.ErrInvalidCode)

	_, err = categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: 999, AuthCode: "A"})
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	stored, err := categories.GetProposal(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.AuthPending, stored.AuthCode)
}

func TestReject_NeverMutatesCanonical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()
	id := f.category(t, alice, "Go")

	before, err := categories.GetBySlug(ctx, "go")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	p, err := categories.Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = categories.Decide(ctx, admin, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "R"})
	require.NoError(t, err)

	after, err := categories.GetBySlug(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// the owner sees the original tagged with the rejection
	owner, err := categories.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, "Go", owner.Data.Name)
	require.NotNil(t, owner.AuthCode)
	assert.Equal(t, moderation.AuthRejected, *owner.AuthCode)
	assert.Equal(t, moderation.ActionEdit, *owner.ActionCode)

	// a new edit may follow the rejection
	_, err = categories.Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	assert.NoError(t, err)
}

func TestGet_PendingEditVisibleToOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()
	id := f.category(t, alice, "Go")

	f.clock.Advance(time.Minute)
	p, err := categories.Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	require.NoError(t, err)

	owner, err := categories.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, "Golang", owner.Data.Name)
	assert.Equal(t, "golang", owner.Slug)
	assert.Equal(t, moderation.AuthPending, *owner.AuthCode)
	assert.Equal(t, p.ID, *owner.ProposalID)

	reviewer, err := categories.Get(ctx, admin, id)
	require.NoError(t, err)
	assert.Equal(t, "Golang", reviewer.Data.Name)

	for _, actor := range []moderation.Actor{bob, anonymous} {
		v, err := categories.Get(ctx, actor, id)
		require.NoError(t, err)
		assert.Equal(t, "Go", v.Data.Name)
		assert.Equal(t, "go", v.Slug)
		assert.Nil(t, v.AuthCode)
	}

	mine, err := categories.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Golang", mine[0].Data.Name)

	others, err := categories.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = categories.List(ctx, anonymous)
	assert.ErrorIs(t, err, moderation.ErrForbidden)
}

func TestList_PendingAddVisibleToOwnerAndAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()
	p := f.addCategory(t, alice, "Zig")

	mine, err := categories.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)
	assert.Equal(t, moderation.AuthPending, *mine[0].AuthCode)
	assert.Equal(t, moderation.ActionAdd, *mine[0].ActionCode)

	all, err := categories.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	others, err := categories.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, others)

	approved, err := categories.ListApproved(ctx)
	require.NoError(t, err)
	assert.Empty(t, approved)

	owned, err := categories.ListMine(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestApproveEdit_AppliesChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()
	id := f.category(t, alice, "Go")

	p, err := categories.Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	require.NoError(t, err)
	f.approveCategory(t, p.ID)

	rec, err := categories.GetBySlug(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "Golang", rec.Data.Name)
	assert.Equal(t, "alice", rec.CreatedBy)

	_, err = categories.GetBySlug(ctx, "go")
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	// the old slug is free again
	f.addCategory(t, bob, "Go")
}

func TestApproveDelete_RemovesRecordKeepsProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()
	id := f.category(t, alice, "Go")

	p, err := categories.Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionDelete,
		CanonicalID: &id,
	})
	require.NoError(t, err)
	assert.Equal(t, "go", p.Slug)
	assert.Equal(t, "Go", p.Data.Name)

	f.approveCategory(t, p.ID)

	_, err = categories.Get(ctx, alice, id)
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	stored, err := categories.GetProposal(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.AuthApproved, stored.AuthCode)
	assert.Equal(t, moderation.ActionDelete, stored.ActionCode)
	assert.Equal(t, id, *stored.CanonicalID)

	approved, err := categories.ListApproved(ctx)
	require.NoError(t, err)
	assert.Empty(t, approved)
}

func TestGetProposal_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()
	p := f.addCategory(t, alice, "Go")

	_, err := categories.GetProposal(ctx, alice, p.ID)
	require.NoError(t, err)
	_, err = categories.GetProposal(ctx, admin, p.ID)
	require.NoError(t, err)

	for _, actor := range []moderation.Actor{bob, anonymous} {
		_, err = categories.GetProposal(ctx, actor, p.ID)
		assert.ErrorIs(t, err, moderation.ErrNotFound)
	}
}

func TestListProposals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := f.svc.Categories()

	id := f.category(t, alice, "Go")
	f.addCategory(t, bob, "Rust")
	edit, err := categories.Submit(ctx, alice, moderation.SubmitRequest[moderation.CategoryFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.CategoryFields{Name: "Golang"},
	})
	require.NoError(t, err)

	all, err := categories.ListProposals(ctx, admin, moderation.ProposalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := categories.ListProposals(ctx, admin, moderation.ProposalFilter{AuthCode: moderation.AuthPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	forRecord, err := categories.ListProposals(ctx, admin, moderation.ProposalFilter{CanonicalID: &id})
	require.NoError(t, err)
	require.Len(t, forRecord, 2)
	assert.Equal(t, edit.ID, forRecord[0].ID)

	_, err = categories.ListProposals(ctx, admin, moderation.ProposalFilter{AuthCode: "X"})
	assert.ErrorIs(t, err, moderation.ErrInvalidCode)

	_, err = categories.ListProposals(ctx, alice, moderation.ProposalFilter{})
	assert.ErrorIs(t, err, moderation.ErrForbidden)
}

func TestArticle_UnknownCategory(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Articles().Submit(context.Background(), alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.ArticleFields{Title: "Hello", Content: "World", CategoryID: 42},
		Asset:  pngUpload("cover.png"),
	})
	assert.ErrorIs(t, err, moderation.ErrNotFound)
	assert.Empty(t, f.blobs.Keys())
}

func TestArticle_AuthorAndThumbnailAreServerControlled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categoryID := f.category(t, admin, "News")

	p, err := f.svc.Articles().Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action: moderation.ActionAdd,
		Data: moderation.ArticleFields{
			Title: "  Hello  ", Content: "World", CategoryID: categoryID,
			TagIDs: []int64{3, 3, 1}, AuthorID: "mallory", Thumbnail: "public/forged.png",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", p.Data.Title)
	assert.Equal(t, "alice", p.Data.AuthorID)
	assert.Empty(t, p.Data.Thumbnail)
	assert.Equal(t, []int64{3, 1}, p.Data.TagIDs)
}

func TestArticle_ThumbnailLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	articles := f.svc.Articles()
	categoryID := f.category(t, admin, "News")

	add, err := articles.Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.ArticleFields{Title: "Hello", Content: "World", CategoryID: categoryID},
		Asset:  pngUpload("cover.png"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, add.StagedAsset)
	assert.True(t, strings.HasPrefix(add.StagedAsset, "staged/"))
	assert.Empty(t, add.Data.Thumbnail)

	approved, err := articles.Decide(ctx, admin, moderation.DecideRequest{ProposalID: add.ID, AuthCode: "A"})
	require.NoError(t, err)
	assert.Empty(t, approved.StagedAsset)
	first := approved.Data.Thumbnail
	assert.True(t, strings.HasPrefix(first, "public/"))
	assert.Equal(t, []string{first}, f.blobs.Keys())

	id := *approved.CanonicalID
	rec, err := articles.Get(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, first, rec.Data.Thumbnail)

	// an edit without an upload keeps the live thumbnail
	keep, err := articles.Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.ArticleFields{Title: "Hello again", Content: "World", CategoryID: categoryID},
	})
	require.NoError(t, err)
	assert.Equal(t, first, keep.Data.Thumbnail)
	_, err = articles.Decide(ctx, admin, moderation.DecideRequest{ProposalID: keep.ID, AuthCode: "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{first}, f.blobs.Keys())

	// a rejected replacement releases the staged upload
	rejected, err := articles.Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.ArticleFields{Title: "Hello again", Content: "World", CategoryID: categoryID},
		Asset:       pngUpload("other.png"),
	})
	require.NoError(t, err)
	assert.Len(t, keysWithPrefix(f.blobs.Keys(), "staged/"), 1)
	decided, err := articles.Decide(ctx, admin, moderation.DecideRequest{ProposalID: rejected.ID, AuthCode: "R"})
	require.NoError(t, err)
	assert.Empty(t, decided.StagedAsset)
	assert.Equal(t, []string{first}, f.blobs.Keys())

	// an approved replacement retires the old public asset
	replace, err := articles.Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action:      moderation.ActionEdit,
		CanonicalID: &id,
		Data:        moderation.ArticleFields{Title: "Hello again", Content: "World", CategoryID: categoryID},
		Asset:       pngUpload("new.png"),
	})
	require.NoError(t, err)
	replaced, err := articles.Decide(ctx, admin, moderation.DecideRequest{ProposalID: replace.ID, AuthCode: "A"})
	require.NoError(t, err)
	second := replaced.Data.Thumbnail
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{second}, f.blobs.Keys())

	// deleting the article removes the live asset
	del, err := articles.Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action:      moderation.ActionDelete,
		CanonicalID: &id,
	})
	require.NoError(t, err)
	_, err = articles.Decide(ctx, admin, moderation.DecideRequest{ProposalID: del.ID, AuthCode: "A"})
	require.NoError(t, err)
	assert.Empty(t, f.blobs.Keys())
}

func TestArticle_DeleteRejectsAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categoryID := f.category(t, admin, "News")

	p, err := f.svc.Articles().Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.ArticleFields{Title: "Hello", Content: "World", CategoryID: categoryID},
	})
	require.NoError(t, err)
	p, err = f.svc.Articles().Decide(ctx, admin, moderation.DecideRequest{ProposalID: p.ID, AuthCode: "A"})
	require.NoError(t, err)

	_, err = f.svc.Articles().Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action:      moderation.ActionDelete,
		CanonicalID: p.CanonicalID,
		Asset:       pngUpload("cover.png"),
	})
	assert.ErrorIs(t, err, moderation.ErrBadRequest)
	assert.Empty(t, f.blobs.Keys())
}

func TestArticle_RejectedUploadLeavesNoBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categoryID := f.category(t, admin, "News")

	_, err := f.svc.Articles().Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.ArticleFields{Title: "Hello", Content: "World", CategoryID: categoryID},
		Asset: &moderation.AssetUpload{
			Filename:    "cover.svg",
			ContentType: "image/svg+xml",
			Body:        strings.NewReader("<svg></svg>"),
		},
	})
	assert.ErrorIs(t, err, moderation.ErrAssetRejected)
	assert.Empty(t, f.blobs.Keys())

	// the slug is not held by the failed submission
	_, err = f.svc.Articles().Submit(ctx, alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.ArticleFields{Title: "Hello", Content: "World", CategoryID: categoryID},
	})
	assert.NoError(t, err)
}

func TestArticle_AssetWithoutStore(t *testing.T) {
	svc, err := moderation.New(memory.New())
	require.NoError(t, err)
	_, err = svc.Articles().Submit(context.Background(), alice, moderation.SubmitRequest[moderation.ArticleFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.ArticleFields{Title: "Hello", Content: "World", CategoryID: 1},
		Asset:  pngUpload("cover.png"),
	})
	assert.ErrorIs(t, err, moderation.ErrNoAssetStore)
}
