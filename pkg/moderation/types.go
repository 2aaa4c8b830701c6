package moderation

import (
	"slices"
	"time"
)

// Kind identifies a moderated content kind
type Kind string

const (
	KindArticle  Kind = "article"
	KindCategory Kind = "category"
	KindTag      Kind = "tag"
)

// AuthCode is the review status of a proposal
type AuthCode string

const (
	AuthPending  AuthCode = "P"
	AuthApproved AuthCode = "A"
	AuthRejected AuthCode = "R"
)

// ActionCode is the kind of change a proposal carries
type ActionCode string

const (
	ActionAdd    ActionCode = "A"
	ActionEdit   ActionCode = "E"
	ActionDelete ActionCode = "D"
)

// RoleAdmin is the role that grants review privileges.
const RoleAdmin = "ADMIN"

// Actor is the identity performing an operation.
type Actor struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// IsAdmin reports whether the actor holds the admin role.
// "ROLE_ADMIN" is accepted as an alias.
func (a Actor) IsAdmin() bool {
	return slices.Contains(a.Roles, RoleAdmin) || slices.Contains(a.Roles, "ROLE_"+RoleAdmin)
}

// Anonymous reports whether the actor carries no identity.
func (a Actor) Anonymous() bool {
	return a.ID == ""
}

// Record is a live, approved canonical item.
type Record[T any] struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Data      T         `json:"data"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Proposal is a staged change awaiting, or past, an admin decision.
type Proposal[T any] struct {
	ID          int64      `json:"id"`
	CanonicalID *int64     `json:"canonical_id,omitempty"`
	Slug        string     `json:"slug"`
	Data        T          `json:"data"`
	StagedAsset string     `json:"staged_asset,omitempty"`
	AuthCode    AuthCode   `json:"auth_code"`
	ActionCode  ActionCode `json:"action_code"`
	CreatedBy   string     `json:"created_by"`
	UpdatedBy   string     `json:"updated_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Terminal reports whether the proposal has been decided.
func (p *Proposal[T]) Terminal() bool {
	return p.AuthCode == AuthApproved || p.AuthCode == AuthRejected
}

// VisibleTo reports whether a non-admin actor may see the proposal.
func (p *Proposal[T]) VisibleTo(actor Actor) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.Anonymous() {
		return false
	}
	return p.CreatedBy == actor.ID || p.UpdatedBy == actor.ID
}

// View is the reconciled read model of an item. AuthCode and ActionCode are
// nil when no proposal is blended in. ProposalID is set whenever one is.
type View[T any] struct {
	ID          int64       `json:"id"`
	Slug        string      `json:"slug"`
	Data        T           `json:"data"`
	StagedAsset string      `json:"staged_asset,omitempty"`
	AuthCode    *AuthCode   `json:"auth_code,omitempty"`
	ActionCode  *ActionCode `json:"action_code,omitempty"`
	ProposalID  *int64      `json:"proposal_id,omitempty"`
	CreatedBy   string      `json:"created_by"`
	UpdatedBy   string      `json:"updated_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CategoryFields is the payload of a category.
type CategoryFields struct {
	Name string `json:"name" validate:"required,max=255"`
}

// TagFields is the payload of a tag.
type TagFields struct {
	Name string `json:"name" validate:"required,max=255"`
}

// ArticleFields is the payload of an article. Thumbnail holds the live
// public asset path; a newly uploaded image lives on Proposal.StagedAsset
// until approval.
type ArticleFields struct {
	Title      string  `json:"title" validate:"required,max=255"`
	Content    string  `json:"content" validate:"required"`
	CategoryID int64   `json:"category_id" validate:"required,gt=0"`
	TagIDs     []int64 `json:"tag_ids,omitempty" validate:"dive,gt=0"`
	AuthorID   string  `json:"author_id"`
	Thumbnail  string  `json:"thumbnail,omitempty"`
}

// SubmitRequest carries a caller's intent to change an item.
type SubmitRequest[T any] struct {
	Action      ActionCode
	CanonicalID *int64
	Data        T
	Asset       *AssetUpload
}

// DecideRequest carries an admin decision. Codes are taken as raw wire
// values and validated by the engine.
type DecideRequest struct {
	ProposalID int64  `json:"proposal_id"`
	AuthCode   string `json:"auth_code"`
	ActionCode string `json:"action_code,omitempty"`
}

// ProposalFilter narrows proposal listings. Zero values mean no filter.
type ProposalFilter struct {
	AuthCode    AuthCode
	CanonicalID *int64
	Slug        string
	// Participant matches proposals created or last updated by the actor ID.
	Participant   string
	CreatedBefore time.Time
}
