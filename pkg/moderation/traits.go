package moderation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Traits describes the kind-specific parts of a payload type.
type Traits[T any] interface {
	Kind() Kind
	// SlugSource returns the field the slug is derived from.
	SlugSource(data T) string
	Validate(data T) error
	// Prepare normalizes caller input before it is staged. current is the
	// canonical record being edited, or nil for an add.
	Prepare(data *T, actor Actor, current *Record[T])
	// HasAsset reports whether the kind carries an image asset.
	HasAsset() bool
	Asset(data T) string
	SetAsset(data *T, path string)
}

func validateStruct(kind Kind, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: invalid %s: %v", ErrBadRequest, kind, err)
	}
	return nil
}

// CategoryTraits is the Traits of categories.
type CategoryTraits struct{}

func (CategoryTraits) Kind() Kind { return KindCategory }
func (CategoryTraits) SlugSource(d CategoryFields) string { return d.Name }
func (CategoryTraits) Validate(d CategoryFields) error { return validateStruct(KindCategory, d) }
func (CategoryTraits) HasAsset() bool { return false }
func (CategoryTraits) Asset(CategoryFields) string { return "" }
func (CategoryTraits) SetAsset(*CategoryFields, string) {}
func (CategoryTraits) Prepare(d *CategoryFields, _ Actor, _ *Record[CategoryFields]) {
	d.Name = strings.TrimSpace(d.Name)
}

// TagTraits is the Traits of tags.
type TagTraits struct{}

func (TagTraits) Kind() Kind { return KindTag }
func (TagTraits) SlugSource(d TagFields) string { return d.Name }
func (TagTraits) Validate(d TagFields) error { return validateStruct(KindTag, d) }
func (TagTraits) HasAsset() bool { return false }
func (TagTraits) Asset(TagFields) string { return "" }
func (TagTraits) SetAsset(*TagFields, string) {}
func (TagTraits) Prepare(d *TagFields, _ Actor, _ *Record[TagFields]) {
	d.Name = strings.TrimSpace(d.Name)
}

// ArticleTraits is the Traits of articles. The thumbnail is the asset.
type ArticleTraits struct{}

func (ArticleTraits) Kind() Kind { return KindArticle }
func (ArticleTraits) SlugSource(d ArticleFields) string { return d.Title }
func (ArticleTraits) Validate(d ArticleFields) error { return validateStruct(KindArticle, d) }
func (ArticleTraits) HasAsset() bool { return true }
func (ArticleTraits) Asset(d ArticleFields) string { return d.Thumbnail }
func (ArticleTraits) SetAsset(d *ArticleFields, p string) { d.Thumbnail = p }

// Prepare keeps the original author across edits and never lets a caller
// set the live thumbnail directly.
func (ArticleTraits) Prepare(d *ArticleFields, actor Actor, current *Record[ArticleFields]) {
	d.Title = strings.TrimSpace(d.Title)
	d.TagIDs = dedupeIDs(d.TagIDs)
	if current == nil {
		d.AuthorID = actor.ID
		d.Thumbnail = ""
		return
	}
	d.AuthorID = current.Data.AuthorID
	d.Thumbnail = current.Data.Thumbnail
}

func dedupeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
