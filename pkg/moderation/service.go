package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Service bundles the engines of every kind and the reads that join across
// kinds.
type Service struct {
	articles   *Engine[ArticleFields]
	categories *Engine[CategoryFields]
	tags       *Engine[TagFields]
	comments   CommentStore
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Service over repo. The options apply to every engine.
func New(repo Repository, opts ...EngineOption) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if repo.Comments() == nil {
		return nil, fmt.Errorf("comment store is required")
	}
	o := engineOptions{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	categories, err := NewEngine[CategoryFields](CategoryTraits{}, repo.Categories(), opts...)
	if err != nil {
		return nil, err
	}
	tags, err := NewEngine[TagFields](TagTraits{}, repo.Tags(), opts...)
	if err != nil {
		return nil, err
	}

	categoryExists := func(ctx context.Context, d ArticleFields) error {
		if _, err := repo.Categories().Canonical().Get(ctx, d.CategoryID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: category %d", ErrNotFound, d.CategoryID)
			}
			return err
		}
		return nil
	}
	articleOpts := append(slices.Clip(opts), WithPayloadCheck(PayloadCheck[ArticleFields](categoryExists)))
	articles, err := NewEngine[ArticleFields](ArticleTraits{}, repo.Articles(), articleOpts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		articles:   articles,
		categories: categories,
		tags:       tags,
		comments:   repo.Comments(),
		logger:     o.logger.With("kind", "comment"),
		now:        func() time.Time { return o.now().UTC() },
	}, nil
}

// Articles returns the article engine.
func (s *Service) Articles() *Engine[ArticleFields] { return s.articles }

// Categories returns the category engine.
func (s *Service) Categories() *Engine[CategoryFields] { return s.categories }

// Tags returns the tag engine.
func (s *Service) Tags() *Engine[TagFields] { return s.tags }

// Sweepables returns every engine, for the retention sweeper.
func (s *Service) Sweepables() []Sweepable {
	return []Sweepable{s.articles, s.categories, s.tags}
}

// TagRef is a tag joined onto an article.
type TagRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ArticleDetail is an article view with its category and tags joined from
// canonical data.
type ArticleDetail struct {
	View[ArticleFields]
	CategoryName string   `json:"category_name,omitempty"`
	Tags         []TagRef `json:"tags"`
}

// ArticlesByCategorySlug returns the canonical articles in a category.
func (s *Service) ArticlesByCategorySlug(ctx context.Context, slug string) ([]View[ArticleFields], error) {
	category, err := s.categories.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.filterArticles(ctx, func(d ArticleFields) bool {
		return d.CategoryID == category.ID
	})
}

// ArticlesByTagSlug returns the canonical articles carrying a tag.
func (s *Service) ArticlesByTagSlug(ctx context.Context, slug string) ([]View[ArticleFields], error) {
	tag, err := s.tags.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.filterArticles(ctx, func(d ArticleFields) bool {
		return slices.Contains(d.TagIDs, tag.ID)
	})
}

func (s *Service) filterArticles(ctx context.Context, keep func(ArticleFields) bool) ([]View[ArticleFields], error) {
	all, err := s.articles.ListApproved(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]View[ArticleFields], 0, len(all))
	for _, v := range all {
		if keep(v.Data) {
			out = append(out, v)
		}
	}
	return out, nil
}

// ArticleDetails joins category names and tags onto views. References that
// have no canonical record are skipped.
func (s *Service) ArticleDetails(ctx context.Context, views []View[ArticleFields]) ([]ArticleDetail, error) {
	var categoryIDs, tagIDs []int64
	for _, v := range views {
		categoryIDs = append(categoryIDs, v.Data.CategoryID)
		tagIDs = append(tagIDs, v.Data.TagIDs...)
	}

	categories, err := s.categories.Backend().Canonical().ListByIDs(ctx, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	tags, err := s.tags.Backend().Canonical().ListByIDs(ctx, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}

	categoryNames := make(map[int64]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Data.Name
	}
	tagsByID := make(map[int64]TagRef, len(tags))
	for _, t := range tags {
		tagsByID[t.ID] = TagRef{ID: t.ID, Name: t.Data.Name, Slug: t.Slug}
	}

	details := make([]ArticleDetail, 0, len(views))
	for _, v := range views {
		d := ArticleDetail{View: v, CategoryName: categoryNames[v.Data.CategoryID], Tags: []TagRef{}}
		for _, id := range v.Data.TagIDs {
			if t, ok := tagsByID[id]; ok {
				d.Tags = append(d.Tags, t)
			}
		}
		details = append(details, d)
	}
	return details, nil
}
