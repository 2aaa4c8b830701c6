package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, collapses every run of non-alphanumeric characters
// into a single "-" and trims leading and trailing dashes.
func Slugify(s string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

// reserveSlug derives the slug for candidate and checks that neither a
// canonical record nor a pending proposal holds it. current is the record
// being edited, if any; keeping its own slug is not a collision.
func reserveSlug[T any](ctx context.Context, tx Tables[T], candidate string, current *Record[T]) (string, error) {
	slug := Slugify(candidate)
	if slug == "" {
		return "", fmt.Errorf("%w: %q yields an empty slug", ErrBadRequest, candidate)
	}

	if current == nil || current.Slug != slug {
		exists, err := tx.Canonical().ExistsBySlug(ctx, slug)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
	}

	pending, err := tx.Proposals().List(ctx, ProposalFilter{AuthCode: AuthPending, Slug: slug})
	if err != nil {
		return "", err
	}
	if len(pending) > 0 {
		return "", fmt.Errorf("%w: %s (pending proposal %d)", ErrSlugTaken, slug, pending[0].ID)
	}
	return slug, nil
}

// ensureSlugFree is the final canonical-store check made at approval time.
func ensureSlugFree[T any](ctx context.Context, tx Tables[T], slug string) error {
	exists, err := tx.Canonical().ExistsBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrSlugTaken, slug)
	}
	return nil
}
