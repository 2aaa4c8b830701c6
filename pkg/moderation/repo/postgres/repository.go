package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Conn is a DBTX that can start transactions, such as *pgxpool.Pool or *pgx.Conn
type Conn interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TableNames are the tables holding one kind
type TableNames struct {
	Canonical string
	Proposals string
}

var kindTables = map[moderation.Kind]TableNames{
	moderation.KindArticle:  {Canonical: "articles", Proposals: "article_proposals"},
	moderation.KindCategory: {Canonical: "categories", Proposals: "category_proposals"},
	moderation.KindTag:      {Canonical: "tags", Proposals: "tag_proposals"},
}

// TablesFor returns the table names of kind
func TablesFor(kind moderation.Kind) (TableNames, error) {
	names, ok := kindTables[kind]
	if !ok {
		return TableNames{}, fmt.Errorf("no tables for kind %q", kind)
	}
	return names, nil
}

// Repository implements moderation.Repository using PostgreSQL
type Repository struct {
	articles   *Backend[moderation.ArticleFields]
	categories *Backend[moderation.CategoryFields]
	tags       *Backend[moderation.TagFields]
	comments   *CommentStore
}

// New creates a new PostgreSQL repository
func New(db Conn) *Repository {
	return &Repository{
		articles:   NewBackend[moderation.ArticleFields](db, kindTables[moderation.KindArticle]),
		categories: NewBackend[moderation.CategoryFields](db, kindTables[moderation.KindCategory]),
		tags:       NewBackend[moderation.TagFields](db, kindTables[moderation.KindTag]),
		comments:   NewCommentStore(db),
	}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

func (r *Repository) Articles() moderation.Backend[moderation.ArticleFields] {
	return r.articles
}

func (r *Repository) Categories() moderation.Backend[moderation.CategoryFields] {
	return r.categories
}

func (r *Repository) Tags() moderation.Backend[moderation.TagFields] {
	return r.tags
}

func (r *Repository) Comments() moderation.CommentStore {
	return r.comments
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return moderation.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return uniqueViolation(operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: referenced record of %s", moderation.ErrNotFound, operation)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", moderation.ErrBadRequest, pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s violates %s", moderation.ErrBadRequest, operation, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// uniqueViolation maps the slug and pending-proposal indexes onto the
// engine's conflict refinements
func uniqueViolation(operation, constraint string) error {
	switch {
	case strings.HasSuffix(constraint, "_pending_canonical_key"):
		return fmt.Errorf("%w: %s", moderation.ErrPendingExists, operation)
	case strings.HasSuffix(constraint, "_slug_key"):
		return fmt.Errorf("%w: %s", moderation.ErrSlugTaken, operation)
	default:
		return fmt.Errorf("%w: %s violates %s", moderation.ErrConflict, operation, constraint)
	}
}
