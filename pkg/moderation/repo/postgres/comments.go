package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

const commentsTable = "comments"

const commentColumns = `id, article_id, author_name, content, created_by, updated_by, created_at, updated_at`

// CommentStore implements moderation.CommentStore using PostgreSQL. Comments
// of a deleted article go with it through the foreign key.
type CommentStore struct {
	db DBTX
}

// NewCommentStore creates a comment store over db
func NewCommentStore(db DBTX) *CommentStore {
	return &CommentStore{db: db}
}

func scanComment(row pgx.Row) (*moderation.Comment, error) {
	var c moderation.Comment
	if err := row.Scan(&c.ID, &c.ArticleID, &c.AuthorName, &c.Content,
		&c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CommentStore) Create(ctx context.Context, comment *moderation.Comment) error {
	query := `
		INSERT INTO comments (article_id, author_name, content, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := s.db.QueryRow(ctx, query,
		comment.ArticleID, comment.AuthorName, comment.Content, comment.CreatedBy,
		comment.UpdatedBy, comment.CreatedAt, comment.UpdatedAt).Scan(&comment.ID)
	if err != nil {
		return handlePostgresError("create comment", err)
	}
	return nil
}

func (s *CommentStore) Get(ctx context.Context, id int64) (*moderation.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	comment, err := scanComment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("get comment", err)
	}
	return comment, nil
}

func (s *CommentStore) ListByArticle(ctx context.Context, articleID int64) ([]*moderation.Comment, error) {
	query := `
		SELECT ` + commentColumns + ` FROM comments
		WHERE article_id = $1
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, articleID)
	if err != nil {
		return nil, handlePostgresError("list comments", err)
	}
	defer rows.Close()

	var comments []*moderation.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, handlePostgresError("list comments", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list comments", err)
	}
	return comments, nil
}

func (s *CommentStore) Update(ctx context.Context, comment *moderation.Comment) error {
	query := `
		UPDATE comments SET
			content = $2, updated_by = $3, updated_at = $4
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, comment.ID, comment.Content, comment.UpdatedBy, comment.UpdatedAt)
	if err != nil {
		return handlePostgresError("update comment", err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func (s *CommentStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete comment", err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}
