package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// Backend implements moderation.Backend for one kind. Payloads are stored
// as JSONB next to the typed moderation columns.
type Backend[T any] struct {
	db     Conn
	tables TableNames
}

// NewBackend creates a backend over the given tables
func NewBackend[T any](db Conn, tables TableNames) *Backend[T] {
	return &Backend[T]{db: db, tables: tables}
}

func (b *Backend[T]) Canonical() moderation.CanonicalStore[T] {
	return &canonicalStore[T]{db: b.db, table: b.tables.Canonical}
}

func (b *Backend[T]) Proposals() moderation.ProposalStore[T] {
	return &proposalStore[T]{db: b.db, table: b.tables.Proposals}
}

// WithTx runs fn in a transaction. Rows read through tx are locked until
// commit.
func (b *Backend[T]) WithTx(ctx context.Context, fn func(tx moderation.Tables[T]) error) error {
	return pgx.BeginFunc(ctx, b.db, func(tx pgx.Tx) error {
		return fn(txTables[T]{tx: tx, tables: b.tables})
	})
}

type txTables[T any] struct {
	tx     pgx.Tx
	tables TableNames
}

func (t txTables[T]) Canonical() moderation.CanonicalStore[T] {
	return &canonicalStore[T]{db: t.tx, table: t.tables.Canonical, forUpdate: true}
}

func (t txTables[T]) Proposals() moderation.ProposalStore[T] {
	return &proposalStore[T]{db: t.tx, table: t.tables.Proposals, forUpdate: true}
}

// Canonical records

type canonicalStore[T any] struct {
	db        DBTX
	table     string
	forUpdate bool
}

const recordColumns = `id, slug, data, created_by, updated_by, created_at, updated_at`

func (s *canonicalStore[T]) lock() string {
	if s.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func scanRecord[T any](row pgx.Row) (*moderation.Record[T], error) {
	var r moderation.Record[T]
	if err := row.Scan(&r.ID, &r.Slug, &r.Data, &r.CreatedBy, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *canonicalStore[T]) Create(ctx context.Context, record *moderation.Record[T]) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (slug, data, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, s.table)

	err := s.db.QueryRow(ctx, query,
		record.Slug, record.Data, record.CreatedBy, record.UpdatedBy,
		record.CreatedAt, record.UpdatedAt).Scan(&record.ID)
	if err != nil {
		return handlePostgresError("create "+s.table, err)
	}
	return nil
}

func (s *canonicalStore[T]) Get(ctx context.Context, id int64) (*moderation.Record[T], error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1%s`, recordColumns, s.table, s.lock())
	record, err := scanRecord[T](s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("get "+s.table, err)
	}
	return record, nil
}

func (s *canonicalStore[T]) GetBySlug(ctx context.Context, slug string) (*moderation.Record[T], error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1`, recordColumns, s.table)
	record, err := scanRecord[T](s.db.QueryRow(ctx, query, slug))
	if err != nil {
		return nil, handlePostgresError("get "+s.table+" by slug", err)
	}
	return record, nil
}

func (s *canonicalStore[T]) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE slug = $1)`, s.table)
	var exists bool
	if err := s.db.QueryRow(ctx, query, slug).Scan(&exists); err != nil {
		return false, handlePostgresError("check "+s.table+" slug", err)
	}
	return exists, nil
}

func (s *canonicalStore[T]) Update(ctx context.Context, record *moderation.Record[T]) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			slug = $2, data = $3, updated_by = $4, updated_at = $5
		WHERE id = $1`, s.table)

	tag, err := s.db.Exec(ctx, query,
		record.ID, record.Slug, record.Data, record.UpdatedBy, record.UpdatedAt)
	if err != nil {
		return handlePostgresError("update "+s.table, err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func (s *canonicalStore[T]) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return handlePostgresError("delete "+s.table, err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func (s *canonicalStore[T]) List(ctx context.Context, createdBy string) ([]*moderation.Record[T], error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1::text = '' OR created_by = $1)
		ORDER BY created_at DESC, id DESC`, recordColumns, s.table)
	return s.query(ctx, "list "+s.table, query, createdBy)
}

func (s *canonicalStore[T]) ListByIDs(ctx context.Context, ids []int64) ([]*moderation.Record[T], error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = ANY($1)
		ORDER BY created_at DESC, id DESC`, recordColumns, s.table)
	return s.query(ctx, "list "+s.table+" by ids", query, ids)
}

func (s *canonicalStore[T]) query(ctx context.Context, op, query string, args ...interface{}) ([]*moderation.Record[T], error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError(op, err)
	}
	defer rows.Close()

	var records []*moderation.Record[T]
	for rows.Next() {
		record, err := scanRecord[T](rows)
		if err != nil {
			return nil, handlePostgresError(op, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError(op, err)
	}
	return records, nil
}

// Proposals

type proposalStore[T any] struct {
	db        DBTX
	table     string
	forUpdate bool
}

const proposalColumns = `id, canonical_id, slug, data, staged_asset, auth_code, action_code,
		created_by, updated_by, created_at, updated_at`

func scanProposal[T any](row pgx.Row) (*moderation.Proposal[T], error) {
	var p moderation.Proposal[T]
	err := row.Scan(
		&p.ID, &p.CanonicalID, &p.Slug, &p.Data, &p.StagedAsset, &p.AuthCode, &p.ActionCode,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *proposalStore[T]) Create(ctx context.Context, p *moderation.Proposal[T]) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			canonical_id, slug, data, staged_asset, auth_code, action_code,
			created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`, s.table)

	err := s.db.QueryRow(ctx, query,
		p.CanonicalID, p.Slug, p.Data, p.StagedAsset, p.AuthCode, p.ActionCode,
		p.CreatedBy, p.UpdatedBy, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return handlePostgresError("create "+s.table, err)
	}
	return nil
}

func (s *proposalStore[T]) Get(ctx context.Context, id int64) (*moderation.Proposal[T], error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, proposalColumns, s.table)
	if s.forUpdate {
		query += " FOR UPDATE"
	}
	p, err := scanProposal[T](s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("get "+s.table, err)
	}
	return p, nil
}

func (s *proposalStore[T]) Update(ctx context.Context, p *moderation.Proposal[T]) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			canonical_id = $2, slug = $3, data = $4, staged_asset = $5,
			auth_code = $6, updated_by = $7, updated_at = $8
		WHERE id = $1`, s.table)

	tag, err := s.db.Exec(ctx, query,
		p.ID, p.CanonicalID, p.Slug, p.Data, p.StagedAsset,
		p.AuthCode, p.UpdatedBy, p.UpdatedAt)
	if err != nil {
		return handlePostgresError("update "+s.table, err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

// DeleteRejected deletes the row only while it is rejected; the row lock
// taken by the delete is held for this statement alone.
func (s *proposalStore[T]) DeleteRejected(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND auth_code = 'R'`, s.table)
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return handlePostgresError("delete "+s.table, err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func (s *proposalStore[T]) List(ctx context.Context, filter moderation.ProposalFilter) ([]*moderation.Proposal[T], error) {
	where, args := buildProposalWhere(filter)
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY created_at DESC, id DESC`, proposalColumns, s.table, where)

	op := "list " + s.table
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError(op, err)
	}
	defer rows.Close()

	var proposals []*moderation.Proposal[T]
	for rows.Next() {
		p, err := scanProposal[T](rows)
		if err != nil {
			return nil, handlePostgresError(op, err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError(op, err)
	}
	return proposals, nil
}

// buildProposalWhere builds the WHERE clause for proposal listings
func buildProposalWhere(filter moderation.ProposalFilter) (string, []interface{}) {
	conds := []string{"1=1"}
	args := []interface{}{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.AuthCode != "" {
		add("auth_code = $%d", filter.AuthCode)
	}
	if filter.CanonicalID != nil {
		add("canonical_id = $%d", *filter.CanonicalID)
	}
	if filter.Slug != "" {
		add("slug = $%d", filter.Slug)
	}
	if filter.Participant != "" {
		args = append(args, filter.Participant)
		conds = append(conds, fmt.Sprintf("(created_by = $%[1]d OR updated_by = $%[1]d)", len(args)))
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore)
	}
	return strings.Join(conds, " AND "), args
}
