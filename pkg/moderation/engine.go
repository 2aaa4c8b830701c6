package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoAssetStore indicates an asset operation on an engine without an asset store
var ErrNoAssetStore = errors.New("asset store is not configured")

// PayloadCheck is an extra validation run on a payload before it is staged.
type PayloadCheck[T any] func(ctx context.Context, data T) error

type engineOptions struct {
	assets AssetStore
	logger *slog.Logger
	now    func() time.Time
	checks []any
}

// EngineOption configures an Engine
type EngineOption func(*engineOptions)

// WithAssetStore sets the store used for staged and promoted assets
func WithAssetStore(assets AssetStore) EngineOption {
	return func(o *engineOptions) {
		o.assets = assets
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		o.now = now
	}
}

// WithPayloadCheck adds a check run on every add and edit payload. The
// check's payload type must match the engine's.
func WithPayloadCheck[T any](check PayloadCheck[T]) EngineOption {
	return func(o *engineOptions) {
		o.checks = append(o.checks, check)
	}
}

// Engine moderates the items of one kind.
type Engine[T any] struct {
	traits  Traits[T]
	backend Backend[T]
	assets  AssetStore
	logger  *slog.Logger
	now     func() time.Time
	checks  []PayloadCheck[T]
}

// NewEngine creates an engine for the kind described by traits.
func NewEngine[T any](traits Traits[T], backend Backend[T], opts ...EngineOption) (*Engine[T], error) {
	if traits == nil {
		return nil, fmt.Errorf("traits are required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}

	o := engineOptions{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine[T]{
		traits:  traits,
		backend: backend,
		assets:  o.assets,
		logger:  o.logger.With("kind", traits.Kind()),
		now:     func() time.Time { return o.now().UTC() },
	}
	for _, c := range o.checks {
		check, ok := c.(PayloadCheck[T])
		if !ok {
			return nil, fmt.Errorf("payload check %T does not apply to %s", c, traits.Kind())
		}
		e.checks = append(e.checks, check)
	}
	return e, nil
}

// Kind returns the kind the engine moderates.
func (e *Engine[T]) Kind() Kind {
	return e.traits.Kind()
}

// Backend returns the storage backend of the engine.
func (e *Engine[T]) Backend() Backend[T] {
	return e.backend
}

// Submit stages a change as a pending proposal. Nobody bypasses review:
// proposals from admins are pending too.
func (e *Engine[T]) Submit(ctx context.Context, actor Actor, req SubmitRequest[T]) (*Proposal[T], error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("%w: anonymous actors cannot submit", ErrForbidden)
	}
	if _, err := canSubmit(req.Action, req.CanonicalID); err != nil {
		return nil, err
	}
	if req.Asset != nil {
		if !e.traits.HasAsset() || req.Action == ActionDelete {
			return nil, fmt.Errorf("%w: %s %s does not accept an asset", ErrBadRequest, e.Kind(), req.Action)
		}
		if e.assets == nil {
			return nil, ErrNoAssetStore
		}
	}

	var (
		proposal *Proposal[T]
		staged   string
	)
	err := e.backend.WithTx(ctx, func(tx Tables[T]) error {
		var current *Record[T]
		if req.Action != ActionAdd {
			rec, err := e.target(ctx, tx, actor, *req.CanonicalID)
			if err != nil {
				return err
			}
			current = rec
		}

		now := e.now()
		p := &Proposal[T]{
			CanonicalID: req.CanonicalID,
			AuthCode:    AuthPending,
			ActionCode:  req.Action,
			CreatedBy:   actor.ID,
			UpdatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if req.Action == ActionDelete {
			p.Slug = current.Slug
			p.Data = current.Data
		} else {
			data := req.Data
			e.traits.Prepare(&data, actor, current)
			if err := e.validate(ctx, data); err != nil {
				return err
			}
			slug, err := reserveSlug(ctx, tx, e.traits.SlugSource(data), current)
			if err != nil {
				return err
			}
			p.Slug = slug
			p.Data = data

			if req.Asset != nil && staged == "" {
				staged, err = e.assets.SaveStaged(ctx, *req.Asset)
				if err != nil {
					return err
				}
			}
			p.StagedAsset = staged
		}

		if err := tx.Proposals().Create(ctx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if err != nil {
		if staged != "" {
			e.releaseAsset(ctx, 0, staged)
		}
		return nil, fmt.Errorf("submit %s %s: %w", e.Kind(), req.Action, err)
	}

	e.logger.Info("proposal submitted", "proposal_id", proposal.ID, "action", proposal.ActionCode, "slug", proposal.Slug, "actor", actor.ID)
	return proposal, nil
}

// target loads the record an edit or delete points at and checks that the
// actor may change it and that no other proposal is pending for it.
func (e *Engine[T]) target(ctx context.Context, tx Tables[T], actor Actor, id int64) (*Record[T], error) {
	rec, err := tx.Canonical().Get(ctx, id)
	if err != nil {
		return nil, &RecordError{Kind: e.Kind(), ID: id, Op: "load", Err: err}
	}
	if _, err := canModify(actor, rec); err != nil {
		return nil, err
	}
	pending, err := tx.Proposals().List(ctx, ProposalFilter{AuthCode: AuthPending, CanonicalID: &id})
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%w (record %d, proposal %d)", ErrPendingExists, id, pending[0].ID)
	}
	return rec, nil
}

func (e *Engine[T]) validate(ctx context.Context, data T) error {
	if err := e.traits.Validate(data); err != nil {
		return err
	}
	for _, check := range e.checks {
		if err := check(ctx, data); err != nil {
			return err
		}
	}
	return nil
}

// Decide approves or rejects a pending proposal. Approval applies the change
// to the canonical store in the same transaction. Assets that are no longer
// referenced are deleted after commit, best-effort.
func (e *Engine[T]) Decide(ctx context.Context, actor Actor, req DecideRequest) (*Proposal[T], error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can decide proposals", ErrForbidden)
	}
	decision, action, err := parseDecision(req)
	if err != nil {
		return nil, err
	}

	var (
		result    *Proposal[T]
		changes   assetChanges
		published []string
	)
	err = e.backend.WithTx(ctx, func(tx Tables[T]) error {
		changes = assetChanges{}
		defer func() { published = append(published, changes.published...) }()
		p, err := tx.Proposals().Get(ctx, req.ProposalID)
		if err != nil {
			return err
		}
		if _, err := canDecide(p.AuthCode); err != nil {
			return err
		}
		if action != "" && action != p.ActionCode {
			return fmt.Errorf("%w: action %s does not match proposal action %s", ErrInvalidCode, action, p.ActionCode)
		}

		now := e.now()
		if decision == AuthApproved {
			switch p.ActionCode {
			case ActionAdd:
				err = e.approveAdd(ctx, tx, actor, p, now, &changes)
			case ActionEdit:
				err = e.approveEdit(ctx, tx, actor, p, now, &changes)
			case ActionDelete:
				err = e.approveDelete(ctx, tx, p, &changes)
			default:
				err = fmt.Errorf("%w: unknown action code %s", ErrInvalidCode, p.ActionCode)
			}
			if err != nil {
				return err
			}
		}

		p.AuthCode = decision
		p.UpdatedBy = actor.ID
		p.UpdatedAt = now
		if err := tx.Proposals().Update(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		// Public copies made by a rolled back approval are unreferenced.
		for _, path := range published {
			e.releaseAsset(ctx, req.ProposalID, path)
		}
		return nil, &ProposalError{Kind: e.Kind(), ID: req.ProposalID, Op: "decide", Err: err}
	}

	if decision == AuthRejected && result.StagedAsset != "" {
		if e.releaseAsset(ctx, result.ID, result.StagedAsset) {
			result.StagedAsset = ""
			if err := e.backend.Proposals().Update(ctx, result); err != nil {
				e.logger.Warn("failed to clear released asset", "proposal_id", result.ID, "error", err)
			}
		}
	}
	for _, path := range changes.retired {
		e.releaseAsset(ctx, result.ID, path)
	}

	e.logger.Info("proposal decided", "proposal_id", result.ID, "auth_code", result.AuthCode, "action", result.ActionCode, "actor", actor.ID)
	return result, nil
}

// assetChanges collects the blob side effects of an approval: public copies
// made inside the transaction and paths to delete once it commits.
type assetChanges struct {
	published []string
	retired   []string
}

func (e *Engine[T]) approveAdd(ctx context.Context, tx Tables[T], actor Actor, p *Proposal[T], now time.Time, changes *assetChanges) error {
	if err := ensureSlugFree(ctx, tx, p.Slug); err != nil {
		return err
	}
	rec := &Record[T]{
		Slug:      p.Slug,
		Data:      p.Data,
		CreatedBy: p.CreatedBy,
		UpdatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Canonical().Create(ctx, rec); err != nil {
		return err
	}
	id := rec.ID
	p.CanonicalID = &id

	if p.StagedAsset == "" {
		return nil
	}
	public, err := e.promote(ctx, p.StagedAsset, changes)
	if err != nil {
		return err
	}
	e.traits.SetAsset(&rec.Data, public)
	e.traits.SetAsset(&p.Data, public)
	p.StagedAsset = ""
	return tx.Canonical().Update(ctx, rec)
}

func (e *Engine[T]) approveEdit(ctx context.Context, tx Tables[T], actor Actor, p *Proposal[T], now time.Time, changes *assetChanges) error {
	rec, err := tx.Canonical().Get(ctx, *p.CanonicalID)
	if err != nil {
		return &RecordError{Kind: e.Kind(), ID: *p.CanonicalID, Op: "load", Err: err}
	}
	if p.Slug != rec.Slug {
		if err := ensureSlugFree(ctx, tx, p.Slug); err != nil {
			return err
		}
	}

	live := e.traits.Asset(rec.Data)
	rec.Slug = p.Slug
	rec.Data = p.Data
	e.traits.SetAsset(&rec.Data, live)
	if p.StagedAsset != "" {
		public, err := e.promote(ctx, p.StagedAsset, changes)
		if err != nil {
			return err
		}
		e.traits.SetAsset(&rec.Data, public)
		e.traits.SetAsset(&p.Data, public)
		p.StagedAsset = ""
		if live != "" && live != public {
			changes.retired = append(changes.retired, live)
		}
	}
	rec.UpdatedBy = actor.ID
	rec.UpdatedAt = now
	return tx.Canonical().Update(ctx, rec)
}

func (e *Engine[T]) approveDelete(ctx context.Context, tx Tables[T], p *Proposal[T], changes *assetChanges) error {
	rec, err := tx.Canonical().Get(ctx, *p.CanonicalID)
	if err != nil {
		return &RecordError{Kind: e.Kind(), ID: *p.CanonicalID, Op: "load", Err: err}
	}
	if err := tx.Canonical().Delete(ctx, rec.ID); err != nil {
		return err
	}

	if live := e.traits.Asset(rec.Data); live != "" {
		changes.retired = append(changes.retired, live)
	}
	if p.StagedAsset != "" {
		changes.retired = append(changes.retired, p.StagedAsset)
		p.StagedAsset = ""
	}
	return nil
}

// promote publishes a copy of a staged asset. The staged original is deleted
// only after the approval commits.
func (e *Engine[T]) promote(ctx context.Context, path string, changes *assetChanges) (string, error) {
	if e.assets == nil {
		return "", ErrNoAssetStore
	}
	public, err := e.assets.Promote(ctx, path)
	if err != nil {
		return "", err
	}
	changes.published = append(changes.published, public)
	changes.retired = append(changes.retired, path)
	return public, nil
}

// releaseAsset deletes an asset that nothing references any more. Failures
// are logged and reported as false.
func (e *Engine[T]) releaseAsset(ctx context.Context, proposalID int64, path string) bool {
	if e.assets == nil {
		e.logger.Warn("cannot release asset", "proposal_id", proposalID, "path", path, "error", ErrNoAssetStore)
		return false
	}
	if err := e.assets.Delete(ctx, path); err != nil {
		e.logger.Warn("failed to delete asset", "proposal_id", proposalID, "path", path, "error", err)
		return false
	}
	return true
}
