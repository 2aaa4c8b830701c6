package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// payload is a decoded submission body. close releases whatever the decoder
// holds open, such as multipart file handles.
type payload[T any] struct {
	data  T
	asset *moderation.AssetUpload
	close func()
}

type (
	decodeFunc[T any]  func(r *http.Request) (payload[T], error)
	presentFunc[T any] func(ctx context.Context, views []moderation.View[T]) ([]any, error)
)

// kindHandler serves the moderation routes of one content kind
type kindHandler[T any] struct {
	engine  *moderation.Engine[T]
	decode  decodeFunc[T]
	present presentFunc[T]
}

func newKindHandler[T any](engine *moderation.Engine[T], decode decodeFunc[T], present presentFunc[T]) *kindHandler[T] {
	if decode == nil {
		decode = decodeJSON[T]
	}
	if present == nil {
		present = presentViews[T]
	}
	return &kindHandler[T]{engine: engine, decode: decode, present: present}
}

// routes registers the kind's routes on r
func (h *kindHandler[T]) routes(r chi.Router) {
	r.Post("/", h.SubmitAdd)
	r.Get("/", h.List)
	r.Get("/approved", h.ListApproved)
	r.Get("/me", h.ListMine)
	r.Get("/slug/{slug}", h.GetBySlug)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.SubmitEdit)
	r.Delete("/{id}", h.SubmitDelete)

	r.Get("/proposals", h.ListProposals)
	r.Get("/proposals/{id}", h.GetProposal)
	r.Put("/proposals/{id}/decision", h.Decide)
}

// DecisionRequest is the body of an admin decision
type DecisionRequest struct {
	AuthCode   string `json:"auth_code"`
	ActionCode string `json:"action_code,omitempty"`
}

// SubmitAdd stages a new item
func (h *kindHandler[T]) SubmitAdd(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, moderation.ActionAdd, nil, http.StatusCreated)
}

// SubmitEdit stages a change to an existing item
func (h *kindHandler[T]) SubmitEdit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.submit(w, r, moderation.ActionEdit, &id, http.StatusOK)
}

// SubmitDelete stages the removal of an existing item
func (h *kindHandler[T]) SubmitDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	proposal, err := h.engine.Submit(r.Context(), ActorFromContext(r.Context()), moderation.SubmitRequest[T]{
		Action:      moderation.ActionDelete,
		CanonicalID: &id,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, proposal)
}

func (h *kindHandler[T]) submit(w http.ResponseWriter, r *http.Request, action moderation.ActionCode, id *int64, status int) {
	body, err := h.decode(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if body.close != nil {
		defer body.close()
	}

	proposal, err := h.engine.Submit(r.Context(), ActorFromContext(r.Context()), moderation.SubmitRequest[T]{
		Action:      action,
		CanonicalID: id,
		Data:        body.data,
		Asset:       body.asset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, proposal)
}

// List returns the reconciled views visible to the caller
func (h *kindHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.List(r.Context(), ActorFromContext(r.Context()))
	h.renderViews(w, r, views, err)
}

// ListApproved returns canonical items only
func (h *kindHandler[T]) ListApproved(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.ListApproved(r.Context())
	h.renderViews(w, r, views, err)
}

// ListMine returns the approved items created by the caller. Pending
// proposals are not included.
func (h *kindHandler[T]) ListMine(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.ListMine(r.Context(), ActorFromContext(r.Context()))
	h.renderViews(w, r, views, err)
}

// Get returns one reconciled view
func (h *kindHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.engine.Get(r.Context(), ActorFromContext(r.Context()), id)
	h.renderView(w, r, view, err)
}

// GetBySlug returns the canonical item with a slug
func (h *kindHandler[T]) GetBySlug(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	h.renderView(w, r, view, err)
}

// ListProposals returns proposals for review, optionally filtered by auth_code
func (h *kindHandler[T]) ListProposals(w http.ResponseWriter, r *http.Request) {
	var filter moderation.ProposalFilter
	if code := r.URL.Query().Get("auth_code"); code != "" {
		filter.AuthCode = moderation.AuthCode(code)
	}
	if raw := r.URL.Query().Get("canonical_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.CanonicalID = &id
	}

	proposals, err := h.engine.ListProposals(r.Context(), ActorFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, proposals)
}

// GetProposal returns one proposal visible to the caller
func (h *kindHandler[T]) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	proposal, err := h.engine.GetProposal(r.Context(), ActorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, proposal)
}

// Decide approves or rejects a pending proposal
func (h *kindHandler[T]) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req DecisionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid decision body: %v", moderation.ErrBadRequest, err))
		return
	}

	proposal, err := h.engine.Decide(r.Context(), ActorFromContext(r.Context()), moderation.DecideRequest{
		ProposalID: id,
		AuthCode:   req.AuthCode,
		ActionCode: req.ActionCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if proposal.AuthCode == moderation.AuthApproved && proposal.ActionCode == moderation.ActionDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	render.JSON(w, r, proposal)
}

func (h *kindHandler[T]) renderViews(w http.ResponseWriter, r *http.Request, views []moderation.View[T], err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.present(r.Context(), views)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (h *kindHandler[T]) renderView(w http.ResponseWriter, r *http.Request, view moderation.View[T], err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.present(r.Context(), []moderation.View[T]{view})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, out[0])
}

func presentViews[T any](_ context.Context, views []moderation.View[T]) ([]any, error) {
	out := make([]any, len(views))
	for i, v := range views {
		out[i] = v
	}
	return out, nil
}

func decodeJSON[T any](r *http.Request) (payload[T], error) {
	var p payload[T]
	if err := render.DecodeJSON(r.Body, &p.data); err != nil {
		return p, fmt.Errorf("%w: invalid request body: %v", moderation.ErrBadRequest, err)
	}
	return p, nil
}

func pathID(r *http.Request) (int64, error) {
	return parseID(chi.URLParam(r, "id"))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", moderation.ErrBadRequest, raw)
	}
	return id, nil
}
