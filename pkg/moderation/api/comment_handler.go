package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// CommentRequest is the body of a new or edited comment
type CommentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) commentRoutes(r chi.Router) {
	r.Get("/{id}", h.GetComment)
	r.Put("/{id}", h.UpdateComment)
	r.Delete("/{id}", h.DeleteComment)
}

func decodeComment(r *http.Request) (CommentRequest, error) {
	var req CommentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return req, fmt.Errorf("%w: invalid comment body: %v", moderation.ErrBadRequest, err)
	}
	return req, nil
}

// AddComment publishes a comment on the article in the path
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	articleID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeComment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	comment, err := h.service.AddComment(r.Context(), ActorFromContext(r.Context()), articleID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, comment)
}

// ListComments returns the comments of the article in the path
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	articleID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	comments, err := h.service.ListComments(r.Context(), articleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, comments)
}

func (h *Handler) GetComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	comment, err := h.service.GetComment(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, comment)
}

// UpdateComment replaces the content of the caller's comment
func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeComment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	comment, err := h.service.UpdateComment(r.Context(), ActorFromContext(r.Context()), id, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, comment)
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.service.DeleteComment(r.Context(), ActorFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
