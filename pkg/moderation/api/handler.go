package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// multipartOverhead is the room left for form fields next to an upload
const multipartOverhead int64 = 1 << 20

// Handler serves the moderation HTTP API
type Handler struct {
	service   *moderation.Service
	blobs     moderation.BlobStore
	auth      *jwtauth.JWTAuth
	maxUpload int64

	articles   *kindHandler[moderation.ArticleFields]
	categories *kindHandler[moderation.CategoryFields]
	tags       *kindHandler[moderation.TagFields]
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithMaxUploadBytes sets the size ceiling of a multipart upload
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// NewHandler creates a handler over service. blobs serves promoted assets
// and may be nil when assets are not exposed.
func NewHandler(service *moderation.Service, blobs moderation.BlobStore, auth *jwtauth.JWTAuth, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:   service,
		blobs:     blobs,
		auth:      auth,
		maxUpload: moderation.DefaultMaxAssetBytes,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.articles = newKindHandler(service.Articles(), h.decodeArticle, h.presentArticles)
	h.categories = newKindHandler[moderation.CategoryFields](service.Categories(), nil, nil)
	h.tags = newKindHandler[moderation.TagFields](service.Tags(), nil, nil)
	return h
}

// Routes returns the moderation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(Authenticator(h.auth))

	r.Route("/articles", func(r chi.Router) {
		h.articles.routes(r)
		r.Get("/{id}/comments", h.ListComments)
		r.Post("/{id}/comments", h.AddComment)
	})
	r.Route("/comments", h.commentRoutes)
	r.Route("/categories", func(r chi.Router) {
		h.categories.routes(r)
		r.Get("/slug/{slug}/articles", h.ArticlesByCategory)
	})
	r.Route("/tags", func(r chi.Router) {
		h.tags.routes(r)
		r.Get("/slug/{slug}/articles", h.ArticlesByTag)
	})
	return r
}

// AssetRoutes returns the routes serving promoted assets
func (h *Handler) AssetRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/*", h.GetAsset)
	return r
}

// ArticlesByCategory returns canonical articles in the category with the slug
func (h *Handler) ArticlesByCategory(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ArticlesByCategorySlug(r.Context(), chi.URLParam(r, "slug"))
	h.articles.renderViews(w, r, views, err)
}

// ArticlesByTag returns canonical articles carrying the tag with the slug
func (h *Handler) ArticlesByTag(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ArticlesByTagSlug(r.Context(), chi.URLParam(r, "slug"))
	h.articles.renderViews(w, r, views, err)
}

// GetAsset streams a promoted asset. Staged assets are never served.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, r, fmt.Errorf("%w: assets are not served", moderation.ErrNotFound))
		return
	}

	name := path.Clean("/" + chi.URLParam(r, "*"))
	if name == "/" {
		writeError(w, r, fmt.Errorf("%w: asset", moderation.ErrNotFound))
		return
	}
	key := "public" + name

	body, err := h.blobs.Download(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (h *Handler) presentArticles(ctx context.Context, views []moderation.View[moderation.ArticleFields]) ([]any, error) {
	details, err := h.service.ArticleDetails(ctx, views)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(details))
	for i, d := range details {
		out[i] = d
	}
	return out, nil
}

// decodeArticle accepts either a JSON body or a multipart form with a JSON
// "data" part and an optional "thumbnail" file.
func (h *Handler) decodeArticle(r *http.Request) (payload[moderation.ArticleFields], error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return decodeJSON[moderation.ArticleFields](r)
	}

	var p payload[moderation.ArticleFields]
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return p, fmt.Errorf("%w: file exceeds %d bytes", moderation.ErrAssetRejected, h.maxUpload)
		}
		return p, fmt.Errorf("%w: invalid multipart form: %v", moderation.ErrBadRequest, err)
	}
	p.close = func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}

	data := r.FormValue("data")
	if strings.TrimSpace(data) == "" {
		p.close()
		return payload[moderation.ArticleFields]{}, fmt.Errorf("%w: missing data part", moderation.ErrBadRequest)
	}
	if err := json.Unmarshal([]byte(data), &p.data); err != nil {
		p.close()
		return payload[moderation.ArticleFields]{}, fmt.Errorf("%w: invalid data part: %v", moderation.ErrBadRequest, err)
	}

	file, header, err := r.FormFile("thumbnail")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return p, nil
	case err != nil:
		p.close()
		return payload[moderation.ArticleFields]{}, fmt.Errorf("%w: invalid thumbnail: %v", moderation.ErrBadRequest, err)
	}

	removeForm := p.close
	p.close = func() {
		file.Close()
		removeForm()
	}
	p.asset = &moderation.AssetUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
	return p, nil
}
