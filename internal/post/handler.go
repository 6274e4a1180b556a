package post

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prekclip/server/internal/media"
	"github.com/prekclip/server/internal/store"
	"github.com/prekclip/server/pkg/request"
	"github.com/prekclip/server/pkg/response"
)

// MediaStore saves uploaded media and removes it again when a post cannot be created
type MediaStore interface {
	Save(filename string, r io.Reader) (*media.Stored, error)
	Remove(ref string) error
}

// Handler handles HTTP requests for post operations
type Handler struct {
	service        *Service
	media          MediaStore
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a new post handler with its dependencies injected
func NewHandler(service *Service, media MediaStore, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, media: media, maxUploadBytes: maxUploadBytes, logger: logger}
}

// Routes returns the public post routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/feed", h.ListFeed)

	return r
}

// ProtectedRoutes registers the post routes that act on behalf of a user
func (h *Handler) ProtectedRoutes(r chi.Router) {
	r.Post("/posts/create", h.Create)
	r.Post("/action/like", h.ToggleLike)
	r.Post("/action/comment", h.AddComment)
}

// Create handles POST /posts/create
// @Summary      Create a post
// @Description  Upload an image or video and publish it at the top of the feed
// @Tags         posts
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file formData file true "Image or video"
// @Param        userId formData string false "Author ID (trust mode only)"
// @Param        caption formData string false "Caption"
// @Param        type formData string false "image or video; detected when omitted"
// @Success      201 {object} response.APIResponse{data=PostResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /posts/create [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	file, header, err := request.FormFile(w, r, "file", h.maxUploadBytes)
	if err != nil {
		response.FromError(w, err, "Failed to create post")
		return
	}
	defer file.Close()

	form := CreatePostForm{
		UserID:  r.FormValue("userId"),
		Caption: r.FormValue("caption"),
		Type:    r.FormValue("type"),
	}
	if err := request.Validate(&form); err != nil {
		response.FromError(w, err, "Failed to create post")
		return
	}

	authorID, err := request.Actor(r, form.UserID)
	if err != nil {
		response.FromError(w, err, "Failed to create post")
		return
	}

	stored, err := h.media.Save(header.Filename, file)
	if err != nil {
		h.logger.Warn("media upload rejected", zap.Error(err))
		response.FromError(w, err, "Failed to store media")
		return
	}

	kind := stored.Kind
	if form.Type != "" {
		kind = store.PostKind(form.Type)
	}

	post, err := h.service.CreatePost(r.Context(), authorID, kind, stored.Ref, form.Caption)
	if err != nil {
		if rmErr := h.media.Remove(stored.Ref); rmErr != nil {
			h.logger.Error("failed to remove orphaned media", zap.String("ref", stored.Ref), zap.Error(rmErr))
		}
		response.FromError(w, err, "Failed to create post")
		return
	}

	response.JSON(w, http.StatusCreated, ToResponse(post))
}

// ListFeed handles GET /posts/feed
// @Summary      Get the feed
// @Description  All posts newest first, each with its author's current name, avatar and verification
// @Tags         posts
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page; omit for the whole feed"
// @Success      200 {object} response.APIResponse{data=[]FeedItemResponse}
// @Router       /posts/feed [get]
func (h *Handler) ListFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.ListFeed(r.Context())
	if err != nil {
		h.logger.Error("failed to load feed", zap.Error(err))
		response.InternalError(w, "Failed to load feed")
		return
	}

	items := make([]*FeedItemResponse, len(feed))
	for i, e := range feed {
		items[i] = ToFeedItemResponse(e)
	}

	if r.URL.Query().Get("per_page") == "" {
		response.JSON(w, http.StatusOK, items)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	total := len(items)
	start, end := response.PageBounds(total, page, perPage)

	meta := &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	response.JSONWithMeta(w, http.StatusOK, items[start:end], meta)
}

// ToggleLike handles POST /action/like
// @Summary      Like or unlike a post
// @Tags         actions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body LikeRequest true "Like toggle request"
// @Success      200 {object} response.APIResponse{data=LikeResult}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /action/like [post]
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	var req LikeRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.FromError(w, err, "Invalid request body")
		return
	}

	userID, err := request.Actor(r, req.UserID)
	if err != nil {
		response.FromError(w, err, "Failed to toggle like")
		return
	}

	result, err := h.service.ToggleLike(r.Context(), req.PostID, userID)
	if err != nil {
		response.FromError(w, err, "Failed to toggle like")
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// AddComment handles POST /action/comment
// @Summary      Comment on a post
// @Tags         actions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CommentRequest true "Comment request"
// @Success      201 {object} response.APIResponse{data=CommentResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /action/comment [post]
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.FromError(w, err, "Invalid request body")
		return
	}

	userID, err := request.Actor(r, req.UserID)
	if err != nil {
		response.FromError(w, err, "Failed to add comment")
		return
	}

	comment, err := h.service.AddComment(r.Context(), req.PostID, userID, req.Text)
	if err != nil {
		response.FromError(w, err, "Failed to add comment")
		return
	}

	response.JSON(w, http.StatusCreated, ToCommentResponse(comment))
}
