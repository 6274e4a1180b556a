package user

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prekclip/server/internal/apperr"
	"github.com/prekclip/server/internal/media"
	"github.com/prekclip/server/internal/post"
	"github.com/prekclip/server/internal/store"
	"github.com/prekclip/server/pkg/request"
	"github.com/prekclip/server/pkg/response"
)

// ErrAvatarNotImage is returned when an avatar upload is not an image
var ErrAvatarNotImage = fmt.Errorf("%w: avatar must be an image", apperr.ErrBadRequest)

// TokenIssuer issues session tokens for authenticated users
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// MediaStore saves uploaded avatars
type MediaStore interface {
	Save(filename string, r io.Reader) (*media.Stored, error)
	Remove(ref string) error
}

// Handler handles HTTP requests for user operations
type Handler struct {
	service        *Service
	tokens         TokenIssuer
	media          MediaStore
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a new user handler with its dependencies injected
func NewHandler(service *Service, tokens TokenIssuer, media MediaStore, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, tokens: tokens, media: media, maxUploadBytes: maxUploadBytes, logger: logger}
}

// AuthRoutes returns the router for register and login
func (h *Handler) AuthRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	return r
}

// Routes returns the public user routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/search", h.Search)
	r.Get("/{id}", h.GetProfile)

	return r
}

// ProtectedRoutes registers the user routes that act on behalf of a user
func (h *Handler) ProtectedRoutes(r chi.Router) {
	r.Post("/action/follow", h.ToggleFollow)
	r.Post("/users/avatar", h.SetAvatar)
}

// Register handles POST /auth/register
// @Summary      Register a new user
// @Description  Usernames are unique regardless of case
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CredentialsRequest true "Credentials"
// @Success      201 {object} response.APIResponse{data=AuthResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.FromError(w, err, "Invalid request body")
		return
	}

	u, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		response.FromError(w, err, "Failed to register user")
		return
	}

	h.respondWithToken(w, http.StatusCreated, u)
}

// Login handles POST /auth/login
// @Summary      Log in
// @Description  Username comparison is case-sensitive
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CredentialsRequest true "Credentials"
// @Success      200 {object} response.APIResponse{data=AuthResponse}
// @Failure      401 {object} response.APIResponse
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.FromError(w, err, "Invalid request body")
		return
	}

	u, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		response.FromError(w, err, "Failed to log in")
		return
	}

	h.respondWithToken(w, http.StatusOK, u)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, status int, u *store.User) {
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.String("user_id", u.ID), zap.Error(err))
		response.InternalError(w, "Failed to issue token")
		return
	}

	response.JSON(w, status, &AuthResponse{User: ToResponse(u), Token: token})
}

// Search handles GET /users/search
// @Summary      Search users
// @Description  Case-insensitive substring match on username
// @Tags         users
// @Produce      json
// @Param        q query string false "Search query"
// @Success      200 {object} response.APIResponse{data=[]SearchResult}
// @Router       /users/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		response.InternalError(w, "Failed to search users")
		return
	}

	response.JSON(w, http.StatusOK, results)
}

// GetProfile handles GET /users/{id}
// @Summary      Get a profile
// @Description  The user without credentials, plus their posts
// @Tags         users
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} response.APIResponse{data=ProfileResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /users/{id} [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err, "Failed to get user")
		return
	}

	posts := make([]*post.PostResponse, len(profile.Posts))
	for i, p := range profile.Posts {
		posts[i] = post.ToResponse(p)
	}

	response.JSON(w, http.StatusOK, &ProfileResponse{User: ToResponse(profile.User), Posts: posts})
}

// ToggleFollow handles POST /action/follow
// @Summary      Follow or unfollow a user
// @Tags         actions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body FollowRequest true "Follow toggle request"
// @Success      200 {object} response.APIResponse{data=FollowResult}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /action/follow [post]
func (h *Handler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	var req FollowRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.FromError(w, err, "Invalid request body")
		return
	}

	currentID, err := request.Actor(r, req.CurrentID)
	if err != nil {
		response.FromError(w, err, "Failed to toggle follow")
		return
	}

	result, err := h.service.ToggleFollow(r.Context(), currentID, req.TargetID)
	if err != nil {
		response.FromError(w, err, "Failed to toggle follow")
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// SetAvatar handles POST /users/avatar
// @Summary      Upload an avatar
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file formData file true "Image"
// @Param        userId formData string false "User ID (trust mode only)"
// @Success      200 {object} response.APIResponse{data=AvatarResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /users/avatar [post]
func (h *Handler) SetAvatar(w http.ResponseWriter, r *http.Request) {
	file, header, err := request.FormFile(w, r, "file", h.maxUploadBytes)
	if err != nil {
		response.FromError(w, err, "Failed to update avatar")
		return
	}
	defer file.Close()

	userID, err := request.Actor(r, r.FormValue("userId"))
	if err != nil {
		response.FromError(w, err, "Failed to update avatar")
		return
	}

	stored, err := h.media.Save(header.Filename, file)
	if err != nil {
		response.FromError(w, err, "Failed to store avatar")
		return
	}

	url := stored.Ref
	if stored.Kind != store.PostKindImage {
		err = ErrAvatarNotImage
	} else {
		url, err = h.service.SetAvatar(r.Context(), userID, stored.Ref)
	}
	if err != nil {
		if rmErr := h.media.Remove(stored.Ref); rmErr != nil {
			h.logger.Error("failed to remove orphaned media", zap.String("ref", stored.Ref), zap.Error(rmErr))
		}
		response.FromError(w, err, "Failed to update avatar")
		return
	}

	response.JSON(w, http.StatusOK, &AvatarResponse{URL: url})
}
