package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prekclip/server/internal/auth"
	"github.com/prekclip/server/internal/config"
	"github.com/prekclip/server/internal/media"
	"github.com/prekclip/server/internal/notification"
	"github.com/prekclip/server/internal/post"
	"github.com/prekclip/server/internal/store"
	"github.com/prekclip/server/internal/user"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R', 1, 2, 3, 4}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

func newTestAPI(t *testing.T, authMode string) *testAPI {
	t.Helper()
	dir := t.TempDir()

	backend, err := store.NewFileBackend(filepath.Join(dir, "database.json"))
	require.NoError(t, err)
	st := store.New(backend, nil)
	t.Cleanup(func() { st.Close() })

	mediaStorage, err := media.NewStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)

	const maxUpload = 1 << 20
	userService := user.NewService(st, nil)
	postService := post.NewService(st, nil)
	notificationService := notification.NewService(st)

	return &testAPI{t: t, handler: NewRouter(Deps{
		AuthMode:            authMode,
		UploadDir:           mediaStorage.Dir(),
		Tokens:              tokens,
		UserHandler:         user.NewHandler(userService, tokens, mediaStorage, maxUpload, nil),
		PostHandler:         post.NewHandler(postService, mediaStorage, maxUpload, nil),
		NotificationHandler: notification.NewHandler(notificationService),
	})}
}

func (a *testAPI) do(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (a *testAPI) json(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, token)
}

func (a *testAPI) upload(path, token string, fields map[string]string, file []byte) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a.t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "upload.png")
		require.NoError(a.t, err)
		_, err = fw.Write(file)
		require.NoError(a.t, err)
	}
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.do(req, token)
}

func (a *testAPI) register(username string) *user.AuthResponse {
	a.t.Helper()
	rec, env := a.json(http.MethodPost, "/auth/register", "", map[string]string{"username": username, "password": "pw-" + username})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out user.AuthResponse
	require.NoError(a.t, json.Unmarshal(env.Data, &out))
	return &out
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)

	rec, _ := api.do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)

	alice := api.register("alice")
	assert.Equal(t, "alice", alice.User.Username)
	assert.NotEmpty(t, alice.Token)

	rec, env := api.json(http.MethodPost, "/auth/register", "", map[string]string{"username": "Alice", "password": "pw2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	rec, env = api.json(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "pw-alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.User.ID, decode[user.AuthResponse](t, env).User.ID)
	assert.NotContains(t, string(env.Data), "passwordHash")

	rec, _ = api.json(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = api.json(http.MethodPost, "/auth/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostLikeCommentFlow(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)
	alice := api.register("alice")
	bob := api.register("bob")

	// creating without a file
	rec, _ := api.upload("/posts/create", alice.Token, map[string]string{"caption": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := api.upload("/posts/create", alice.Token, map[string]string{"caption": "hi"}, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[post.PostResponse](t, env)
	assert.Equal(t, alice.User.ID, created.UserID)
	assert.Equal(t, "image", created.Type)

	// uploaded media is served back
	rec, _ = api.do(httptest.NewRequest(http.MethodGet, created.Src, nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	// likes need a session in token mode
	rec, _ = api.json(http.MethodPost, "/action/like", "", map[string]string{"postId": created.ID})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = api.json(http.MethodPost, "/action/like", bob.Token, map[string]string{"postId": created.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, post.LikeResult{LikesCount: 1, IsLiked: true}, decode[post.LikeResult](t, env))

	// acting as someone else is refused
	rec, _ = api.json(http.MethodPost, "/action/like", bob.Token, map[string]string{"postId": created.ID, "userId": alice.User.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.json(http.MethodPost, "/action/like", bob.Token, map[string]string{"postId": "post_missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = api.json(http.MethodPost, "/action/comment", bob.Token, map[string]string{"postId": created.ID, "text": "nice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "bob", decode[post.CommentResponse](t, env).Username)

	rec, env = api.json(http.MethodGet, "/posts/feed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[[]post.FeedItemResponse](t, env)
	require.Len(t, feed, 1)
	assert.Equal(t, "alice", feed[0].AuthorName)
	assert.False(t, feed[0].AuthorVerified)
	assert.Equal(t, []string{bob.User.ID}, feed[0].Likes)
	require.Len(t, feed[0].Comments, 1)
	assert.Equal(t, "nice", feed[0].Comments[0].Text)

	// alice is told about the like and the comment
	rec, env = api.json(http.MethodGet, "/notifications/unread-count", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"unreadCount": 2}, decode[map[string]int](t, env))

	rec, _ = api.json(http.MethodPost, "/notifications/read-all", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = api.json(http.MethodGet, "/notifications/unread-count", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"unreadCount": 0}, decode[map[string]int](t, env))
}

func TestFollowAndProfile(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)
	alice := api.register("alice")
	bob := api.register("bob")

	rec, _ := api.json(http.MethodPost, "/action/follow", alice.Token, map[string]string{"targetId": alice.User.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := api.json(http.MethodPost, "/action/follow", alice.Token, map[string]string{"targetId": bob.User.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.FollowResult{IsFollowing: true, FollowersCount: 1}, decode[user.FollowResult](t, env))

	rec, env = api.json(http.MethodGet, "/users/"+bob.User.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[user.ProfileResponse](t, env)
	assert.Equal(t, []string{alice.User.ID}, profile.User.Followers)
	assert.Empty(t, profile.Posts)
	assert.NotContains(t, string(env.Data), "passwordHash")

	rec, _ = api.json(http.MethodGet, "/users/user_missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = api.json(http.MethodGet, "/users/search?q=BO", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]user.SearchResult](t, env)
	require.Len(t, results, 1)
	assert.Equal(t, "bob", results[0].Username)

	rec, env = api.json(http.MethodGet, "/notifications", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]notification.NotificationResponse](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, "follow", list[0].Type)
	assert.Equal(t, "alice started following you", list[0].Message)

	rec, _ = api.json(http.MethodPost, "/notifications/"+list[0].ID+"/read", alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.json(http.MethodPost, "/notifications/"+list[0].ID+"/read", bob.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAvatarUpload(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)
	alice := api.register("alice")

	rec, env := api.upload("/users/avatar", alice.Token, nil, pngBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	avatar := decode[user.AvatarResponse](t, env)
	assert.Contains(t, avatar.URL, "/uploads/")

	rec, env = api.json(http.MethodGet, "/users/"+alice.User.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[user.ProfileResponse](t, env)
	require.NotNil(t, profile.User.Avatar)
	assert.Equal(t, avatar.URL, *profile.User.Avatar)

	rec, _ = api.upload("/users/avatar", alice.Token, nil, []byte("just some text, not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrustModeAcceptsSuppliedIDs(t *testing.T) {
	api := newTestAPI(t, config.AuthModeTrust)
	alice := api.register("alice")
	bob := api.register("bob")

	rec, env := api.upload("/posts/create", "", map[string]string{"userId": alice.User.ID}, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[post.PostResponse](t, env)

	rec, env = api.json(http.MethodPost, "/action/like", "", map[string]string{"postId": created.ID, "userId": bob.User.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[post.LikeResult](t, env).IsLiked)

	rec, _ = api.json(http.MethodPost, "/action/follow", "", map[string]string{"currentId": bob.User.ID, "targetId": alice.User.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	// no actor at all
	rec, _ = api.json(http.MethodPost, "/action/like", "", map[string]string{"postId": created.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// a token still takes precedence
	rec, _ = api.json(http.MethodPost, "/action/like", bob.Token, map[string]string{"postId": created.ID, "userId": alice.User.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFeedPagination(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)
	alice := api.register("alice")

	for i := 0; i < 3; i++ {
		rec, _ := api.upload("/posts/create", alice.Token, nil, pngBytes)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := api.json(http.MethodGet, "/posts/feed?page=2&per_page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]post.FeedItemResponse](t, env), 1)

	var withMeta struct {
		Meta struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &withMeta))
	assert.Equal(t, 3, withMeta.Meta.Total)
	assert.Equal(t, 2, withMeta.Meta.TotalPages)
}

func TestHugePageNumbersAreEmpty(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)
	alice := api.register("alice")
	rec, _ := api.upload("/posts/create", alice.Token, nil, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := api.json(http.MethodGet, "/posts/feed?page=4611686018427387904&per_page=20", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[[]post.FeedItemResponse](t, env))

	rec, env = api.json(http.MethodGet, "/notifications?page=4611686018427387904&per_page=20", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[[]notification.NotificationResponse](t, env))
}

func TestLikeFromUnknownUserInTrustMode(t *testing.T) {
	api := newTestAPI(t, config.AuthModeTrust)
	alice := api.register("alice")
	rec, env := api.upload("/posts/create", "", map[string]string{"userId": alice.User.ID}, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[post.PostResponse](t, env)

	rec, env = api.json(http.MethodPost, "/action/like", "", map[string]string{"postId": created.ID, "userId": "user_ghost"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, post.LikeResult{LikesCount: 1, IsLiked: true}, decode[post.LikeResult](t, env))
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	api := newTestAPI(t, config.AuthModeToken)

	rec, env := api.json(http.MethodPost, "/auth/register", "", map[string]string{"username": "zoe", "password": strings.Repeat("é", 40)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}
