package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prekclip/server/internal/apperr"
	"github.com/prekclip/server/internal/auth"
	"github.com/prekclip/server/internal/notification"
	"github.com/prekclip/server/internal/store"
)

// Common errors
var (
	ErrUserNotFound       = fmt.Errorf("%w: user not found", apperr.ErrNotFound)
	ErrUsernameTaken      = fmt.Errorf("%w: user already exists", apperr.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", apperr.ErrUnauthorized)
	ErrSelfFollow         = fmt.Errorf("%w: cannot follow yourself", apperr.ErrBadRequest)
	ErrEmptyUsername      = fmt.Errorf("%w: username is required", apperr.ErrBadRequest)
	ErrEmptyPassword      = fmt.Errorf("%w: password is required", apperr.ErrBadRequest)
	ErrPasswordTooLong    = fmt.Errorf("%w: password must be at most %d bytes", apperr.ErrBadRequest, auth.MaxPasswordBytes)
	ErrAvatarUpdate       = fmt.Errorf("%w: cannot update avatar", apperr.ErrBadRequest)
)

// errBootstrapSkipped aborts the bootstrap update without saving
var errBootstrapSkipped = errors.New("users already exist")

// SearchResult is the redacted projection returned by search
type SearchResult struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Avatar     *string `json:"avatar"`
	IsVerified bool    `json:"isVerified"`
}

// FollowResult reports the state of a follow edge after a toggle
type FollowResult struct {
	IsFollowing    bool `json:"isFollowing"`
	FollowersCount int  `json:"followersCount"`
}

// Profile is a user together with the posts they authored
type Profile struct {
	User  *store.User
	Posts []*store.Post
}

// Service handles user business logic
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// NewService creates a new user service with the store injected
func NewService(s *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, logger: logger.Named("user")}
}

// Register creates an unverified user. Usernames are unique regardless of case.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	return s.create(ctx, username, password, false)
}

func (s *Service) create(ctx context.Context, username, password string, verified bool) (*store.User, error) {
	hash, err := hashCredentials(username, password)
	if err != nil {
		return nil, err
	}

	var created *store.User
	err = s.store.Update(ctx, func(doc *store.Document) error {
		if doc.UserByUsernameFold(username) != nil {
			return ErrUsernameTaken
		}
		created = addUser(doc, username, hash, verified)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", created.ID), zap.Bool("verified", verified))
	return created, nil
}

// hashCredentials validates the credentials and hashes the password outside the store lock
func hashCredentials(username, password string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", ErrEmptyUsername
	}
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > auth.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func addUser(doc *store.Document, username, hash string, verified bool) *store.User {
	u := &store.User{
		ID:           store.NewID(store.PrefixUser),
		Username:     username,
		PasswordHash: hash,
		Followers:    []string{},
		Following:    []string{},
		IsVerified:   verified,
		CreatedAt:    time.Now().UTC(),
	}
	doc.Users = append(doc.Users, u)
	return u
}

// Bootstrap creates the verified reserved account when the store has no users yet.
// An empty password is replaced by a generated one, which is returned.
// The emptiness check and the insert happen in one update.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (*store.User, string, error) {
	if username == "" {
		return nil, "", nil
	}

	generated := ""
	if password == "" {
		generated = strings.ReplaceAll(uuid.NewString(), "-", "")
		password = generated
	}

	hash, err := hashCredentials(username, password)
	if err != nil {
		return nil, "", err
	}

	var created *store.User
	err = s.store.Update(ctx, func(doc *store.Document) error {
		if len(doc.Users) > 0 {
			return errBootstrapSkipped
		}
		created = addUser(doc, username, hash, true)
		return nil
	})
	if errors.Is(err, errBootstrapSkipped) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user registered", zap.String("user_id", created.ID), zap.Bool("verified", true))
	return created, generated, nil
}

// Login returns the user whose username matches exactly and whose password verifies
func (s *Service) Login(ctx context.Context, username, password string) (*store.User, error) {
	var found *store.User
	err := s.store.View(ctx, func(doc *store.Document) error {
		for _, u := range doc.Users {
			if u.Username == username {
				found = u
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil || !auth.CheckPasswordHash(found.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return found, nil
}

// ToggleFollow makes currentID follow targetID, or stops following if it already does.
// Both sides of the edge change in the same update.
func (s *Service) ToggleFollow(ctx context.Context, currentID, targetID string) (*FollowResult, error) {
	if currentID == targetID {
		return nil, ErrSelfFollow
	}

	var result FollowResult
	err := s.store.Update(ctx, func(doc *store.Document) error {
		me := doc.UserByID(currentID)
		target := doc.UserByID(targetID)
		if me == nil || target == nil {
			return ErrUserNotFound
		}

		me.Following, result.IsFollowing = store.ToggleID(me.Following, targetID)
		if result.IsFollowing {
			if !store.ContainsID(target.Followers, currentID) {
				target.Followers = append(target.Followers, currentID)
			}
			notification.RecordFollow(doc, target, me)
		} else {
			target.Followers = store.RemoveID(target.Followers, currentID)
		}

		result.FollowersCount = len(target.Followers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// SearchUsers matches query as a case-insensitive substring of usernames
func (s *Service) SearchUsers(ctx context.Context, query string) ([]SearchResult, error) {
	q := strings.ToLower(query)
	results := []SearchResult{}

	err := s.store.View(ctx, func(doc *store.Document) error {
		for _, u := range doc.Users {
			if strings.Contains(strings.ToLower(u.Username), q) {
				results = append(results, SearchResult{
					ID:         u.ID,
					Username:   u.Username,
					Avatar:     u.Avatar,
					IsVerified: u.IsVerified,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// GetProfile returns a user and their posts, newest first
func (s *Service) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var profile *Profile
	err := s.store.View(ctx, func(doc *store.Document) error {
		u := doc.UserByID(id)
		if u == nil {
			return ErrUserNotFound
		}

		profile = &Profile{User: u, Posts: []*store.Post{}}
		for _, p := range doc.Posts {
			if p.AuthorID == id {
				profile.Posts = append(profile.Posts, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// SetAvatar points the user's avatar at mediaRef
func (s *Service) SetAvatar(ctx context.Context, id, mediaRef string) (string, error) {
	if mediaRef == "" {
		return "", ErrAvatarUpdate
	}

	err := s.store.Update(ctx, func(doc *store.Document) error {
		u := doc.UserByID(id)
		if u == nil {
			return ErrAvatarUpdate
		}
		ref := mediaRef
		u.Avatar = &ref
		return nil
	})
	if err != nil {
		return "", err
	}

	return mediaRef, nil
}
