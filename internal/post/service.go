package post

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prekclip/server/internal/apperr"
	"github.com/prekclip/server/internal/notification"
	"github.com/prekclip/server/internal/store"
)

// unknownAuthor is shown for posts whose author no longer resolves
const unknownAuthor = "Unknown"

// Common errors
var (
	ErrPostNotFound  = fmt.Errorf("%w: post not found", apperr.ErrNotFound)
	ErrMissingMedia  = fmt.Errorf("%w: no file selected", apperr.ErrBadRequest)
	ErrInvalidKind   = fmt.Errorf("%w: type must be image or video", apperr.ErrBadRequest)
	ErrCommentFailed = fmt.Errorf("%w: post or user not found", apperr.ErrBadRequest)
)

// FeedEntry is a post joined at read time with its author's current display fields
type FeedEntry struct {
	Post           *store.Post
	AuthorName     string
	AuthorAvatar   *string
	AuthorVerified bool
}

// LikeResult reports the like state of a post after a toggle
type LikeResult struct {
	LikesCount int  `json:"likesCount"`
	IsLiked    bool `json:"isLiked"`
}

// Service handles post business logic
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// NewService creates a new post service with the store injected
func NewService(s *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, logger: logger.Named("post")}
}

// CreatePost puts a new post at the head of the feed
func (s *Service) CreatePost(ctx context.Context, authorID string, kind store.PostKind, mediaRef, caption string) (*store.Post, error) {
	if mediaRef == "" {
		return nil, ErrMissingMedia
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	post := &store.Post{
		ID:        store.NewID(store.PrefixPost),
		AuthorID:  authorID,
		Kind:      kind,
		MediaRef:  mediaRef,
		Caption:   caption,
		Likes:     []string{},
		Comments:  []*store.Comment{},
		CreatedAt: time.Now().UTC(),
	}

	err := s.store.Update(ctx, func(doc *store.Document) error {
		doc.Posts = append([]*store.Post{post}, doc.Posts...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("post created", zap.String("post_id", post.ID), zap.String("author_id", authorID), zap.String("kind", string(kind)))
	return post, nil
}

// ListFeed returns every post, newest first, with author fields looked up now.
// Editing a user therefore changes how all of their past posts are displayed.
func (s *Service) ListFeed(ctx context.Context) ([]*FeedEntry, error) {
	var feed []*FeedEntry
	err := s.store.View(ctx, func(doc *store.Document) error {
		feed = make([]*FeedEntry, 0, len(doc.Posts))
		for _, p := range doc.Posts {
			entry := &FeedEntry{Post: p, AuthorName: unknownAuthor}
			if author := doc.UserByID(p.AuthorID); author != nil {
				entry.AuthorName = author.Username
				entry.AuthorAvatar = author.Avatar
				entry.AuthorVerified = author.IsVerified
			}
			feed = append(feed, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return feed, nil
}

// ToggleLike likes the post for userID, or removes the like if it is already there
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (*LikeResult, error) {
	var result LikeResult
	err := s.store.Update(ctx, func(doc *store.Document) error {
		p := doc.PostByID(postID)
		if p == nil {
			return ErrPostNotFound
		}

		p.Likes, result.IsLiked = store.ToggleID(p.Likes, userID)
		result.LikesCount = len(p.Likes)

		// likes from ids that no longer resolve still count but notify nobody
		if actor := doc.UserByID(userID); result.IsLiked && actor != nil {
			notification.RecordLike(doc, p, actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// AddComment appends a comment that snapshots the commenter's display fields.
// Later profile changes do not alter existing comments.
func (s *Service) AddComment(ctx context.Context, postID, userID, text string) (*store.Comment, error) {
	var comment *store.Comment
	err := s.store.Update(ctx, func(doc *store.Document) error {
		p := doc.PostByID(postID)
		u := doc.UserByID(userID)
		if p == nil || u == nil {
			return ErrCommentFailed
		}

		var avatar *string
		if u.Avatar != nil {
			a := *u.Avatar
			avatar = &a
		}
		comment = &store.Comment{
			ID:             store.NewID(store.PrefixComment),
			AuthorID:       u.ID,
			Username:       u.Username,
			Avatar:         avatar,
			AuthorVerified: u.IsVerified,
			Text:           text,
			CreatedAt:      time.Now().UTC(),
		}
		p.Comments = append(p.Comments, comment)

		notification.RecordComment(doc, p, u, text)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return comment, nil
}
