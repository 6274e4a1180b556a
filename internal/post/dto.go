package post

import (
	"github.com/prekclip/server/internal/store"
)

// LikeRequest represents the request body for toggling a like
type LikeRequest struct {
	PostID string `json:"postId" validate:"required"`
	UserID string `json:"userId"`
}

// CommentRequest represents the request body for adding a comment
type CommentRequest struct {
	PostID string `json:"postId" validate:"required"`
	UserID string `json:"userId"`
	Text   string `json:"text" validate:"max=2000"`
}

// CreatePostForm holds the non-file fields of the create-post multipart form
type CreatePostForm struct {
	UserID  string `form:"userId"`
	Caption string `form:"caption" validate:"max=2200"`
	Type    string `form:"type" validate:"omitempty,oneof=image video"`
}

// CommentResponse represents a comment
type CommentResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId,omitempty"`
	Username   string  `json:"username"`
	Avatar     *string `json:"avatar"`
	IsVerified bool    `json:"isVerified"`
	Text       string  `json:"text"`
	CreatedAt  string  `json:"createdAt"`
}

// PostResponse represents a post as stored
type PostResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Type      string             `json:"type"`
	Src       string             `json:"src"`
	Caption   string             `json:"caption"`
	Likes     []string           `json:"likes"`
	Comments  []*CommentResponse `json:"comments"`
	CreatedAt string             `json:"createdAt"`
}

// FeedItemResponse is a post joined with its author's current display fields
type FeedItemResponse struct {
	*PostResponse
	AuthorName     string  `json:"authorName"`
	AuthorAvatar   *string `json:"authorAvatar"`
	AuthorVerified bool    `json:"authorVerified"`
}

// ToCommentResponse converts a stored comment to a CommentResponse DTO
func ToCommentResponse(c *store.Comment) *CommentResponse {
	return &CommentResponse{
		ID:         c.ID,
		UserID:     c.AuthorID,
		Username:   c.Username,
		Avatar:     c.Avatar,
		IsVerified: c.AuthorVerified,
		Text:       c.Text,
		CreatedAt:  c.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ToResponse converts a stored post to a PostResponse DTO
func ToResponse(p *store.Post) *PostResponse {
	comments := make([]*CommentResponse, len(p.Comments))
	for i, c := range p.Comments {
		comments[i] = ToCommentResponse(c)
	}
	return &PostResponse{
		ID:        p.ID,
		UserID:    p.AuthorID,
		Type:      string(p.Kind),
		Src:       p.MediaRef,
		Caption:   p.Caption,
		Likes:     p.Likes,
		Comments:  comments,
		CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ToFeedItemResponse converts a feed entry to its DTO
func ToFeedItemResponse(e *FeedEntry) *FeedItemResponse {
	return &FeedItemResponse{
		PostResponse:   ToResponse(e.Post),
		AuthorName:     e.AuthorName,
		AuthorAvatar:   e.AuthorAvatar,
		AuthorVerified: e.AuthorVerified,
	}
}
