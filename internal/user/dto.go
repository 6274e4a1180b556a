package user

import (
	"github.com/prekclip/server/internal/post"
	"github.com/prekclip/server/internal/store"
)

// CredentialsRequest represents the request body for register and login
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=72"`
}

// FollowRequest represents the request body for toggling a follow
type FollowRequest struct {
	CurrentID string `json:"currentId"`
	TargetID  string `json:"targetId" validate:"required"`
}

// UserResponse is a user without credentials
type UserResponse struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Avatar     *string  `json:"avatar"`
	Followers  []string `json:"followers"`
	Following  []string `json:"following"`
	IsVerified bool     `json:"isVerified"`
	CreatedAt  string   `json:"createdAt"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User  *UserResponse `json:"user"`
	Token string        `json:"token"`
}

// ProfileResponse is a user with their posts
type ProfileResponse struct {
	User  *UserResponse        `json:"user"`
	Posts []*post.PostResponse `json:"posts"`
}

// AvatarResponse carries the new avatar reference
type AvatarResponse struct {
	URL string `json:"url"`
}

// ToResponse converts a stored user to a UserResponse DTO
func ToResponse(u *store.User) *UserResponse {
	return &UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Avatar:     u.Avatar,
		Followers:  u.Followers,
		Following:  u.Following,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
