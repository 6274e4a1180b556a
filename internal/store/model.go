package store

import (
	"strings"
	"time"
)

// PostKind is the media kind of a post
type PostKind string

const (
	PostKindImage PostKind = "image"
	PostKindVideo PostKind = "video"
)

// Valid reports whether k is a known post kind
func (k PostKind) Valid() bool {
	return k == PostKindImage || k == PostKindVideo
}

// NotificationType is what triggered a notification
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
)

// Document is the whole persisted dataset. It is always loaded and saved as one unit.
type Document struct {
	Users         []*User         `json:"users"`
	Posts         []*Post         `json:"posts"`
	Notifications []*Notification `json:"notifications"`
}

// User represents an account
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Avatar       *string   `json:"avatar"`
	Followers    []string  `json:"followers"`
	Following    []string  `json:"following"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Post represents a media post. Posts are stored newest first.
type Post struct {
	ID        string     `json:"id"`
	AuthorID  string     `json:"userId"`
	Kind      PostKind   `json:"type"`
	MediaRef  string     `json:"src"`
	Caption   string     `json:"caption"`
	Likes     []string   `json:"likes"`
	Comments  []*Comment `json:"comments"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Comment carries a snapshot of its author's display fields taken when it was written
type Comment struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"userId"`
	Username       string    `json:"username"`
	Avatar         *string   `json:"avatar"`
	AuthorVerified bool      `json:"isVerified"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notification records activity addressed to a user
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	ActorID     string           `json:"actorId"`
	Type        NotificationType `json:"type"`
	PostID      *string          `json:"postId,omitempty"`
	Message     string           `json:"message"`
	IsRead      bool             `json:"isRead"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NewDocument returns an empty dataset
func NewDocument() *Document {
	return &Document{
		Users:         []*User{},
		Posts:         []*Post{},
		Notifications: []*Notification{},
	}
}

// UserByID returns the user with the given id, or nil
func (d *Document) UserByID(id string) *User {
	for _, u := range d.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// UserByUsernameFold returns the user whose username matches case-insensitively, or nil
func (d *Document) UserByUsernameFold(username string) *User {
	for _, u := range d.Users {
		if strings.EqualFold(u.Username, username) {
			return u
		}
	}
	return nil
}

// PostByID returns the post with the given id, or nil
func (d *Document) PostByID(id string) *Post {
	for _, p := range d.Posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// normalize replaces nil collections so the document always encodes as arrays
func (d *Document) normalize() {
	if d.Users == nil {
		d.Users = []*User{}
	}
	if d.Posts == nil {
		d.Posts = []*Post{}
	}
	if d.Notifications == nil {
		d.Notifications = []*Notification{}
	}
	for _, u := range d.Users {
		if u.Followers == nil {
			u.Followers = []string{}
		}
		if u.Following == nil {
			u.Following = []string{}
		}
	}
	for _, p := range d.Posts {
		if p.Likes == nil {
			p.Likes = []string{}
		}
		if p.Comments == nil {
			p.Comments = []*Comment{}
		}
	}
}
