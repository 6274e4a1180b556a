package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// legacyDocument is the database.json layout written by the first server:
// plain-text passwords and epoch-millisecond timestamps.
type legacyDocument struct {
	Users []struct {
		ID         string   `json:"id"`
		Username   string   `json:"username"`
		Password   string   `json:"password"`
		Avatar     *string  `json:"avatar"`
		Followers  []string `json:"followers"`
		Following  []string `json:"following"`
		IsVerified bool     `json:"isVerified"`
	} `json:"users"`
	Posts []struct {
		ID       string   `json:"id"`
		UserID   string   `json:"userId"`
		Type     PostKind `json:"type"`
		Src      string   `json:"src"`
		Caption  string   `json:"caption"`
		Likes    []string `json:"likes"`
		Comments []struct {
			ID        string  `json:"id"`
			Username  string  `json:"username"`
			Avatar    *string `json:"avatar"`
			Verified  bool    `json:"isVerified"`
			Text      string  `json:"text"`
			Timestamp int64   `json:"timestamp"`
		} `json:"comments"`
		Timestamp int64 `json:"timestamp"`
	} `json:"posts"`
}

// ImportLegacy converts a legacy database.json into a Document.
// Passwords are passed through hash unless they already look like bcrypt hashes.
// Self-references in follow sets are dropped and the two sides of every
// follow edge are reconciled.
func ImportLegacy(data []byte, hash func(password string) (string, error)) (*Document, error) {
	var legacy legacyDocument
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to decode legacy document: %w", err)
	}

	doc := NewDocument()
	for _, lu := range legacy.Users {
		passwordHash := lu.Password
		if !isBcryptHash(passwordHash) {
			h, err := hash(lu.Password)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password for %s: %w", lu.Username, err)
			}
			passwordHash = h
		}
		doc.Users = append(doc.Users, &User{
			ID:           lu.ID,
			Username:     lu.Username,
			PasswordHash: passwordHash,
			Avatar:       lu.Avatar,
			Followers:    []string{},
			Following:    []string{},
			IsVerified:   lu.IsVerified,
			CreatedAt:    idTime(lu.ID),
		})
	}

	// rebuild follow edges from the following side so both sets agree
	for _, lu := range legacy.Users {
		me := doc.UserByID(lu.ID)
		for _, targetID := range lu.Following {
			target := doc.UserByID(targetID)
			if target == nil || target == me || ContainsID(me.Following, targetID) {
				continue
			}
			me.Following = append(me.Following, targetID)
			target.Followers = append(target.Followers, me.ID)
		}
	}

	for _, lp := range legacy.Posts {
		post := &Post{
			ID:        lp.ID,
			AuthorID:  lp.UserID,
			Kind:      lp.Type,
			MediaRef:  lp.Src,
			Caption:   lp.Caption,
			Likes:     []string{},
			Comments:  []*Comment{},
			CreatedAt: time.UnixMilli(lp.Timestamp).UTC(),
		}
		for _, id := range lp.Likes {
			if !ContainsID(post.Likes, id) {
				post.Likes = append(post.Likes, id)
			}
		}
		for _, lc := range lp.Comments {
			c := &Comment{
				ID:             lc.ID,
				Username:       lc.Username,
				Avatar:         lc.Avatar,
				AuthorVerified: lc.Verified,
				Text:           lc.Text,
				CreatedAt:      time.UnixMilli(lc.Timestamp).UTC(),
			}
			if u := doc.UserByUsernameFold(lc.Username); u != nil {
				c.AuthorID = u.ID
			}
			post.Comments = append(post.Comments, c)
		}
		doc.Posts = append(doc.Posts, post)
	}

	return doc, nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// idTime recovers the creation time from legacy ids of the form "user_<millis>"
func idTime(id string) time.Time {
	_, millis, ok := strings.Cut(id, "_")
	if !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
