package notification

import (
	"fmt"
	"time"

	"github.com/prekclip/server/internal/store"
)

// maxPreview bounds how much of a comment is quoted in its notification
const maxPreview = 80

// RecordLike notes that actor liked post. It must run inside the same
// store update as the like itself. A nil actor records nothing.
func RecordLike(doc *store.Document, post *store.Post, actor *store.User) {
	record(doc, post.AuthorID, actor, store.NotificationLike, &post.ID, func(name string) string {
		return fmt.Sprintf("%s liked your post", name)
	})
}

// RecordComment notes that actor commented on post
func RecordComment(doc *store.Document, post *store.Post, actor *store.User, text string) {
	record(doc, post.AuthorID, actor, store.NotificationComment, &post.ID, func(name string) string {
		return fmt.Sprintf("%s commented: %s", name, preview(text))
	})
}

// RecordFollow notes that actor started following target
func RecordFollow(doc *store.Document, target, actor *store.User) {
	if target == nil {
		return
	}
	record(doc, target.ID, actor, store.NotificationFollow, nil, func(name string) string {
		return fmt.Sprintf("%s started following you", name)
	})
}

func record(doc *store.Document, recipientID string, actor *store.User, typ store.NotificationType, postID *string, message func(actorName string) string) {
	// nobody is notified about their own actions or on behalf of unknown users
	if actor == nil || recipientID == "" || recipientID == actor.ID {
		return
	}
	if doc.UserByID(recipientID) == nil {
		return
	}

	var pid *string
	if postID != nil {
		id := *postID
		pid = &id
	}

	n := &store.Notification{
		ID:          store.NewID(store.PrefixNotification),
		RecipientID: recipientID,
		ActorID:     actor.ID,
		Type:        typ,
		PostID:      pid,
		Message:     message(actor.Username),
		CreatedAt:   time.Now().UTC(),
	}
	doc.Notifications = append([]*store.Notification{n}, doc.Notifications...)
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= maxPreview {
		return text
	}
	return string(r[:maxPreview]) + "…"
}
