package notification

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prekclip/server/internal/apperr"
	"github.com/prekclip/server/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	backend, err := store.NewFileBackend(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	st := store.New(backend, nil)
	t.Cleanup(func() { st.Close() })
	return NewService(st), st
}

func seed(t *testing.T, st *store.Store) (alice, bob *store.User, p *store.Post) {
	t.Helper()
	alice = &store.User{ID: "user_alice", Username: "alice"}
	bob = &store.User{ID: "user_bob", Username: "bob"}
	p = &store.Post{ID: "post_1", AuthorID: alice.ID}
	require.NoError(t, st.Replace(context.Background(), &store.Document{
		Users: []*store.User{alice, bob},
		Posts: []*store.Post{p},
	}))
	return alice, bob, p
}

func TestRecordSkipsSelfAndUnknown(t *testing.T) {
	doc := store.NewDocument()
	alice := &store.User{ID: "user_alice", Username: "alice"}
	doc.Users = append(doc.Users, alice)
	orphan := &store.Post{ID: "post_2", AuthorID: "user_gone"}
	own := &store.Post{ID: "post_1", AuthorID: alice.ID}

	RecordLike(doc, own, alice)
	RecordComment(doc, own, alice, "me")
	RecordFollow(doc, alice, alice)
	RecordLike(doc, orphan, alice)

	assert.Empty(t, doc.Notifications)
}

func TestRecordWithoutActor(t *testing.T) {
	doc := store.NewDocument()
	alice := &store.User{ID: "user_alice", Username: "alice"}
	doc.Users = append(doc.Users, alice)
	p := &store.Post{ID: "post_1", AuthorID: alice.ID}

	require.NotPanics(t, func() {
		RecordLike(doc, p, nil)
		RecordComment(doc, p, nil, "hi")
		RecordFollow(doc, alice, nil)
		RecordFollow(doc, nil, alice)
	})
	assert.Empty(t, doc.Notifications)
}

func TestRecordNewestFirst(t *testing.T) {
	doc := store.NewDocument()
	alice := &store.User{ID: "user_alice", Username: "alice"}
	bob := &store.User{ID: "user_bob", Username: "bob"}
	doc.Users = append(doc.Users, alice, bob)
	p := &store.Post{ID: "post_1", AuthorID: alice.ID}

	RecordLike(doc, p, bob)
	RecordFollow(doc, alice, bob)

	require.Len(t, doc.Notifications, 2)
	assert.Equal(t, store.NotificationFollow, doc.Notifications[0].Type)
	assert.Nil(t, doc.Notifications[0].PostID)
	assert.Equal(t, "bob liked your post", doc.Notifications[1].Message)
	require.NotNil(t, doc.Notifications[1].PostID)
	assert.Equal(t, "post_1", *doc.Notifications[1].PostID)
}

func TestRecordCommentPreview(t *testing.T) {
	doc := store.NewDocument()
	alice := &store.User{ID: "user_alice", Username: "alice"}
	bob := &store.User{ID: "user_bob", Username: "bob"}
	doc.Users = append(doc.Users, alice, bob)
	p := &store.Post{ID: "post_1", AuthorID: alice.ID}

	RecordComment(doc, p, bob, strings.Repeat("é", 200))

	require.Len(t, doc.Notifications, 1)
	msg := strings.TrimPrefix(doc.Notifications[0].Message, "bob commented: ")
	assert.Equal(t, maxPreview+1, utf8.RuneCountInString(msg))
	assert.True(t, strings.HasSuffix(msg, "…"))
}

func TestListAndMarkRead(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	alice, bob, p := seed(t, st)

	require.NoError(t, st.Update(ctx, func(doc *store.Document) error {
		RecordLike(doc, p, bob)
		RecordComment(doc, p, bob, "hey")
		RecordFollow(doc, bob, alice)
		return nil
	}))

	list, total, err := s.ListByRecipientID(ctx, alice.ID, 1, 20, false)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)

	count, err := s.GetUnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	err = s.MarkAsRead(ctx, list[0].ID, bob.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	err = s.MarkAsRead(ctx, "ntf_missing", alice.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.MarkAsRead(ctx, list[0].ID, alice.ID))
	unread, total, err := s.ListByRecipientID(ctx, alice.ID, 1, 20, true)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, list[1].ID, unread[0].ID)

	require.NoError(t, s.MarkAllAsRead(ctx, alice.ID))
	count, err = s.GetUnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// bob's follow notification is untouched
	count, err = s.GetUnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListPagination(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	alice, bob, p := seed(t, st)

	require.NoError(t, st.Update(ctx, func(doc *store.Document) error {
		for i := 0; i < 5; i++ {
			RecordLike(doc, p, bob)
		}
		return nil
	}))

	page, total, err := s.ListByRecipientID(ctx, alice.ID, 3, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 1)

	page, _, err = s.ListByRecipientID(ctx, alice.ID, 9, 2, false)
	require.NoError(t, err)
	assert.Empty(t, page)

	require.NotPanics(t, func() {
		page, _, err = s.ListByRecipientID(ctx, alice.ID, 1<<62, 20, false)
	})
	require.NoError(t, err)
	assert.Empty(t, page)
}
