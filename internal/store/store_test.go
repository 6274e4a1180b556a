package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/prekclip/server/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newFileStore(t *testing.T) (*Store, *FileBackend) {
	t.Helper()
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	s := New(backend, nil)
	t.Cleanup(func() { s.Close() })
	return s, backend
}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	backend, err := NewSQLiteBackend(context.Background(), ":memory:")
	require.NoError(t, err)
	s := New(backend, nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileBackendCreatesEmptyDocument(t *testing.T) {
	_, backend := newFileStore(t)

	data, err := os.ReadFile(backend.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[],"posts":[],"notifications":[]}`, string(data))
}

func TestBackendsRoundTrip(t *testing.T) {
	fileStore, _ := newFileStore(t)
	stores := map[string]*Store{
		"file":   fileStore,
		"sqlite": newSQLiteStore(t),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Update(ctx, func(doc *Document) error {
				doc.Users = append(doc.Users, &User{ID: "user_1", Username: "alice"})
				doc.Posts = append(doc.Posts, &Post{ID: "post_1", AuthorID: "user_1", Kind: PostKindImage, MediaRef: "/uploads/a.png"})
				return nil
			})
			require.NoError(t, err)

			err = s.View(ctx, func(doc *Document) error {
				require.Len(t, doc.Users, 1)
				assert.Equal(t, "alice", doc.Users[0].Username)
				assert.NotNil(t, doc.Users[0].Followers)
				require.Len(t, doc.Posts, 1)
				assert.Equal(t, PostKindImage, doc.Posts[0].Kind)
				assert.NotNil(t, doc.Posts[0].Likes)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestSQLiteEmptyLoad(t *testing.T) {
	s := newSQLiteStore(t)

	err := s.View(context.Background(), func(doc *Document) error {
		assert.Empty(t, doc.Users)
		assert.Empty(t, doc.Posts)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	s, backend := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(doc *Document) error {
		doc.Users = append(doc.Users, &User{ID: "user_1", Username: "alice"})
		return nil
	}))
	before, err := os.ReadFile(backend.Path())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Update(ctx, func(doc *Document) error {
		doc.Users = append(doc.Users, &User{ID: "user_2", Username: "bob"})
		doc.Users[0].Username = "mallory"
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := os.ReadFile(backend.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(doc *Document) error {
		doc.Posts = append(doc.Posts, &Post{ID: "post_1"})
		return nil
	}))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Update(ctx, func(doc *Document) error {
				p := doc.PostByID("post_1")
				p.Likes, _ = ToggleID(p.Likes, fmt.Sprintf("user_%d", i))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, s.View(ctx, func(doc *Document) error {
		assert.Len(t, doc.PostByID("post_1").Likes, writers)
		return nil
	}))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StorageDriver: "mongo"})
	require.Error(t, err)
}
