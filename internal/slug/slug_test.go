package slug_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintsync/internal/domain"
	"sprintsync/internal/slug"
)

type memStore struct {
	mu    sync.Mutex
	taken map[string]bool
	err   error
}

func (m *memStore) SlugExists(_ context.Context, s string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.taken[s], nil
}

func (m *memStore) ResolveProjectSlug(_ context.Context, ref string) (string, error) {
	if ref == "p-123" {
		return "core", nil
	}
	return ref, nil
}

func (m *memStore) take(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taken[s] = true
}

var slugPattern = regexp.MustCompile(`^core-S3-[0-9a-f]{4}$`)

func TestAllocateFormat(t *testing.T) {
	a := slug.New(&memStore{taken: map[string]bool{}}, 0, 0)
	got, err := a.Allocate(context.Background(), domain.WorkItem{ProjectSlug: "core", SprintNumber: 3})
	require.NoError(t, err)
	assert.Regexp(t, slugPattern, got)
}

func TestAllocateResolvesProjectReference(t *testing.T) {
	a := slug.New(&memStore{taken: map[string]bool{}}, 0, 0)
	got, err := a.Allocate(context.Background(), domain.WorkItem{ProjectSlug: "p-123", SprintNumber: 3})
	require.NoError(t, err)
	assert.Regexp(t, slugPattern, got)
}

func TestAllocateKeepsExistingSlug(t *testing.T) {
	a := slug.New(&memStore{taken: map[string]bool{"core-S3-beef": true}}, 0, 0)
	got, err := a.Allocate(context.Background(), domain.WorkItem{Slug: "core-S3-beef", ProjectSlug: "core", SprintNumber: 3})
	require.NoError(t, err)
	assert.Equal(t, "core-S3-beef", got)
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	store := &memStore{taken: map[string]bool{"core-S3-aaaa": true, "core-S3-bbbb": true}}
	tokens := []string{"aaaa", "bbbb", "cccc"}
	calls := 0
	a := slug.New(store, 5, 2)
	a.Token = func() (string, error) {
		tok := tokens[calls]
		calls++
		return tok, nil
	}
	got, err := a.Allocate(context.Background(), domain.WorkItem{ProjectSlug: "core", SprintNumber: 3})
	require.NoError(t, err)
	assert.Equal(t, "core-S3-cccc", got)
	assert.Equal(t, 3, calls)
}

func TestAllocateConflictAfterBudget(t *testing.T) {
	store := &memStore{taken: map[string]bool{"core-S3-dead": true}}
	calls := 0
	a := slug.New(store, 4, 2)
	a.Token = func() (string, error) {
		calls++
		return "dead", nil
	}
	_, err := a.Allocate(context.Background(), domain.WorkItem{ProjectSlug: "core", SprintNumber: 3})
	var conflict domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "slug", conflict.Kind)
	assert.Equal(t, 4, calls)
}

func TestAllocateStoreErrorIsNotRetried(t *testing.T) {
	boom := errors.New("disk gone")
	calls := 0
	a := slug.New(&memStore{err: boom}, 5, 2)
	a.Token = func() (string, error) {
		calls++
		return "abcd", nil
	}
	_, err := a.Allocate(context.Background(), domain.WorkItem{ProjectSlug: "core", SprintNumber: 1})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestAllocatePairwiseDistinct(t *testing.T) {
	store := &memStore{taken: map[string]bool{}}
	a := slug.New(store, 32, 2)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, err := a.Allocate(context.Background(), domain.WorkItem{ProjectSlug: "core", SprintNumber: 3})
		require.NoError(t, err, fmt.Sprintf("allocation %d", i))
		require.False(t, seen[got], "duplicate slug %s", got)
		seen[got] = true
		store.take(got)
	}
}
