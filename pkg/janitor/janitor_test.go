package janitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/cascade"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
	"github.com/1qh/nexvex/pkg/storage/memory"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// seed inserts organizations marked removing at the given ages. A negative
// age leaves the organization active.
func seed(t *testing.T, store storage.Store, ages map[string]time.Duration) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		for id, age := range ages {
			org := &models.Organization{
				ID: id, Name: id, Slug: id, OwnerUserID: "owner", CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
			}
			if age >= 0 {
				at := now.Add(-age)
				org.RemovingAt = &at
			}
			if err := tx.InsertOrganization(context.Background(), org); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

type fakeRemover struct {
	mu      sync.Mutex
	calls   []string
	results map[string]func() (*cascade.Result, error)
}

func (f *fakeRemover) Resume(ctx context.Context, orgID string) (*cascade.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, orgID)
	fn := f.results[orgID]
	f.mu.Unlock()
	if fn == nil {
		return &cascade.Result{OrgID: orgID, Complete: true}, nil
	}
	return fn()
}

func TestSweep(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, map[string]time.Duration{
		"stale-a": 10 * time.Minute,
		"stale-b": 20 * time.Minute,
		"stale-c": 30 * time.Minute,
		"stale-d": 40 * time.Minute,
		"fresh":   time.Minute,
		"active":  -1,
	})

	remover := &fakeRemover{results: map[string]func() (*cascade.Result, error){
		"stale-b": func() (*cascade.Result, error) {
			return &cascade.Result{OrgID: "stale-b", Failed: map[string]int{"notes": 1}}, nil
		},
		"stale-c": func() (*cascade.Result, error) { return nil, errors.New("store down") },
		"stale-d": func() (*cascade.Result, error) { panic("boom") },
	}}
	j := New(store, remover, 5*time.Minute, WithClock(clock))

	report, err := j.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, Report{Found: 4, Completed: 1, Incomplete: 1, Failed: 2}, report)
	assert.ElementsMatch(t, []string{"stale-a", "stale-b", "stale-c", "stale-d"}, remover.calls)
}

func TestSweepNothingToDo(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, map[string]time.Duration{"fresh": time.Minute, "active": -1})
	remover := &fakeRemover{}

	report, err := New(store, remover, 5*time.Minute, WithClock(clock)).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Empty(t, remover.calls)
}

func TestSweepSkipsWhileRunning(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, map[string]time.Duration{"stale": time.Hour})

	release := make(chan struct{})
	entered := make(chan struct{})
	remover := &fakeRemover{results: map[string]func() (*cascade.Result, error){
		"stale": func() (*cascade.Result, error) {
			close(entered)
			<-release
			return &cascade.Result{OrgID: "stale", Complete: true}, nil
		},
	}}
	j := New(store, remover, time.Minute, WithClock(clock))

	done := make(chan Report)
	go func() {
		report, _ := j.Sweep(context.Background())
		done <- report
	}()
	<-entered

	report, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	close(release)
	assert.Equal(t, Report{Found: 1, Completed: 1}, <-done)
}

func TestSweepStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, map[string]time.Duration{"stale": time.Hour})
	remover := &fakeRemover{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(store, remover, time.Minute, WithClock(clock)).Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, remover.calls)
}

func TestSweepWithCascadeEngine(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, map[string]time.Duration{"gone": time.Hour})
	require.NoError(t, store.WithTx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertDocument(context.Background(), &models.Document{
			ID: "n1", Table: "notes", OrgID: "gone", Data: map[string]any{},
		})
	}))

	engine, err := cascade.NewEngine(store, []cascade.Edge{cascade.OrgEdge("notes")})
	require.NoError(t, err)

	report, err := New(store, engine, time.Minute, WithClock(clock)).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Found: 1, Completed: 1}, report)

	err = store.WithTx(context.Background(), func(tx storage.Tx) error {
		_, err := tx.GetOrganization(context.Background(), "gone")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
