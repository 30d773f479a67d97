package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1qh/nexvex/pkg/cascade"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/storage"
)

// Remover resumes the removal of one organization
type Remover interface {
	Resume(ctx context.Context, orgID string) (*cascade.Result, error)
}

// Option configures a Janitor
type Option func(*Janitor)

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// Janitor finishes organization removals that a request left incomplete:
// the process stopped mid-cascade, or rows failed to delete.
type Janitor struct {
	store      storage.Store
	remover    Remover
	staleAfter time.Duration
	logger     *observability.Logger
	now        func() time.Time

	// one sweep at a time; a slow sweep makes the next tick a no-op
	running sync.Mutex
}

// Report summarizes one sweep
type Report struct {
	Found      int  `json:"found"`
	Completed  int  `json:"completed"`
	Incomplete int  `json:"incomplete"`
	Failed     int  `json:"failed"`
	Skipped    bool `json:"skipped,omitempty"`
}

// New creates a janitor. Organizations marked removing less than staleAfter
// ago are left to the request that marked them.
func New(store storage.Store, remover Remover, staleAfter time.Duration, opts ...Option) *Janitor {
	j := &Janitor{
		store:      store,
		remover:    remover,
		staleAfter: staleAfter,
		logger:     observability.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Sweep resumes every stale removal. A failing organization does not stop
// the sweep; the joined errors are returned with the report.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	var report Report
	if !j.running.TryLock() {
		report.Skipped = true
		j.logger.Warn("previous sweep still running, skipping")
		return report, nil
	}
	defer j.running.Unlock()

	cutoff := j.now().UTC().Add(-j.staleAfter)
	var orgIDs []string
	if err := j.store.WithTx(ctx, func(tx storage.Tx) error {
		orgs, err := tx.ListRemovingOrganizations(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, org := range orgs {
			orgIDs = append(orgIDs, org.ID)
		}
		return nil
	}); err != nil {
		return report, fmt.Errorf("failed to list removing organizations: %w", err)
	}
	report.Found = len(orgIDs)

	var errs []error
	for _, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := j.resume(ctx, orgID)
		switch {
		case err != nil:
			report.Failed++
			errs = append(errs, fmt.Errorf("org %s: %w", orgID, err))
		case result.Complete:
			report.Completed++
		default:
			report.Incomplete++
		}
	}

	if report.Found > 0 {
		j.logger.WithFields(map[string]interface{}{
			"found":      report.Found,
			"completed":  report.Completed,
			"incomplete": report.Incomplete,
			"failed":     report.Failed,
		}).Info("removal sweep finished")
	}
	return report, errors.Join(errs...)
}

func (j *Janitor) resume(ctx context.Context, orgID string) (result *cascade.Result, err error) {
	defer observability.RecoverPanicWithCallback(j.logger, "resume "+orgID, func(r interface{}) {
		err = observability.MustRecover(r)
	})
	result, err = j.remover.Resume(ctx, orgID)
	if err == nil && result == nil {
		err = errors.New("remover returned no result")
	}
	return result, err
}
