package composite

import (
	"context"
	"errors"
	"time"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
)

type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertIndicator(ctx context.Context, st domain.IndicatorState) error {
	return r.each(func(repo port.Repository) error { return repo.UpsertIndicator(ctx, st) })
}

func (r *Repo) InsertSignal(ctx context.Context, ts time.Time, sig domain.Signal, price string) error {
	return r.each(func(repo port.Repository) error { return repo.InsertSignal(ctx, ts, sig, price) })
}

func (r *Repo) SaveTrade(ctx context.Context, t domain.Trade) error {
	return r.each(func(repo port.Repository) error { return repo.SaveTrade(ctx, t) })
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	return r.each(func(repo port.Repository) error { return repo.InsertSnapshot(ctx, ts, payload) })
}

// RecentSignals reads from the first repository that keeps history.
func (r *Repo) RecentSignals(ctx context.Context, symbol string, limit int) ([]port.SignalRecord, error) {
	for _, repo := range r.repos {
		if h, ok := repo.(port.SignalHistory); ok {
			return h.RecentSignals(ctx, symbol, limit)
		}
	}
	return nil, ErrNoHistory
}

// LatestIndicator reads from the first repository that keeps indicator state.
func (r *Repo) LatestIndicator(ctx context.Context, symbol string) (string, error) {
	for _, repo := range r.repos {
		if h, ok := repo.(port.IndicatorHistory); ok {
			return h.LatestIndicator(ctx, symbol)
		}
	}
	return "", ErrNoHistory
}

func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// each writes to every repository and returns the first error.
func (r *Repo) each(fn func(port.Repository) error) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := fn(repo); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var ErrNoHistory = errors.New("no repository keeps history")

var (
	_ port.Repository = (*Repo)(nil)
	_ port.History    = (*Repo)(nil)
)
