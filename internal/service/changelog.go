package service

import (
	"context"
	"time"

	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// ChangeLogConfig bounds change log pages.
type ChangeLogConfig struct {
	DefaultLookback time.Duration
	DefaultLimit    int
	MaxLimit        int
}

// ChangeLog answers "what changed since T" for a caller.
type ChangeLog struct {
	cases repository.CaseRepository
	cfg   ChangeLogConfig
	now   func() time.Time
}

// NewChangeLog constructs a ChangeLog with defaults for zero config values.
func NewChangeLog(cases repository.CaseRepository, cfg ChangeLogConfig) *ChangeLog {
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 30 * 24 * time.Hour
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 500
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return &ChangeLog{cases: cases, cfg: cfg, now: utcNow}
}

// ChangesSince returns one page of cases updated after since, oldest first.
// Field callers are always scoped to their own assignments; assignee is honored for others.
// A short page is stamped with the read time. A full page is stamped with the updated_at of its
// last case so the next pull resumes right after it; a since in the future is clamped to now.
func (l *ChangeLog) ChangesSince(ctx context.Context, c model.Caller, since *time.Time, assignee uuid.UUID, limit int) (model.ChangeSet, error) {
	watermark := l.now()

	from := watermark.Add(-l.cfg.DefaultLookback)
	if since != nil {
		from = since.UTC()
	}
	if from.After(watermark) {
		from = watermark
	}

	switch {
	case limit <= 0:
		limit = l.cfg.DefaultLimit
	case limit > l.cfg.MaxLimit:
		limit = l.cfg.MaxLimit
	}

	scope := assignee
	if c.Role.IsField() {
		scope = c.UserID
	}

	// one extra row tells whether another page exists
	cases, err := l.cases.ListUpdatedSince(ctx, model.CaseFilter{Since: from, AssignedTo: scope, Limit: limit + 1})
	if err != nil {
		return model.ChangeSet{}, err
	}
	if cases == nil {
		cases = []model.Case{}
	}
	hasMore := len(cases) > limit
	if hasMore {
		cases = pageBoundary(cases, limit)
		watermark = cases[len(cases)-1].UpdatedAt
	}
	return model.ChangeSet{
		Cases:      cases,
		DeletedIDs: []uuid.UUID{},
		HasMore:    hasMore,
		Watermark:  watermark,
	}, nil
}

// pageBoundary cuts rows (at least limit+1, oldest first) to a page whose last updated_at is
// strictly older than the first row left out, so resuming with "updated_at > last" skips nothing.
// When the whole page shares one timestamp the page is returned as is.
func pageBoundary(rows []model.Case, limit int) []model.Case {
	next := rows[limit].UpdatedAt
	n := limit
	for n > 0 && rows[n-1].UpdatedAt.Equal(next) {
		n--
	}
	if n == 0 {
		n = limit
	}
	return rows[:n]
}
