package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/repositories/contributions"
	"github.com/qfolders/qfolders/internal/server/repositories/repomanager"
	"github.com/qfolders/qfolders/internal/timex"
)

// MaxRangeDays bounds a single range query; it also is the streak window.
const MaxRangeDays = 366

// levelThresholds[i] is the smallest count mapped to level i+1.
var levelThresholds = [...]int{1, 2, 5, 8, 11, 15, 18, 22}

// Level buckets a daily count into the intensity tiers 0..8.
func Level(count int) int {
	level := 0
	for i, threshold := range levelThresholds {
		if count >= threshold {
			level = i + 1
		}
	}
	return level
}

// ContributionLedger keeps one activity counter per user and calendar day.
type ContributionLedger struct {
	ds          DataStore
	repomanager repomanager.RepositoryManager
}

func NewContributionLedger(ds DataStore, m repomanager.RepositoryManager) *ContributionLedger {
	return &ContributionLedger{ds: ds, repomanager: m}
}

// RecordActivity adds one to the session user's counter for the calendar
// day of on.
func (l *ContributionLedger) RecordActivity(ctx context.Context, s *models.Session, on time.Time) error {
	return l.ds.Scoped(ctx, s.AccessToken, func(ctx context.Context, tx dbx.DBTX) error {
		return increment(ctx, l.repomanager.Contributions(tx), s.UserID, timex.Day(on))
	})
}

// increment is the only place that knows how a counter is bumped. Stores
// with an atomic upsert use it. Otherwise it looks the row up and inserts or
// updates; an insert that loses a race to another request falls through to
// the update. Two racing read-then-write sequences may undercount by one,
// which is accepted.
func increment(ctx context.Context, repo contributions.Repository, userID string, day time.Time) error {
	if u, ok := repo.(contributions.Upserter); ok {
		_, err := u.Upsert(ctx, userID, day)
		return err
	}

	_, err := repo.Find(ctx, userID, day)
	switch {
	case err == nil:
		return repo.Increment(ctx, userID, day)
	case !errors.Is(err, common.ErrorNotFound):
		return err
	}

	err = repo.Insert(ctx, userID, day)
	if errors.Is(err, common.ErrorAlreadyExists) {
		return repo.Increment(ctx, userID, day)
	}
	return err
}

// RangeQuery returns one entry per day in [from, to], ascending, with days
// without activity reported as zero.
func (l *ContributionLedger) RangeQuery(ctx context.Context, s *models.Session, from, to time.Time) ([]models.ContributionDay, error) {
	from, to = timex.Day(from), timex.Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end is before its start", common.ErrorValidation)
	}
	if timex.DaysBetween(from, to) >= MaxRangeDays {
		return nil, fmt.Errorf("%w: range exceeds %d days", common.ErrorValidation, MaxRangeDays)
	}

	var stored []*models.ContributionRecord
	err := l.ds.Scoped(ctx, s.AccessToken, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		stored, err = l.repomanager.Contributions(tx).SelectRange(ctx, s.UserID, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fillRange(stored, from, to), nil
}

// Streak counts consecutive active days ending today, or ending yesterday
// when today has no activity yet.
func (l *ContributionLedger) Streak(ctx context.Context, s *models.Session, today time.Time) (int, error) {
	today = timex.Day(today)
	days, err := l.RangeQuery(ctx, s, today.AddDate(0, 0, -(MaxRangeDays-1)), today)
	if err != nil {
		return 0, err
	}
	return streak(days), nil
}

func fillRange(stored []*models.ContributionRecord, from, to time.Time) []models.ContributionDay {
	counts := make(map[time.Time]int, len(stored))
	for _, r := range stored {
		counts[timex.Day(r.Date)] += r.Count
	}

	days := make([]models.ContributionDay, 0, timex.DaysBetween(from, to)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		c := counts[d]
		days = append(days, models.ContributionDay{Date: d, Count: c, Level: Level(c)})
	}
	return days
}

// streak expects days in ascending order with the last entry being today.
func streak(days []models.ContributionDay) int {
	i := len(days) - 1
	if i >= 0 && days[i].Count == 0 {
		i--
	}
	n := 0
	for ; i >= 0 && days[i].Count > 0; i-- {
		n++
	}
	return n
}
