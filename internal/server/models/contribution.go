package models

import (
	"encoding/json"
	"time"

	"github.com/qfolders/qfolders/internal/timex"
)

// ContributionRecord is the stored counter for one user and calendar day.
type ContributionRecord struct {
	UserID string
	Date   time.Time
	Count  int
}

// ContributionDay is one cell of a range query: a day, its count and the
// bucketed intensity level 0..8.
type ContributionDay struct {
	Date  time.Time
	Count int
	Level int
}

func (d ContributionDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
		Level int    `json:"level"`
	}{d.Date.Format(timex.DateLayout), d.Count, d.Level})
}
