package service

import (
	"context"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
)

const dateLayout = "2006-01-02"

// Analytics derives usage statistics from a user's history. Nothing it
// computes is stored.
type Analytics struct {
	history *HistoryManager

	Now func() time.Time
}

func NewAnalytics(h *HistoryManager) *Analytics {
	return &Analytics{history: h, Now: time.Now}
}

// Summarize returns nil when the user has no history. Dates are UTC.
func (a *Analytics) Summarize(ctx context.Context, username string) (*db.AnalyticsSnapshot, error) {
	entries, err := a.history.Recent(ctx, username, MaxHistoryEntries)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	now := a.Now()
	since7 := now.AddDate(0, 0, -7)
	since30 := now.AddDate(0, 0, -30)

	snap := &db.AnalyticsSnapshot{
		TotalQueries:  len(entries),
		ToolsUsed:     make(map[db.Tool]int),
		QueriesByDate: make(map[string]int),
	}
	for _, e := range entries {
		snap.ToolsUsed[e.Tool]++
		snap.QueriesByDate[e.Timestamp.UTC().Format(dateLayout)]++
		if e.Timestamp.After(since7) {
			snap.Last7Days++
		}
		if e.Timestamp.After(since30) {
			snap.Last30Days++
		}
	}
	return snap, nil
}
