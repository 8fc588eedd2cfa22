package tape

import (
	"context"
	"fmt"
	"time"
)

// Item is one ticker row of the tape.
type Item struct {
	ID          int64     `json:"id"`
	Cashtag     string    `json:"cashtag"`
	PrevOpen    *float64  `json:"prev_open"`
	PrevEOD     *float64  `json:"prev_eod"`
	LatestPrice *float64  `json:"latest_price"`
	Change      *float64  `json:"chng"`
	Trend       []float64 `json:"trend"`
	RowID       int64     `json:"rowId"`
	Key         string    `json:"key"`
}

// Row is one stored timeseries snapshot holding many items.
type Row struct {
	ID        int64
	Items     []Item
	CreatedAt time.Time
}

// Repository loads timeseries rows ordered by creation time, newest first.
type Repository interface {
	Rows(ctx context.Context) ([]Row, error)
}

// Clock reports whether the market is in its regular session.
type Clock interface {
	IsOpen(t time.Time) bool
}

// Flatten expands rows into tape items, tagging each with its row id and a composite key.
func Flatten(rows []Row) []Item {
	out := make([]Item, 0)
	for _, row := range rows {
		for i, item := range row.Items {
			item.RowID = row.ID
			keyID := item.ID
			if keyID == 0 {
				keyID = int64(i)
			}
			item.Key = fmt.Sprintf("%d-%d", row.ID, keyID)
			out = append(out, item)
		}
	}
	return out
}
