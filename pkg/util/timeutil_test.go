package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHoursBetween(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		then time.Time
		want int
	}{
		{name: "exact", then: now.Add(-3 * time.Hour), want: 3},
		{name: "rounds up", then: now.Add(-90 * time.Minute), want: 2},
		{name: "rounds down", then: now.Add(-80 * time.Minute), want: 1},
		{name: "future", then: now.Add(2 * time.Hour), want: -2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, HoursBetween(tt.then, now))
		})
	}
}
