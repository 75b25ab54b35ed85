package season

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zkLinkProtocol/nova-point-backend/config"
)

func TestCurrent(t *testing.T) {
	s1Start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s1End := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	s2End := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	seasons := []config.SeasonConfig{
		{Season: 1, StartTime: s1Start, EndTime: s1End},
		{Season: 2, StartTime: s1End, EndTime: s2End},
	}

	for _, tc := range []struct {
		name string
		now  time.Time
		want int // 0 means no active season
	}{
		{"before first season", s1Start.Add(-time.Second), 0},
		{"first instant of season 1", s1Start, 1},
		{"mid season 1", s1Start.AddDate(0, 0, 15), 1},
		{"season boundary belongs to season 2", s1End, 2},
		{"last instant of season 2", s2End.Add(-time.Second), 2},
		{"after all seasons", s2End, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := Current(seasons, tc.now)
			if tc.want == 0 {
				require.Nil(t, got)
			} else {
				require.NotNil(t, got)
				require.Equal(t, tc.want, got.Season)
			}
		})
	}
}
