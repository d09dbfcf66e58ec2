package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bedflow/internal/adapters/schedule"
)

func TestKey_UsesUTCDay(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	at := time.Date(2026, 3, 11, 0, 30, 0, 0, lagos)

	assert.Equal(t, "discharges:2026-03-10", schedule.Key(at))
}

func TestParseDepartures(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]string
		want    map[string]int
		wantErr bool
	}{
		{
			name: "counts",
			raw:  map[string]string{"icu": "2", "gen": "5"},
			want: map[string]int{"icu": 2, "gen": 5},
		},
		{
			name: "zero entries dropped",
			raw:  map[string]string{"icu": "0"},
			want: map[string]int{},
		},
		{
			name:    "not a number",
			raw:     map[string]string{"icu": "two"},
			wantErr: true,
		},
		{
			name:    "negative",
			raw:     map[string]string{"icu": "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schedule.ParseDepartures(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
