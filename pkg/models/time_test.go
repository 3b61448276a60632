package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeMarshalJSON(t *testing.T) {
	t.Parallel()

	ts := NewTime(time.Date(2024, 1, 1, 12, 30, 45, 123456789, time.UTC))
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-01 12:30:45"`, string(data))
}

func TestTimeUnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "display layout",
			input: `"2024-01-01 12:30:45"`,
			want:  time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC),
		},
		{
			name:  "rfc3339 fallback",
			input: `"2024-01-01T12:30:45Z"`,
			want:  time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC),
		},
		{
			name:  "null",
			input: `null`,
			want:  time.Time{},
		},
		{
			name:    "garbage",
			input:   `"yesterday"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var ts Time
			err := json.Unmarshal([]byte(tt.input), &ts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, ts.Equal(tt.want), "got %v, want %v", ts.Time, tt.want)
		})
	}
}

func TestParseStamp(t *testing.T) {
	t.Parallel()

	ts, err := ParseStamp("2024-01-01T00:00:00.000000")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 00:00:00", ts.String())

	_, err = ParseStamp("2024-01-01 00:00:00")
	require.Error(t, err)
}

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	orig := NewTime(time.Date(2024, 6, 15, 8, 0, 1, 0, time.UTC))
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var parsed Time
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, parsed.Equal(orig.Time))
}
