package slot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 9*60 + 30},
		{in: "23:59", want: 23*60 + 59},
		{in: "24:00", want: 24 * 60},
		{in: "9:05", want: 9*60 + 5},
		{in: "24:01", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "10:60", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestTimeOfDayString(t *testing.T) {
	assert.Equal(t, "09:05", TimeOfDay(9*60+5).String())
	assert.Equal(t, "00:00", TimeOfDay(0).String())
	assert.Equal(t, "17:30", TimeOfDay(17*60+30).String())
}

func TestTimeOfDayJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(TimeOfDay(13 * 60))
	require.NoError(t, err)
	assert.Equal(t, `"13:00"`, string(b))

	var parsed TimeOfDay
	require.NoError(t, json.Unmarshal([]byte(`"08:45"`), &parsed))
	assert.Equal(t, TimeOfDay(8*60+45), parsed)

	assert.Error(t, json.Unmarshal([]byte(`"26:00"`), &parsed))
}

func TestTimeRangeValid(t *testing.T) {
	assert.True(t, TimeRange{Start: 9 * 60, End: 17 * 60}.Valid())
	assert.True(t, TimeRange{Start: 0, End: 24 * 60}.Valid())

	// zero-length and inverted ranges
	assert.False(t, TimeRange{Start: 10 * 60, End: 10 * 60}.Valid())
	assert.False(t, TimeRange{Start: 12 * 60, End: 9 * 60}.Valid())
	assert.False(t, TimeRange{Start: -10, End: 60}.Valid())
	assert.False(t, TimeRange{Start: 0, End: 25 * 60}.Valid())
}

func TestTimeRangeOverlaps(t *testing.T) {
	base := TimeRange{Start: 10 * 60, End: 12 * 60}

	assert.True(t, base.Overlaps(TimeRange{Start: 11 * 60, End: 13 * 60}))
	assert.True(t, base.Overlaps(TimeRange{Start: 9 * 60, End: 11 * 60}))
	assert.True(t, base.Overlaps(TimeRange{Start: 10*60 + 30, End: 11 * 60}))
	assert.True(t, base.Overlaps(base))

	// Half-open ranges: touching endpoints do not overlap.
	assert.False(t, base.Overlaps(TimeRange{Start: 12 * 60, End: 13 * 60}))
	assert.False(t, base.Overlaps(TimeRange{Start: 9 * 60, End: 10 * 60}))
}

func TestTimeRangeContains(t *testing.T) {
	parent := TimeRange{Start: 9 * 60, End: 17 * 60}

	assert.True(t, parent.Contains(TimeRange{Start: 9 * 60, End: 17 * 60}))
	assert.True(t, parent.Contains(TimeRange{Start: 10 * 60, End: 11 * 60}))
	assert.False(t, parent.Contains(TimeRange{Start: 8 * 60, End: 10 * 60}))
	assert.False(t, parent.Contains(TimeRange{Start: 16 * 60, End: 18 * 60}))
}
