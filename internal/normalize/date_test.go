package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/normalize"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestParseDateISO(t *testing.T) {
	d := normalize.ParseDate("2026-03-10T09:30:00Z", testNow)

	require.True(t, d.Known)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), d.Time)
}

func TestParseDateRelativeKorean(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"3일 전", testNow.AddDate(0, 0, -3)},
		{"2시간 전", testNow.Add(-2 * time.Hour)},
		{"10분 전", testNow.Add(-10 * time.Minute)},
		{"1주 전", testNow.AddDate(0, 0, -7)},
		{"어제", testNow.AddDate(0, 0, -1)},
		{"오늘", testNow},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d := normalize.ParseDate(tt.raw, testNow)

			require.True(t, d.Known)
			assert.Equal(t, tt.want, d.Time)
		})
	}
}

func TestParseDateRelativeEnglish(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"3 days ago", testNow.AddDate(0, 0, -3)},
		{"1 hour ago", testNow.Add(-time.Hour)},
		{"2 weeks ago", testNow.AddDate(0, 0, -14)},
		{"yesterday", testNow.AddDate(0, 0, -1)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d := normalize.ParseDate(tt.raw, testNow)

			require.True(t, d.Known)
			assert.Equal(t, tt.want, d.Time)
		})
	}
}

func TestParseDateAbsoluteLayouts(t *testing.T) {
	tests := []string{
		"2026-03-10",
		"2026.03.10",
		"2026/03/10",
		"2026년 3월 10일",
		"March 10, 2026",
		"Mar 10, 2026",
		"10 Mar 2026",
	}

	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			d := normalize.ParseDate(raw, testNow)

			require.True(t, d.Known, "expected %q to parse", raw)
			assert.Equal(t, want, d.Time)
		})
	}
}

func TestParseDateUnknown(t *testing.T) {
	tests := []string{"", "not a date", "someday soon", "???"}

	for _, raw := range tests {
		d := normalize.ParseDate(raw, testNow)

		assert.False(t, d.Known, "expected %q to be unknown", raw)
	}
}

func TestWithinDaysBoundary(t *testing.T) {
	exactly14 := normalize.ParseDate("14 days ago", testNow)
	assert.True(t, exactly14.WithinDays(14, testNow),
		"exactly 14 days old must be included at a 14-day threshold")

	days15 := normalize.ParseDate("15 days ago", testNow)
	assert.False(t, days15.WithinDays(14, testNow),
		"15 days old must be excluded at a 14-day threshold")
}

func TestWithinDaysUnknownAlwaysIncluded(t *testing.T) {
	unknown := normalize.ParseDate("garbled", testNow)

	assert.True(t, unknown.WithinDays(7, testNow))
	assert.True(t, unknown.WithinDays(1, testNow))
}

// Round-tripping a formatted date through ParseDate agrees with direct
// comparison for every supported layout.
func TestWithinDaysRoundTrip(t *testing.T) {
	d := normalize.ParseDate("3일 전", testNow)
	require.True(t, d.Known)

	reparsed := normalize.ParseDate(d.ISO(), testNow)
	require.True(t, reparsed.Known)

	assert.Equal(t, d.WithinDays(7, testNow), reparsed.WithinDays(7, testNow))
	assert.Equal(t, d.WithinDays(2, testNow), reparsed.WithinDays(2, testNow))
}
