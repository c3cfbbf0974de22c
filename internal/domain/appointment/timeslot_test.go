package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{input: "09:00", hour: 9, minute: 0},
		{input: "9:00", hour: 9, minute: 0},
		{input: "00:00", hour: 0, minute: 0},
		{input: "23:59", hour: 23, minute: 59},
		{input: "12:30", hour: 12, minute: 30},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "9", wantErr: true},
		{input: "09:0", wantErr: true},
		{input: "9am", wantErr: true},
		{input: "", wantErr: true},
		{input: "09:00:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			hour, minute, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.minute, minute)
		})
	}
}

func TestToInterval(t *testing.T) {
	day := date(2026, time.March, 10)

	iv, err := ToInterval(day, "09:00", 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC), iv.Start)
	assert.Equal(t, time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC), iv.End)
}

func TestToIntervalCrossesMidnight(t *testing.T) {
	day := date(2026, time.March, 10)

	iv, err := ToInterval(day, "23:30", 60)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC), iv.Start)
	assert.Equal(t, time.Date(2026, time.March, 11, 0, 30, 0, 0, time.UTC), iv.End)
}

func TestToIntervalRejectsBadInput(t *testing.T) {
	day := date(2026, time.March, 10)

	_, err := ToInterval(day, "25:00", 30)
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)

	_, err = ToInterval(day, "09:00", 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = ToInterval(day, "09:00", -15)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestIntervalOverlaps(t *testing.T) {
	day := date(2026, time.March, 10)
	mk := func(timeOfDay string, mins int) Interval {
		iv, err := ToInterval(day, timeOfDay, mins)
		if err != nil {
			t.Fatalf("bad fixture %s/%d: %v", timeOfDay, mins, err)
		}
		return iv
	}

	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{name: "identical", a: mk("09:00", 30), b: mk("09:00", 30), want: true},
		{name: "partial overlap", a: mk("09:00", 30), b: mk("09:15", 30), want: true},
		{name: "containment", a: mk("09:00", 60), b: mk("09:15", 15), want: true},
		{name: "back to back", a: mk("09:00", 30), b: mk("09:30", 30), want: false},
		{name: "back to back reversed", a: mk("09:30", 30), b: mk("09:00", 30), want: false},
		{name: "disjoint", a: mk("09:00", 30), b: mk("11:00", 30), want: false},
		{name: "one minute overlap", a: mk("09:00", 31), b: mk("09:30", 30), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestOverlapAcrossCalendarDates(t *testing.T) {
	// A slot spilling past midnight conflicts with an early slot the next day.
	late, err := ToInterval(date(2026, time.March, 10), "23:30", 60)
	require.NoError(t, err)
	early, err := ToInterval(date(2026, time.March, 11), "00:00", 30)
	require.NoError(t, err)

	assert.True(t, late.Overlaps(early))
}

func TestConflictsWith(t *testing.T) {
	day := date(2026, time.March, 10)
	existing := []*Appointment{
		{
			ID:            uuid.New(),
			ScheduledDate: day,
			ScheduledTime: "09:00",
			DurationMins:  30,
			Status:        StatusScheduled,
		},
	}

	candidate, err := ToInterval(day, "09:15", 30)
	require.NoError(t, err)
	assert.True(t, ConflictsWith(candidate, existing))

	free, err := ToInterval(day, "09:30", 30)
	require.NoError(t, err)
	assert.False(t, ConflictsWith(free, existing))

	assert.False(t, ConflictsWith(candidate, nil))
}

func TestConflictsWithUnparseableStoredTime(t *testing.T) {
	day := date(2026, time.March, 10)
	corrupt := []*Appointment{
		{ScheduledDate: day, ScheduledTime: "garbage", DurationMins: 30, Status: StatusScheduled},
	}

	candidate, err := ToInterval(day, "15:00", 30)
	require.NoError(t, err)

	// Corrupt rows block rather than silently vanish from conflict checks.
	assert.True(t, ConflictsWith(candidate, corrupt))
}
