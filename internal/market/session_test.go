package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestIsOpenAt(t *testing.T) {
	s := NYSE()
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"saturday mid-morning", nyTime(t, 2024, time.January, 6, 10, 0), false},
		{"sunday mid-morning", nyTime(t, 2024, time.January, 7, 10, 0), false},
		{"wednesday mid-morning", nyTime(t, 2024, time.January, 10, 10, 0), true},
		{"wednesday exactly at open", nyTime(t, 2024, time.January, 10, 9, 30), false},
		{"wednesday one minute after open", nyTime(t, 2024, time.January, 10, 9, 31), true},
		{"wednesday one minute before close", nyTime(t, 2024, time.January, 10, 15, 59), true},
		{"wednesday exactly at close", nyTime(t, 2024, time.January, 10, 16, 0), false},
		{"wednesday pre-market", nyTime(t, 2024, time.January, 10, 8, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsOpenAt(tt.at))
		})
	}
}

func TestIsOpen_ConvertsReferenceToExchangeZone(t *testing.T) {
	// 15:00 UTC on a Wednesday in January is 10:00 in New York.
	ref := time.Date(2024, time.January, 10, 15, 0, 0, 0, time.UTC)
	assert.True(t, IsOpen(&ref))

	// 21:30 UTC is 16:30 in New York, after the close.
	late := time.Date(2024, time.January, 10, 21, 30, 0, 0, time.UTC)
	assert.False(t, IsOpen(&late))
}

func TestCloseOn(t *testing.T) {
	s := NYSE()
	d := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	got := s.CloseOn(d)

	assert.Equal(t, 16, got.Hour())
	assert.Equal(t, 15, got.Day())
	assert.Equal(t, "America/New_York", got.Location().String())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 9, Minute: 30}, c)
	assert.Equal(t, "09:30", c.String())

	_, err = ParseClock("9.30am")
	assert.Error(t, err)
}

func TestLoadLocation_FallsBack(t *testing.T) {
	loc := LoadLocation("Not/AZone")
	assert.Equal(t, "America/New_York", loc.String())
}
