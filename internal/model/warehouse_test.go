package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateID(t *testing.T) {
	d := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 20240515, DateID(d))

	d = time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 20231201, DateID(d))
}

func TestNewDateDimension(t *testing.T) {
	// 2024-05-15 is a Wednesday.
	dim := NewDateDimension(time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 20240515, dim.ID)
	assert.Equal(t, 15, dim.Day)
	assert.Equal(t, 5, dim.Month)
	assert.Equal(t, 2024, dim.Year)
	assert.Equal(t, 2, dim.Quarter)
	assert.Equal(t, "May", dim.MonthName)
	assert.Equal(t, "Wednesday", dim.DayName)
	assert.False(t, dim.IsWeekend)
}

func TestNewDateDimension_Weekend(t *testing.T) {
	// 2024-05-18 is a Saturday.
	dim := NewDateDimension(time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC))
	assert.True(t, dim.IsWeekend)

	// 2024-05-19 is a Sunday.
	dim = NewDateDimension(time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC))
	assert.True(t, dim.IsWeekend)
}

func TestNewDateDimension_Quarters(t *testing.T) {
	for month, want := range map[time.Month]int{
		time.January: 1, time.March: 1,
		time.April: 2, time.June: 2,
		time.July: 3, time.September: 3,
		time.October: 4, time.December: 4,
	} {
		dim := NewDateDimension(time.Date(2024, month, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, want, dim.Quarter, "month %s", month)
	}
}
