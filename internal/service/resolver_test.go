package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Kerhoff/DoseboT/internal/models"
)

func TestExpandTimes(t *testing.T) {
	tests := []struct {
		anchor models.TimeAnchor
		freq   models.Frequency
		want   []string
	}{
		{models.AnchorBeforeBreakfast, models.FrequencyBID, []string{"07:00", "19:00"}},
		{models.AnchorMorning, models.FrequencyQD, []string{"08:00"}},
		{"", models.FrequencyQD, []string{"08:00"}},
		{models.AnchorAfterDinner, models.FrequencyTID, []string{"02:30", "10:30", "18:30"}},
		{models.AnchorNoon, models.FrequencyQ6H, []string{"00:00", "06:00", "12:00", "18:00"}},
		{models.AnchorBeforeSleep, models.FrequencyQ12H, []string{"09:00", "21:00"}},
		{models.AnchorBeforeLunch, models.FrequencyQ8H, []string{"03:30", "11:30", "19:30"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.anchor)+"/"+string(tt.freq), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimes(ExpandTimes(tt.anchor, tt.freq)))
		})
	}
}

func TestExpandTimes_AsNeededIsEmpty(t *testing.T) {
	assert.Empty(t, ExpandTimes(models.AnchorMorning, models.FrequencyPRN))
	assert.Empty(t, ExpandTimes(models.AnchorMorning, models.FrequencyOther))
}

func TestExpandTimes_DeterministicSortedUnique(t *testing.T) {
	anchors := []models.TimeAnchor{
		"", models.AnchorBeforeBreakfast, models.AnchorAfterBreakfast,
		models.AnchorBeforeLunch, models.AnchorAfterLunch,
		models.AnchorBeforeDinner, models.AnchorAfterDinner,
		models.AnchorBeforeSleep, models.AnchorMorning, models.AnchorNoon, models.AnchorEvening,
	}
	freqs := []models.Frequency{
		models.FrequencyQD, models.FrequencyBID, models.FrequencyTID, models.FrequencyQID,
		models.FrequencyQ12H, models.FrequencyQ8H, models.FrequencyQ6H,
	}

	for _, a := range anchors {
		for _, f := range freqs {
			first := ExpandTimes(a, f)
			second := ExpandTimes(a, f)

			assert.Equal(t, first, second, "%s/%s", a, f)
			assert.NotEmpty(t, first, "%s/%s", a, f)

			for i := 1; i < len(first); i++ {
				assert.True(t, first[i-1].Before(first[i]), "%s/%s not strictly ascending: %v", a, f, FormatTimes(first))
			}
		}
	}
}

func TestResolveTimes_OverridesWin(t *testing.T) {
	plan := testPlan("p1", models.FrequencyBID, models.AnchorBeforeBreakfast)
	plan.TimeOverrides = clocks("21:15", "06:45", "21:15")

	assert.Equal(t, []string{"06:45", "21:15"}, FormatTimes(ResolveTimes(plan)))
}

func TestResolveTimes_FromAnchor(t *testing.T) {
	plan := testPlan("p1", models.FrequencyBID, models.AnchorBeforeBreakfast)

	assert.Equal(t, []string{"07:00", "19:00"}, FormatTimes(ResolveTimes(plan)))
}

func TestBaseTime_UnknownAnchor(t *testing.T) {
	assert.Equal(t, "08:00", BaseTime("brunch").String())
}
