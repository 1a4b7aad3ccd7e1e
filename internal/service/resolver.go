package service

import (
	"sort"

	"github.com/Kerhoff/DoseboT/internal/models"
)

// defaultBaseTime is used for plans without a known anchor
var defaultBaseTime = models.ClockTime{Hour: 8}

var anchorBaseTimes = map[models.TimeAnchor]models.ClockTime{
	models.AnchorBeforeBreakfast: {Hour: 7},
	models.AnchorAfterBreakfast:  {Hour: 8},
	models.AnchorBeforeLunch:     {Hour: 11, Minute: 30},
	models.AnchorAfterLunch:      {Hour: 12, Minute: 30},
	models.AnchorBeforeDinner:    {Hour: 17, Minute: 30},
	models.AnchorAfterDinner:     {Hour: 18, Minute: 30},
	models.AnchorBeforeSleep:     {Hour: 21},
	models.AnchorMorning:         {Hour: 8},
	models.AnchorNoon:            {Hour: 12},
	models.AnchorEvening:         {Hour: 20},
}

// frequencyOffsets lists the hours added to the base time, besides the base itself
var frequencyOffsets = map[models.Frequency][]int{
	models.FrequencyQD:   nil,
	models.FrequencyBID:  {12},
	models.FrequencyTID:  {8, 16},
	models.FrequencyQID:  {6, 12, 18},
	models.FrequencyQ12H: {12},
	models.FrequencyQ8H:  {8, 16},
	models.FrequencyQ6H:  {6, 12, 18},
}

// BaseTime maps an anchor to its canonical clock time
func BaseTime(anchor models.TimeAnchor) models.ClockTime {
	if t, ok := anchorBaseTimes[anchor]; ok {
		return t
	}
	return defaultBaseTime
}

// ExpandTimes returns the daily dose times for an anchor and frequency,
// ascending and without duplicates. As-needed frequencies yield nothing.
func ExpandTimes(anchor models.TimeAnchor, freq models.Frequency) []models.ClockTime {
	if !freq.Recurring() {
		return nil
	}

	base := BaseTime(anchor)
	times := []models.ClockTime{base}
	for _, h := range frequencyOffsets[freq] {
		times = append(times, base.AddHours(h))
	}
	return sortUnique(times)
}

// ResolveTimes returns the dose times for a plan. Explicit overrides replace
// the anchor/frequency derivation entirely.
func ResolveTimes(plan *models.MedicationPlan) []models.ClockTime {
	if len(plan.TimeOverrides) > 0 {
		return sortUnique(plan.TimeOverrides)
	}
	return ExpandTimes(plan.TimeAnchor, plan.Frequency)
}

// FormatTimes renders clock times as "HH:MM" strings
func FormatTimes(times []models.ClockTime) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.String()
	}
	return out
}

func sortUnique(in []models.ClockTime) []models.ClockTime {
	seen := make(map[int]bool, len(in))
	out := make([]models.ClockTime, 0, len(in))
	for _, t := range in {
		// normalise in case the value was built by hand
		t = models.NewClockTime(t.Hour, t.Minute)
		if seen[t.Minutes()] {
			continue
		}
		seen[t.Minutes()] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
