package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Kerhoff/DoseboT/internal/models"
)

func TestFormatRecorded(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 3, 0, 0, time.UTC)

	taken := FormatRecorded(&models.AdherenceEvent{PlanID: "p1", Kind: models.AdherenceTaken, Timestamp: at, Dosage: "500mg"})
	assert.Equal(t, "✅ *p1* taken at 08:03\n💊 500mg", taken)

	skipped := FormatRecorded(&models.AdherenceEvent{PlanID: "p1", Kind: models.AdherenceSkipped, Timestamp: at})
	assert.Equal(t, "⏭ *p1* skipped at 08:03", skipped)
}

func TestFormatStats(t *testing.T) {
	end := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -30)

	t.Run("empty", func(t *testing.T) {
		text := FormatStats(&models.ComplianceStats{PlanID: "p1", WindowStart: start, WindowEnd: end})
		assert.Contains(t, text, "📊 *Adherence for p1*")
		assert.Contains(t, text, "_02 May to 01 Jun 2026_")
		assert.Contains(t, text, "No doses recorded yet.")
	})

	t.Run("aggregate", func(t *testing.T) {
		text := FormatStats(&models.ComplianceStats{
			Taken: 7, Skipped: 3, AdherenceRate: 0.7, ConsecutiveMissed: 2,
			WindowStart: start, WindowEnd: end,
			PerMedication: []models.ComplianceStats{
				{PlanID: "a", MedicationName: "Aspirin", Taken: 4, Skipped: 0, AdherenceRate: 1},
				{PlanID: "m", Taken: 3, Skipped: 3, AdherenceRate: 0.5},
			},
		})
		assert.Contains(t, text, "📊 *Adherence for all medications*")
		assert.Contains(t, text, "📈 Rate: 70%")
		assert.Contains(t, text, "⚠️ Missed in a row: 2")
		assert.Contains(t, text, "• Aspirin: 100% (4/4)")
		assert.Contains(t, text, "• m: 50% (3/6)")
	})
}
