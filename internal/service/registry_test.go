package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository/memory"
	"github.com/Kerhoff/DoseboT/pkg/logger"
)

func TestRegistry_RecordAndRead(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(memory.NewKVStore(), logger.NewNop(), time.Second)

	triggers := []models.ScheduledTrigger{
		{ID: "t1", PlanID: "p1", Time: models.MustParseClock("07:55"), DoseTime: models.MustParseClock("08:00"), CreatedAt: testNow},
		{ID: "t2", PlanID: "p1", Time: models.MustParseClock("19:55"), DoseTime: models.MustParseClock("20:00"), Silent: true, CreatedAt: testNow},
	}
	require.NoError(t, r.RecordTriggers(ctx, "p1", triggers))
	require.NoError(t, r.RecordTriggers(ctx, "p2", triggers[:1]))

	assert.Equal(t, triggers, r.TriggersFor(ctx, "p1"))
	assert.Empty(t, r.TriggersFor(ctx, "unknown"))

	ids, err := r.PlanIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
}

func TestRegistry_EmptyListRemovesRecord(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(memory.NewKVStore(), logger.NewNop(), time.Second)

	require.NoError(t, r.RecordTriggers(ctx, "p1", []models.ScheduledTrigger{{ID: "t1", PlanID: "p1"}}))
	require.NoError(t, r.RecordTriggers(ctx, "p1", nil))

	ids, err := r.PlanIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// removing twice is fine
	assert.NoError(t, r.RemoveTriggers(ctx, "p1"))
}

func TestRegistry_CorruptRecordReadsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	require.NoError(t, store.Set(ctx, triggersKey("p1"), []byte("not json")))

	r := NewRegistry(store, logger.NewNop(), time.Second)
	assert.Empty(t, r.TriggersFor(ctx, "p1"))
}

func TestRegistry_WriteFailure(t *testing.T) {
	store := newFlakyStore()
	store.failWrites(triggersKeyPrefix)

	r := NewRegistry(store, logger.NewNop(), time.Second)
	err := r.RecordTriggers(context.Background(), "p1", []models.ScheduledTrigger{{ID: "t1"}})
	assert.True(t, errors.Is(err, models.ErrPersistence))
}
