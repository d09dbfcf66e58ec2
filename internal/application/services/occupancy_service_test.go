package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/pkg/config"
)

func TestSnapshot_OccupancyRate(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "icu", beds("i1", "i2", "i3")...)
	f.ward(t, "gen", beds("g1", "g2", "g3", "g4")...)
	f.ward(t, "empty")

	f.admit(t, "icu")
	f.admit(t, "gen")
	f.admit(t, "gen")
	_, err := f.allocation.SetUnitStatus(context.Background(), "g4", services.UnitStatusChange{Status: entities.BedStatusMaintenance})
	require.NoError(t, err)

	snap := f.occupancy.GetSnapshot(context.Background())

	assert.Equal(t, 33.33, snap.Wards["icu"].OccupancyRate)
	assert.Equal(t, 50.0, snap.Wards["gen"].OccupancyRate)
	assert.Equal(t, 1, snap.Wards["gen"].Maintenance)
	assert.Equal(t, 0.0, snap.Wards["empty"].OccupancyRate)
	assert.Equal(t, 0, snap.Wards["empty"].Total)

	assert.Equal(t, 7, snap.Hospital.Total)
	assert.Equal(t, 3, snap.Hospital.Occupied)
	assert.Equal(t, entities.OccupancyRate(3, 7), snap.Hospital.OccupancyRate)
	assert.Equal(t, 42.86, snap.Hospital.OccupancyRate)
}

func TestSample_FoldsDayFromFreshRead(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1", "g2")...)
	ctx := context.Background()

	day1 := f.clock.Now()
	_, err := f.occupancy.Sample(ctx, day1)
	require.NoError(t, err)
	f.admit(t, "gen")
	_, err = f.occupancy.Sample(ctx, day1.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, f.occupancy.TodaySnapshots(), 2)

	// both beds full by the time the day is folded
	f.admit(t, "gen")
	next := f.clock.Advance(16 * time.Hour)
	snap, err := f.occupancy.Sample(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Hospital.OccupancyRate)

	recs, err := f.store.ListDailyRecords(ctx, day1, day1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, entities.DayStart(day1), rec.Date)
	require.Len(t, rec.Snapshots, 2)
	assert.Equal(t, 0.0, rec.Snapshots[0].Hospital.OccupancyRate)
	assert.Equal(t, 50.0, rec.Snapshots[1].Hospital.OccupancyRate)
	assert.Equal(t, 100.0, rec.Hospital.OccupancyRate, "the day record is a point-in-time read, not an average")

	assert.Len(t, f.occupancy.TodaySnapshots(), 1)
	latest := f.occupancy.LatestSample()
	require.NotNil(t, latest)
	assert.Equal(t, next, latest.Timestamp)
	assert.Equal(t, 100.0, latest.Hospital.OccupancyRate)
}

func TestHistory_Window(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	today := entities.DayStart(f.clock.Now())
	for _, back := range []int{1, 3, 10} {
		require.NoError(t, f.store.SaveDailyRecord(ctx, &entities.DailyRecord{Date: today.AddDate(0, 0, -back)}))
	}

	recs, err := f.occupancy.History(ctx, services.HistoryWindow{Days: 7})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Date.Before(recs[1].Date))

	recs, err = f.occupancy.History(ctx, services.HistoryWindow{Days: 0})
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = f.occupancy.History(ctx, services.HistoryWindow{Days: -1})
	assert.Error(t, err)
}

func TestCheckpointAndRestore(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	_, err := f.occupancy.Sample(ctx, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.occupancy.Checkpoint(ctx, f.clock.Now()))

	restarted := services.NewOccupancyService(f.registry, f.store, nil, nil)
	require.NoError(t, restarted.Restore(ctx, f.clock.Now()))
	assert.Len(t, restarted.TodaySnapshots(), 1)
}

func TestSampler_TickReleasesBeforeSampling(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	f.admit(t, "gen")
	_, err := f.allocation.Discharge(ctx, "g1")
	require.NoError(t, err)

	f.clock.Advance(testDwell)
	sampler := services.NewSampler(f.allocation, f.occupancy, time.Hour, f.clock.Now)
	sampler.Tick(ctx)

	assert.Equal(t, entities.BedStatusAvailable, f.bed(t, "g1").Status)
	today := f.occupancy.TodaySnapshots()
	require.Len(t, today, 1)
	assert.Equal(t, 1, today[0].Hospital.Available)
}

func TestProvisionLayout_SkipsExistingWards(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "icu", beds("i1")...)

	layout, err := config.ParseWardLayout([]byte(`
wards:
  - id: icu
    count: 4
  - id: gen
    name: General
    beds:
      - id: g1
      - id: g2
        equipment: vent
`))
	require.NoError(t, err)

	created, err := f.wards.ProvisionLayout(context.Background(), layout)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	icu, _ := f.registry.Ward("icu")
	assert.Equal(t, 1, icu.Capacity)
	assert.True(t, f.bed(t, "g2").HasEquipment("vent"))

	views := f.wards.ListWards(context.Background())
	require.Len(t, views, 2)
	assert.Equal(t, "gen", views[0].ID)
	assert.Equal(t, 2, views[0].Stats.Available)
}

func TestReconfigureWard_CapacityMismatchRejected(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1", "g2")...)

	_, err := f.wards.ReconfigureWard(context.Background(), &entities.Ward{ID: "gen", Capacity: 3}, beds("g1", "g2"))
	require.Error(t, err)

	ward, _ := f.registry.Ward("gen")
	assert.Equal(t, 2, ward.Capacity)
}
