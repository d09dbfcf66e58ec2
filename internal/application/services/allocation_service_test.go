package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

func TestSubmitRequest_Validation(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	_, err := f.allocation.SubmitRequest(ctx, services.SubmitRequestInput{WardPreference: "gen"})
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))

	_, err = f.allocation.SubmitRequest(ctx, services.SubmitRequestInput{PatientRef: "p", WardPreference: "nowhere"})
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))

	req, err := f.allocation.SubmitRequest(ctx, services.SubmitRequestInput{PatientRef: "p", WardPreference: "gen", Priority: 3})
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusPending, req.Status)
	assert.Equal(t, f.clock.Now(), req.ETA)

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusPending, stored.Status)
}

func TestApprove_NoCapacityLeavesRequestPending(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "icu", beds("i1")...)
	f.ward(t, "gen", beds("g1")...)
	f.admit(t, "icu")
	f.admit(t, "gen")

	req := f.submit(t, "icu", "")
	_, err := f.allocation.Approve(context.Background(), req.ID, services.ApproveOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsNoCapacity(err))
	assert.Equal(t, "icu", apperrors.ShortfallWard(err))

	got, err := f.allocation.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusPending, got.Status)
	assert.Nil(t, got.AssignedBedID)
}

func TestApprove_CandidateRanking(t *testing.T) {
	tests := []struct {
		name      string
		ward      string
		equipment string
		want      string
	}{
		{name: "ward and equipment", ward: "icu", equipment: "vent", want: "i3"},
		{name: "equipment beats ward", ward: "gen", equipment: "vent", want: "i3"},
		{name: "ward without equipment", ward: "gen", equipment: "", want: "g1"},
		{name: "ward when nobody has the equipment", ward: "gen", equipment: "dialysis", want: "g1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ward(t, "icu", beds("i1")[0], beds("i2")[0], tagged("i3", "vent"))
			f.ward(t, "gen", beds("g2")[0], beds("g1")[0])

			req := f.submit(t, tt.ward, tt.equipment)
			approved, err := f.allocation.Approve(context.Background(), req.ID, services.ApproveOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, entities.StringValue(approved.AssignedBedID))
		})
	}
}

func TestApprove_FallsBackToAnyWard(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "icu", beds("i1")...)
	f.ward(t, "gen", beds("g1")...)
	f.admit(t, "icu")

	approved := f.admit(t, "icu")
	assert.Equal(t, "g1", entities.StringValue(approved.AssignedBedID))
}

func TestApprove_ImmediateAdmissionAndReservation(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1", "g2")...)
	ctx := context.Background()

	admitted := f.admit(t, "gen")
	assert.Equal(t, entities.RequestStatusApproved, admitted.Status)
	assert.Nil(t, admitted.ReservationExpiresAt)
	b := f.bed(t, "g1")
	assert.Equal(t, entities.BedStatusOccupied, b.Status)
	assert.Equal(t, admitted.PatientRef, entities.StringValue(b.PatientRef))
	assert.Equal(t, admitted.ID, entities.StringValue(b.RequestID))

	eta := f.clock.Now().Add(3 * time.Hour)
	req, err := f.allocation.SubmitRequest(ctx, services.SubmitRequestInput{PatientRef: "later", WardPreference: "gen", ETA: &eta})
	require.NoError(t, err)
	reserved, err := f.allocation.Approve(ctx, req.ID, services.ApproveOptions{})
	require.NoError(t, err)

	require.NotNil(t, reserved.ReservationExpiresAt)
	assert.Equal(t, f.clock.Now().Add(testTTL), *reserved.ReservationExpiresAt)
	assert.Equal(t, entities.BedStatusReserved, f.bed(t, "g2").Status)

	assert.Equal(t, []entities.BedEventType{entities.BedEventTypeAdmission, entities.BedEventTypeReservation}, f.bus.EventTypes()[len(f.bus.EventTypes())-2:])
}

func TestApprove_ExplicitBed(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1", "g2")...)
	ctx := context.Background()

	req := f.submit(t, "gen", "")
	approved, err := f.allocation.Approve(ctx, req.ID, services.ApproveOptions{BedID: "g2", ReservationTTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "g2", entities.StringValue(approved.AssignedBedID))
	assert.Equal(t, entities.BedStatusReserved, f.bed(t, "g2").Status)

	other := f.submit(t, "gen", "")
	_, err = f.allocation.Approve(ctx, other.ID, services.ApproveOptions{BedID: "g2"})
	assert.True(t, apperrors.IsInvalidTransition(err))

	_, err = f.allocation.Approve(ctx, req.ID, services.ApproveOptions{})
	assert.True(t, apperrors.IsInvalidTransition(err), "approving twice is not a forward edge")
}

func TestApprove_ConcurrentAdmissionsNeverShareABed(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1", "g2", "g3")...)
	ctx := context.Background()

	const n = 12
	reqs := make([]*entities.AdmissionRequest, n)
	for i := range reqs {
		reqs[i] = f.submit(t, "gen", "")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		assigned = map[string]string{}
		full     int
	)
	for _, req := range reqs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			approved, err := f.allocation.Approve(ctx, id, services.ApproveOptions{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, apperrors.IsNoCapacity(err), "unexpected error %v", err)
				full++
				return
			}
			bedID := entities.StringValue(approved.AssignedBedID)
			_, dup := assigned[bedID]
			assert.False(t, dup, "bed %s assigned twice", bedID)
			assigned[bedID] = id
		}(req.ID)
	}
	wg.Wait()

	assert.Len(t, assigned, 3)
	assert.Equal(t, n-3, full)
	for bedID, reqID := range assigned {
		assert.Equal(t, reqID, entities.StringValue(f.bed(t, bedID).RequestID))
	}
}

func TestDeny(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	req := f.submit(t, "gen", "")
	_, err := f.allocation.Deny(ctx, req.ID, "")
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))

	denied, err := f.allocation.Deny(ctx, req.ID, "outside catchment")
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusDenied, denied.Status)
	assert.Equal(t, "outside catchment", entities.StringValue(denied.DenialReason))

	_, err = f.allocation.Approve(ctx, req.ID, services.ApproveOptions{})
	assert.True(t, apperrors.IsInvalidTransition(err))
	_, err = f.allocation.Cancel(ctx, req.ID, "changed mind")
	assert.True(t, apperrors.IsInvalidTransition(err))

	admitted := f.admit(t, "gen")
	_, err = f.allocation.Deny(ctx, admitted.ID, "too late")
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestCancel_ReleasesReservation(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	req := f.submit(t, "gen", "")
	_, err := f.allocation.Approve(ctx, req.ID, services.ApproveOptions{ReservationTTL: time.Hour})
	require.NoError(t, err)

	cancelled, err := f.allocation.Cancel(ctx, req.ID, "patient went elsewhere")
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusCancelled, cancelled.Status)

	b := f.bed(t, "g1")
	assert.Equal(t, entities.BedStatusAvailable, b.Status)
	assert.Nil(t, b.PatientRef)
	assert.Nil(t, b.RequestID)
}

func TestCancel_OccupiedBedRequiresDischarge(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)

	admitted := f.admit(t, "gen")
	_, err := f.allocation.Cancel(context.Background(), admitted.ID, "oops")
	assert.True(t, apperrors.IsInvalidTransition(err))

	got, _ := f.allocation.GetRequest(context.Background(), admitted.ID)
	assert.Equal(t, entities.RequestStatusApproved, got.Status)
	assert.Equal(t, entities.BedStatusOccupied, f.bed(t, "g1").Status)
}

func TestLifecycle_ReserveCheckInDischargeDwell(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	req := f.submit(t, "gen", "")
	_, err := f.allocation.Approve(ctx, req.ID, services.ApproveOptions{ReservationTTL: time.Hour})
	require.NoError(t, err)

	checkedIn, err := f.allocation.CheckIn(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, entities.BedStatusOccupied, checkedIn.Status)
	got, _ := f.allocation.GetRequest(ctx, req.ID)
	assert.Nil(t, got.ReservationExpiresAt)

	discharged, err := f.allocation.Discharge(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, entities.BedStatusCleaning, discharged.Status)
	assert.Nil(t, discharged.PatientRef)
	got, _ = f.allocation.GetRequest(ctx, req.ID)
	assert.Equal(t, entities.RequestStatusFulfilled, got.Status)

	_, err = f.allocation.Discharge(ctx, "g1")
	assert.True(t, apperrors.IsInvalidTransition(err))

	report, err := f.allocation.ReleaseExpired(ctx, f.clock.Now().Add(testDwell-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, report.DwellReleased)
	assert.Equal(t, entities.BedStatusCleaning, f.bed(t, "g1").Status)

	report, err = f.allocation.ReleaseExpired(ctx, f.clock.Now().Add(testDwell))
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, report.DwellReleased)
	assert.Equal(t, entities.BedStatusAvailable, f.bed(t, "g1").Status)
}

func TestReleaseExpired_CancelsLapsedReservation(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	req := f.submit(t, "gen", "")
	_, err := f.allocation.Approve(ctx, req.ID, services.ApproveOptions{ReservationTTL: time.Hour})
	require.NoError(t, err)

	report, err := f.allocation.ReleaseExpired(ctx, f.clock.Now().Add(59*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, report.ReservationsExpired)

	report, err = f.allocation.ReleaseExpired(ctx, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, report.ReservationsExpired)

	assert.Equal(t, entities.BedStatusAvailable, f.bed(t, "g1").Status)
	got, _ := f.allocation.GetRequest(ctx, req.ID)
	assert.Equal(t, entities.RequestStatusCancelled, got.Status)
	assert.Equal(t, "reservation expired", entities.StringValue(got.CancelReason))
}

func TestSetUnitStatus(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1", "g2", "g3")...)
	ctx := context.Background()

	_, err := f.allocation.SetUnitStatus(ctx, "g1", services.UnitStatusChange{Status: entities.BedStatusOccupied})
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
	assert.Equal(t, entities.BedStatusAvailable, f.bed(t, "g1").Status)

	_, err = f.allocation.SetUnitStatus(ctx, "g1", services.UnitStatusChange{Status: entities.BedStatusCleaning})
	assert.True(t, apperrors.IsInvalidTransition(err))

	_, err = f.allocation.SetUnitStatus(ctx, "g1", services.UnitStatusChange{Status: "broken"})
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))

	b, err := f.allocation.SetUnitStatus(ctx, "g1", services.UnitStatusChange{Status: entities.BedStatusOccupied, PatientRef: "walk-in"})
	require.NoError(t, err)
	assert.Equal(t, "walk-in", entities.StringValue(b.PatientRef))

	b, err = f.allocation.SetUnitStatus(ctx, "g2", services.UnitStatusChange{Status: entities.BedStatusMaintenance})
	require.NoError(t, err)
	assert.Equal(t, entities.BedStatusMaintenance, b.Status)

	admitted := f.admit(t, "gen")
	require.Equal(t, "g3", entities.StringValue(admitted.AssignedBedID))
	b, err = f.allocation.SetUnitStatus(ctx, "g3", services.UnitStatusChange{Status: entities.BedStatusMaintenance})
	require.NoError(t, err)
	assert.Nil(t, b.PatientRef)
	got, _ := f.allocation.GetRequest(ctx, admitted.ID)
	assert.Equal(t, entities.RequestStatusFulfilled, got.Status)
}

func TestTransfer_MovesOccupantAtomically(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "icu", tagged("i1", "vent"))
	f.ward(t, "gen", beds("g1")[0], tagged("g2", "vent"))
	ctx := context.Background()

	req := f.admit(t, "icu")
	result, err := f.allocation.Transfer(ctx, "i1", "gen", "step down")
	require.NoError(t, err)

	assert.Equal(t, "i1", result.Released.ID)
	assert.Equal(t, entities.BedStatusCleaning, result.Released.Status)
	assert.Equal(t, "g2", result.Admitted.ID, "beds with the same equipment are preferred")
	assert.Equal(t, req.PatientRef, entities.StringValue(result.Admitted.PatientRef))
	assert.Equal(t, req.ID, entities.StringValue(result.Admitted.RequestID))

	got, _ := f.allocation.GetRequest(ctx, req.ID)
	assert.Equal(t, "g2", entities.StringValue(got.AssignedBedID))
	require.Len(t, got.Transfers, 1)
	assert.Equal(t, entities.TransferRecord{FromBedID: "i1", ToBedID: "g2", Reason: "step down", At: f.clock.Now()}, got.Transfers[0])

	discharged, err := f.allocation.Discharge(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, entities.BedStatusCleaning, discharged.Status)
	got, _ = f.allocation.GetRequest(ctx, req.ID)
	assert.Equal(t, entities.RequestStatusFulfilled, got.Status)
}

func TestTransfer_NoCapacityLeavesSourceUnchanged(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "icu", beds("i1")...)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	f.admit(t, "gen")
	req := f.admit(t, "icu")
	before := f.bed(t, "i1")

	_, err := f.allocation.Transfer(ctx, "i1", "gen", "step down")
	require.Error(t, err)
	assert.True(t, apperrors.IsNoCapacity(err))
	assert.Equal(t, "gen", apperrors.ShortfallWard(err))

	after := f.bed(t, "i1")
	assert.Equal(t, before, after)
	got, _ := f.allocation.GetRequest(ctx, req.ID)
	assert.Empty(t, got.Transfers)
}

func TestTransfer_SourceMustBeOccupied(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "icu", beds("i1")...)
	f.ward(t, "gen", beds("g1")...)

	_, err := f.allocation.Transfer(context.Background(), "i1", "gen", "")
	assert.True(t, apperrors.IsInvalidTransition(err))

	_, err = f.allocation.Transfer(context.Background(), "i1", "nowhere", "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	f.bus.fail = true

	admitted := f.admit(t, "gen")
	assert.Equal(t, entities.RequestStatusApproved, admitted.Status)
	assert.Equal(t, entities.BedStatusOccupied, f.bed(t, "g1").Status)
}

func TestLoadRequests_RestoresBook(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()
	admitted := f.admit(t, "gen")

	restored := services.NewAllocationService(f.registry, nil, nil, services.AllocationConfig{ReservationTTL: testTTL})
	require.NoError(t, restored.LoadRequests(ctx, f.store))

	got, err := restored.GetRequest(ctx, admitted.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusApproved, got.Status)

	_, err = restored.Discharge(ctx, "g1")
	require.NoError(t, err)
	got, _ = restored.GetRequest(ctx, admitted.ID)
	assert.Equal(t, entities.RequestStatusFulfilled, got.Status)
}

func TestListRequests_OrderedByPriority(t *testing.T) {
	f := newFixture(t)
	f.ward(t, "gen", beds("g1")...)
	ctx := context.Background()

	for i, priority := range []int{1, 5, 3} {
		_, err := f.allocation.SubmitRequest(ctx, services.SubmitRequestInput{
			PatientRef:     fmt.Sprintf("p%d", i),
			WardPreference: "gen",
			Priority:       priority,
		})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	pending := entities.RequestStatusPending
	list := f.allocation.ListRequests(ctx, repositories.RequestFilter{Status: &pending})
	require.Len(t, list, 3)
	assert.Equal(t, []int{5, 3, 1}, []int{list[0].Priority, list[1].Priority, list[2].Priority})
}
