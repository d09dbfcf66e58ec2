package database_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bedflow/internal/adapters/database"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

var at = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) (*database.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewStore(db, database.DialectPostgres), mock
}

func fragment(s string) string {
	return regexp.QuoteMeta(s)
}

func TestStore_ListWardsAttachesMembership(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(fragment(`FROM "wards" ORDER BY "id" ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "ward_type", "capacity", "updated_at"}).
			AddRow("gen", "General", nil, 2, at).
			AddRow("icu", "ICU", "critical", 1, at))
	mock.ExpectQuery(fragment(`SELECT "id", "ward_id" FROM "beds"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ward_id"}).
			AddRow("g1", "gen").
			AddRow("g2", "gen").
			AddRow("i1", "icu"))

	wards, err := store.ListWards(context.Background())
	require.NoError(t, err)
	require.Len(t, wards, 2)

	assert.Equal(t, []string{"g1", "g2"}, wards[0].BedIDs)
	assert.Nil(t, wards[0].WardType)
	assert.Equal(t, "critical", *wards[1].WardType)
	assert.Equal(t, []string{"i1"}, wards[1].BedIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListBedsMapsNullableColumns(t *testing.T) {
	store, mock := setupStore(t)

	cols := []string{"id", "ward_id", "label", "status", "equipment_tag", "patient_ref", "request_id", "status_changed_at"}
	mock.ExpectQuery(fragment(`FROM "beds" ORDER BY "id" ASC`)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("g1", "gen", "Bed 1", "available", nil, nil, nil, at).
			AddRow("g2", "gen", "Bed 2", "occupied", "vent", "p-1", "r-1", at))

	beds, err := store.ListBeds(context.Background())
	require.NoError(t, err)
	require.Len(t, beds, 2)

	assert.Equal(t, entities.BedStatusAvailable, beds[0].Status)
	assert.Nil(t, beds[0].PatientRef)
	assert.Equal(t, entities.BedStatusOccupied, beds[1].Status)
	assert.Equal(t, "vent", entities.StringValue(beds[1].EquipmentTag))
	assert.Equal(t, "p-1", entities.StringValue(beds[1].PatientRef))
	assert.Equal(t, "r-1", entities.StringValue(beds[1].RequestID))
	assert.True(t, beds[1].OccupantConsistent())
}

func TestStore_CommitWritesInOneTransaction(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(fragment(`INSERT INTO "beds"`) + `.*` + fragment(`ON CONFLICT (id) DO UPDATE`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(fragment(`INSERT INTO "admission_requests"`) + `.*` + fragment(`'[]'`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Commit(context.Background(), repositories.Changeset{
		Beds: []*entities.Bed{{
			ID:              "g1",
			WardID:          "gen",
			Status:          entities.BedStatusOccupied,
			PatientRef:      entities.StringPtr("p-1"),
			RequestID:       entities.StringPtr("r-1"),
			StatusChangedAt: at,
		}},
		Requests: []*entities.AdmissionRequest{{
			ID:             "r-1",
			PatientRef:     "p-1",
			WardPreference: "gen",
			Status:         entities.RequestStatusApproved,
			AssignedBedID:  entities.StringPtr("g1"),
			ETA:            at,
			CreatedAt:      at,
			UpdatedAt:      at,
		}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitRollsBackOnFailure(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(fragment(`INSERT INTO "beds"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(fragment(`INSERT INTO "beds"`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Commit(context.Background(), repositories.Changeset{
		Beds: []*entities.Bed{
			{ID: "g1", WardID: "gen", Status: entities.BedStatusCleaning, StatusChangedAt: at},
			{ID: "g2", WardID: "gen", Status: entities.BedStatusAvailable, StatusChangedAt: at},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeInternal, apperrors.TypeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitSkipsEmptyChangeset(t *testing.T) {
	store, mock := setupStore(t)

	require.NoError(t, store.Commit(context.Background(), repositories.Changeset{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplaceWardDeletesDepartedBeds(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(fragment(`INSERT INTO "wards"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(fragment(`DELETE FROM "beds" WHERE (("ward_id" = 'gen') AND ("id" NOT IN ('g1', 'g2')))`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(fragment(`INSERT INTO "beds"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(fragment(`INSERT INTO "beds"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ReplaceWard(context.Background(),
		&entities.Ward{ID: "gen", Name: "General", Capacity: 2, UpdatedAt: at},
		[]*entities.Bed{
			{ID: "g1", WardID: "gen", Status: entities.BedStatusAvailable, StatusChangedAt: at},
			{ID: "g2", WardID: "gen", Status: entities.BedStatusAvailable, StatusChangedAt: at},
		})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplaceWardWithNoBeds(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(fragment(`INSERT INTO "wards"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(fragment(`DELETE FROM "beds" WHERE ("ward_id" = 'empty')`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.ReplaceWard(context.Background(), &entities.Ward{ID: "empty", Name: "Empty", UpdatedAt: at}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "patient_ref", "ward_preference", "equipment_tag", "priority",
		"eta", "expected_discharge_at", "status", "assigned_bed_id",
		"reservation_expires_at", "denial_reason", "cancel_reason", "transfers",
		"created_at", "updated_at",
	})
}

func TestStore_GetRequestDecodesTransfers(t *testing.T) {
	store, mock := setupStore(t)

	expires := at.Add(2 * time.Hour)
	mock.ExpectQuery(fragment(`FROM "admission_requests" WHERE ("id" = 'r-1')`)).
		WillReturnRows(requestRows().AddRow(
			"r-1", "p-1", "icu", "vent", 3,
			at, nil, "approved", "i2",
			expires, nil, nil, `[{"from_bed_id":"i1","to_bed_id":"i2","reason":"upgrade","at":"2026-03-10T10:00:00Z"}]`,
			at, at,
		))

	req, err := store.GetRequest(context.Background(), "r-1")
	require.NoError(t, err)

	assert.Equal(t, entities.RequestStatusApproved, req.Status)
	assert.Equal(t, "vent", req.Equipment())
	assert.Equal(t, 3, req.Priority)
	require.NotNil(t, req.ReservationExpiresAt)
	assert.True(t, expires.Equal(*req.ReservationExpiresAt))
	assert.Nil(t, req.ExpectedDischargeAt)
	require.Len(t, req.Transfers, 1)
	assert.Equal(t, "i1", req.Transfers[0].FromBedID)
	assert.Equal(t, "upgrade", req.Transfers[0].Reason)
}

func TestStore_GetRequestNotFound(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(fragment(`FROM "admission_requests"`)).WillReturnRows(requestRows())

	_, err := store.GetRequest(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_ListRequestsFiltersByStatus(t *testing.T) {
	store, mock := setupStore(t)

	status := entities.RequestStatusPending
	mock.ExpectQuery(fragment(`WHERE ("status" = 'pending') ORDER BY "created_at" ASC, "id" ASC LIMIT 5`)).
		WillReturnRows(requestRows().
			AddRow("r-1", "p-1", "gen", nil, 0, at, nil, "pending", nil, nil, nil, nil, "[]", at, at))

	reqs, err := store.ListRequests(context.Background(), repositories.RequestFilter{Status: &status, Limit: 5})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Transfers)
	assert.Nil(t, reqs[0].AssignedBedID)
}

func TestStore_SaveDailyRecordUpsertsByDay(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(fragment(`INSERT INTO "daily_records"`) + `.*` + fragment(`'2026-03-10'`) + `.*` + fragment(`ON CONFLICT (day) DO UPDATE`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveDailyRecord(context.Background(), &entities.DailyRecord{
		Date:     at,
		Wards:    map[string]entities.OccupancyStats{"gen": {Total: 2, Occupied: 1, OccupancyRate: 50}},
		Hospital: entities.OccupancyStats{Total: 2, Occupied: 1, OccupancyRate: 50},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListDailyRecordsDecodesDocuments(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(fragment(`WHERE ("day" BETWEEN '2026-03-03' AND '2026-03-10') ORDER BY "day" ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"day", "wards", "hospital", "snapshots"}).
			AddRow("2026-03-09",
				`{"gen":{"total":2,"occupied":1,"occupancy_rate":50}}`,
				`{"total":2,"occupied":1,"occupancy_rate":50}`,
				`[{"timestamp":"2026-03-09T09:00:00Z","wards":{},"hospital":{"total":2}}]`))

	recs, err := store.ListDailyRecords(context.Background(), at.AddDate(0, 0, -7), at)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), recs[0].Date)
	assert.Equal(t, 50.0, recs[0].Wards["gen"].OccupancyRate)
	assert.Equal(t, 1, recs[0].Hospital.Occupied)
	require.Len(t, recs[0].Snapshots, 1)
	assert.Equal(t, 2, recs[0].Snapshots[0].Hospital.Total)
}
