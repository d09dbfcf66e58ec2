package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

var requestColumns = []interface{}{
	"id", "patient_ref", "ward_preference", "equipment_tag", "priority",
	"eta", "expected_discharge_at", "status", "assigned_bed_id",
	"reservation_expires_at", "denial_reason", "cancel_reason", "transfers",
	"created_at", "updated_at",
}

// GetRequest retrieves a request by ID
func (s *Store) GetRequest(ctx context.Context, id string) (*entities.AdmissionRequest, error) {
	query, args, err := s.q.Select(requestColumns...).
		From(tableRequests).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	req, err := scanRequest(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("admission request with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get admission request", err)
	}
	return req, nil
}

// ListRequests retrieves requests ordered by creation time
func (s *Store) ListRequests(ctx context.Context, filter repositories.RequestFilter) ([]*entities.AdmissionRequest, error) {
	ds := s.q.Select(requestColumns...).
		From(tableRequests).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc())
	if filter.Status != nil {
		ds = ds.Where(goqu.Ex{"status": string(*filter.Status)})
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list admission requests", err)
	}
	defer rows.Close()

	var out []*entities.AdmissionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan admission request", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate admission requests", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entities.AdmissionRequest, error) {
	req := &entities.AdmissionRequest{}
	var status, transfers string
	var equipment, assignedBed, denialReason, cancelReason sql.NullString
	var expectedDischarge, reservationExpires sql.NullTime
	err := row.Scan(
		&req.ID,
		&req.PatientRef,
		&req.WardPreference,
		&equipment,
		&req.Priority,
		&req.ETA,
		&expectedDischarge,
		&status,
		&assignedBed,
		&reservationExpires,
		&denialReason,
		&cancelReason,
		&transfers,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = entities.RequestStatus(status)
	req.EquipmentTag = stringPtr(equipment)
	req.AssignedBedID = stringPtr(assignedBed)
	req.DenialReason = stringPtr(denialReason)
	req.CancelReason = stringPtr(cancelReason)
	req.ExpectedDischargeAt = timePtr(expectedDischarge)
	req.ReservationExpiresAt = timePtr(reservationExpires)
	req.ETA = req.ETA.UTC()
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()

	if transfers != "" {
		if err := json.Unmarshal([]byte(transfers), &req.Transfers); err != nil {
			return nil, fmt.Errorf("decode transfers of %s: %w", req.ID, err)
		}
	}
	return req, nil
}

func saveRequest(ctx context.Context, tx *goqu.TxDatabase, req *entities.AdmissionRequest) error {
	transfers := req.Transfers
	if transfers == nil {
		transfers = []entities.TransferRecord{}
	}
	encoded, err := json.Marshal(transfers)
	if err != nil {
		return fmt.Errorf("encode transfers of %s: %w", req.ID, err)
	}

	rec := goqu.Record{
		"id":                     req.ID,
		"patient_ref":            req.PatientRef,
		"ward_preference":        req.WardPreference,
		"equipment_tag":          nullString(req.EquipmentTag),
		"priority":               req.Priority,
		"eta":                    req.ETA.UTC(),
		"expected_discharge_at":  nullTime(req.ExpectedDischargeAt),
		"status":                 string(req.Status),
		"assigned_bed_id":        nullString(req.AssignedBedID),
		"reservation_expires_at": nullTime(req.ReservationExpiresAt),
		"denial_reason":          nullString(req.DenialReason),
		"cancel_reason":          nullString(req.CancelReason),
		"transfers":              string(encoded),
		"created_at":             req.CreatedAt.UTC(),
		"updated_at":             req.UpdatedAt.UTC(),
	}
	if _, err := upsert(tx, tableRequests, "id", rec).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("save admission request %s: %w", req.ID, err)
	}
	return nil
}
