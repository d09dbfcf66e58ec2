package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

var bedColumns = []interface{}{
	"id", "ward_id", "label", "status", "equipment_tag",
	"patient_ref", "request_id", "status_changed_at",
}

// ListWards retrieves every ward with its member bed IDs
func (s *Store) ListWards(ctx context.Context) ([]*entities.Ward, error) {
	query, args, err := s.q.Select("id", "name", "ward_type", "capacity", "updated_at").
		From(tableWards).
		Order(goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list wards", err)
	}
	defer rows.Close()

	var wards []*entities.Ward
	byID := make(map[string]*entities.Ward)
	for rows.Next() {
		ward := &entities.Ward{}
		var wardType sql.NullString
		if err := rows.Scan(&ward.ID, &ward.Name, &wardType, &ward.Capacity, &ward.UpdatedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan ward", err)
		}
		ward.WardType = stringPtr(wardType)
		ward.UpdatedAt = ward.UpdatedAt.UTC()
		ward.BedIDs = []string{}
		wards = append(wards, ward)
		byID[ward.ID] = ward
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate wards", err)
	}

	members, err := s.bedMembership(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if ward, ok := byID[m.wardID]; ok {
			ward.BedIDs = append(ward.BedIDs, m.bedID)
		}
	}
	return wards, nil
}

type membership struct {
	bedID  string
	wardID string
}

func (s *Store) bedMembership(ctx context.Context) ([]membership, error) {
	query, args, err := s.q.Select("id", "ward_id").
		From(tableBeds).
		Order(goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list bed membership", err)
	}
	defer rows.Close()

	var out []membership
	for rows.Next() {
		var m membership
		if err := rows.Scan(&m.bedID, &m.wardID); err != nil {
			return nil, apperrors.NewInternalError("failed to scan bed membership", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceWard stores the ward and its complete bed membership in one transaction.
// Beds that left the ward are deleted.
func (s *Store) ReplaceWard(ctx context.Context, ward *entities.Ward, beds []*entities.Bed) error {
	defer s.observe(ctx, "replace_ward", time.Now())

	err := s.withTx(ctx, func(tx *goqu.TxDatabase) error {
		rec := goqu.Record{
			"id":         ward.ID,
			"name":       ward.Name,
			"ward_type":  nullString(ward.WardType),
			"capacity":   ward.Capacity,
			"updated_at": ward.UpdatedAt.UTC(),
		}
		if _, err := upsert(tx, tableWards, "id", rec).Executor().ExecContext(ctx); err != nil {
			return fmt.Errorf("upsert ward: %w", err)
		}

		keep := make([]string, 0, len(beds))
		for _, bed := range beds {
			keep = append(keep, bed.ID)
		}
		stale := tx.Delete(tableBeds).Where(goqu.Ex{"ward_id": ward.ID})
		if len(keep) > 0 {
			stale = stale.Where(goqu.C("id").NotIn(keep))
		}
		if _, err := stale.Executor().ExecContext(ctx); err != nil {
			return fmt.Errorf("delete departed beds: %w", err)
		}

		for _, bed := range beds {
			if err := saveBed(ctx, tx, bed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to replace ward %s", ward.ID), err)
	}
	return nil
}

// ListBeds retrieves every bed
func (s *Store) ListBeds(ctx context.Context) ([]*entities.Bed, error) {
	query, args, err := s.q.Select(bedColumns...).
		From(tableBeds).
		Order(goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list beds", err)
	}
	defer rows.Close()

	var beds []*entities.Bed
	for rows.Next() {
		bed := &entities.Bed{}
		var status string
		var equipment, patient, requestID sql.NullString
		if err := rows.Scan(
			&bed.ID,
			&bed.WardID,
			&bed.Label,
			&status,
			&equipment,
			&patient,
			&requestID,
			&bed.StatusChangedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan bed", err)
		}
		bed.Status = entities.BedStatus(status)
		bed.EquipmentTag = stringPtr(equipment)
		bed.PatientRef = stringPtr(patient)
		bed.RequestID = stringPtr(requestID)
		bed.StatusChangedAt = bed.StatusChangedAt.UTC()
		beds = append(beds, bed)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate beds", err)
	}
	return beds, nil
}

// Commit writes beds and requests in one transaction
func (s *Store) Commit(ctx context.Context, changes repositories.Changeset) error {
	if changes.Empty() {
		return nil
	}
	defer s.observe(ctx, "commit", time.Now())

	err := s.withTx(ctx, func(tx *goqu.TxDatabase) error {
		for _, bed := range changes.Beds {
			if err := saveBed(ctx, tx, bed); err != nil {
				return err
			}
		}
		for _, req := range changes.Requests {
			if err := saveRequest(ctx, tx, req); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewInternalError("failed to commit changes", err)
	}
	return nil
}

func saveBed(ctx context.Context, tx *goqu.TxDatabase, bed *entities.Bed) error {
	rec := goqu.Record{
		"id":                bed.ID,
		"ward_id":           bed.WardID,
		"label":             bed.Label,
		"status":            string(bed.Status),
		"equipment_tag":     nullString(bed.EquipmentTag),
		"patient_ref":       nullString(bed.PatientRef),
		"request_id":        nullString(bed.RequestID),
		"status_changed_at": bed.StatusChangedAt.UTC(),
	}
	if _, err := upsert(tx, tableBeds, "id", rec).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("save bed %s: %w", bed.ID, err)
	}
	return nil
}
