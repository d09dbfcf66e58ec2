package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// SaveDailyRecord stores a folded day; an existing record for the same date is replaced.
// Stats and snapshots are stored as JSON documents.
func (s *Store) SaveDailyRecord(ctx context.Context, record *entities.DailyRecord) error {
	defer s.observe(ctx, "save_daily_record", time.Now())

	wards, err := json.Marshal(record.Wards)
	if err != nil {
		return apperrors.NewInternalError("failed to encode ward stats", err)
	}
	hospital, err := json.Marshal(record.Hospital)
	if err != nil {
		return apperrors.NewInternalError("failed to encode hospital stats", err)
	}
	snapshots, err := json.Marshal(record.Snapshots)
	if err != nil {
		return apperrors.NewInternalError("failed to encode snapshots", err)
	}

	day := entities.DayStart(record.Date).Format(dailyRecordDateFmt)
	err = s.withTx(ctx, func(tx *goqu.TxDatabase) error {
		rec := goqu.Record{
			"day":       day,
			"wards":     string(wards),
			"hospital":  string(hospital),
			"snapshots": string(snapshots),
		}
		_, err := upsert(tx, tableDailyRecords, "day", rec).Executor().ExecContext(ctx)
		return err
	})
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to save daily record %s", day), err)
	}
	return nil
}

// ListDailyRecords returns records with from <= date <= to ordered by date
func (s *Store) ListDailyRecords(ctx context.Context, from, to time.Time) ([]*entities.DailyRecord, error) {
	defer s.observe(ctx, "list_daily_records", time.Now())

	query, args, err := s.q.Select("day", "wards", "hospital", "snapshots").
		From(tableDailyRecords).
		Where(goqu.C("day").Between(goqu.Range(
			entities.DayStart(from).Format(dailyRecordDateFmt),
			entities.DayStart(to).Format(dailyRecordDateFmt),
		))).
		Order(goqu.I("day").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list daily records", err)
	}
	defer rows.Close()

	var out []*entities.DailyRecord
	for rows.Next() {
		var day, wards, hospital, snapshots string
		if err := rows.Scan(&day, &wards, &hospital, &snapshots); err != nil {
			return nil, apperrors.NewInternalError("failed to scan daily record", err)
		}

		date, err := time.ParseInLocation(dailyRecordDateFmt, day, time.UTC)
		if err != nil {
			return nil, apperrors.NewInternalError(fmt.Sprintf("invalid daily record date %q", day), err)
		}
		rec := &entities.DailyRecord{Date: date}
		if err := json.Unmarshal([]byte(wards), &rec.Wards); err != nil {
			return nil, apperrors.NewInternalError("failed to decode ward stats", err)
		}
		if err := json.Unmarshal([]byte(hospital), &rec.Hospital); err != nil {
			return nil, apperrors.NewInternalError("failed to decode hospital stats", err)
		}
		if err := json.Unmarshal([]byte(snapshots), &rec.Snapshots); err != nil {
			return nil, apperrors.NewInternalError("failed to decode snapshots", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate daily records", err)
	}
	return out, nil
}
