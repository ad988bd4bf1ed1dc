package db

import (
	"context"
	"database/sql"
	"time"

	"kenshin-ingest/internal/model"
)

// ZipReceiptStore is the adapter for zip_receipts + zip_receipt_runs,
// owned entirely by Stage F.
type ZipReceiptStore struct {
	conn *sql.DB
	cat  *Catalog
}

func NewZipReceiptStore(conn *sql.DB, cat *Catalog) *ZipReceiptStore {
	return &ZipReceiptStore{conn: conn, cat: cat}
}

func (s *ZipReceiptStore) FindBySHA256(ctx context.Context, zipSHA256 string) (*model.ZipReceipt, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT zip_receipt_id, zip_sha256, zip_path, zip_name, facility_code, facility_folder_name,
		        facility_name, structure_status, COALESCE(error_code,''), COALESCE(structure_message,''),
		        data_dir_count, data_xml_count, first_seen_run_id
		 FROM zip_receipts WHERE zip_sha256 = ?`, zipSHA256)
	r := &model.ZipReceipt{}
	if err := row.Scan(&r.ID, &r.ZipSHA256, &r.ZipPath, &r.ZipName, &r.FacilityCode, &r.FacilityFolderName,
		&r.FacilityName, &r.StructureStatus, &r.ErrorCode, &r.StructureMessage, &r.DataDirCount, &r.DataXMLCount,
		&r.FirstSeenRunID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// Upsert writes the full receipt and returns (id, action) where action is
// NEW on first insert, SEEN on every subsequent call for the same
// zip_sha256 (§4.F step 1/5, round-trip law in §8).
func (s *ZipReceiptStore) Upsert(ctx context.Context, r *model.ZipReceipt, runID int64, now time.Time) (id int64, action model.RunAction, err error) {
	existing, err := s.FindBySHA256(ctx, r.ZipSHA256)
	if err != nil {
		return 0, "", err
	}
	action = model.ActionNew
	if existing != nil {
		action = model.ActionSeen
	}

	structureStatus := s.cat.GuardEnum(ctx, "zip_receipts", "structure_status", string(r.StructureStatus))
	cols := []ColumnValue{
		{Name: "zip_sha256", Value: r.ZipSHA256, Key: true},
		{Name: "zip_path", Value: r.ZipPath},
		{Name: "zip_name", Value: r.ZipName},
		{Name: "facility_code", Value: nullableString(r.FacilityCode)},
		{Name: "facility_folder_name", Value: nullableString(r.FacilityFolderName)},
		{Name: "facility_name", Value: nullableString(r.FacilityName)},
		{Name: "structure_status", Value: structureStatus},
		{Name: "error_code", Value: nullableString(r.ErrorCode)},
		{Name: "structure_message", Value: nullableString(r.StructureMessage)},
		{Name: "data_dir_count", Value: r.DataDirCount},
		{Name: "data_xml_count", Value: r.DataXMLCount},
		{Name: "last_seen_run_id", Value: runID},
		{Name: "updated_at", Value: now},
	}
	if existing == nil {
		cols = append(cols, ColumnValue{Name: "first_seen_run_id", Value: runID}, ColumnValue{Name: "created_at", Value: now})
	} else {
		cols = append(cols, ColumnValue{Name: "first_seen_run_id", Value: existing.FirstSeenRunID, Key: true})
	}

	id, err = Upsert(ctx, s.conn, s.cat, "zip_receipts", "zip_receipt_id", cols)
	if err != nil {
		return 0, "", err
	}
	return id, action, nil
}

func (s *ZipReceiptStore) RecordRun(ctx context.Context, runID, receiptID int64, zipSHA256 string, action model.RunAction, message string, now time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO zip_receipt_runs (run_id, zip_receipt_id, zip_sha256, action, message, seen_at) VALUES (?,?,?,?,?,?)`,
		runID, receiptID, zipSHA256, string(action), message, now)
	return err
}
