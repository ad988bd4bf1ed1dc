package db

import (
	"context"
	"database/sql"
	"time"

	"kenshin-ingest/internal/model"
)

// XmlReceiptStore is the adapter for xml_receipts + xml_receipt_runs.
// Created by Stage F; the status/error/document_id triple is owned by
// Stage G, the items_* triple by Stage H.
type XmlReceiptStore struct {
	conn *sql.DB
	cat  *Catalog
}

func NewXmlReceiptStore(conn *sql.DB, cat *Catalog) *XmlReceiptStore {
	return &XmlReceiptStore{conn: conn, cat: cat}
}

func (s *XmlReceiptStore) FindBySHA256(ctx context.Context, xmlSHA256 string) (*model.XmlReceipt, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT xml_receipt_id, xml_sha256, zip_sha256, zip_inner_path, zip_inner_path_sha256,
		        file_size, file_mtime, COALESCE(facility_code,''), COALESCE(facility_name,''), status,
		        COALESCE(error_code,''), COALESCE(error_message,''), document_id,
		        items_extract_status
		 FROM xml_receipts WHERE xml_sha256 = ?`, xmlSHA256)
	return scanXmlReceipt(row)
}

func scanXmlReceipt(row *sql.Row) (*model.XmlReceipt, error) {
	r := &model.XmlReceipt{}
	var docID sql.NullString
	if err := row.Scan(&r.ID, &r.XmlSHA256, &r.ZipSHA256, &r.ZipInnerPath, &r.ZipInnerPathSHA256,
		&r.FileSize, &r.FileMtime, &r.FacilityCode, &r.FacilityName, &r.Status,
		&r.ErrorCode, &r.ErrorMessage, &docID, &r.ItemsExtractStatus); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if docID.Valid {
		r.DocumentID = &docID.String
	}
	return r, nil
}

// UpsertFromImport is Stage F's write (step 6): creates/refreshes the
// receipt's identity fields and leaves status at PENDING, never touching
// Stage G/H's owned columns on re-seen rows.
func (s *XmlReceiptStore) UpsertFromImport(ctx context.Context, r *model.XmlReceipt) (id int64, action model.RunAction, err error) {
	existing, err := s.FindBySHA256(ctx, r.XmlSHA256)
	if err != nil {
		return 0, "", err
	}
	action = model.ActionNew
	if existing != nil {
		action = model.ActionSeen
	}

	cols := []ColumnValue{
		{Name: "xml_sha256", Value: r.XmlSHA256, Key: true},
		{Name: "zip_sha256", Value: r.ZipSHA256},
		{Name: "zip_inner_path", Value: r.ZipInnerPath},
		{Name: "zip_inner_path_sha256", Value: r.ZipInnerPathSHA256},
		{Name: "file_size", Value: r.FileSize},
		{Name: "file_mtime", Value: r.FileMtime},
		{Name: "facility_code", Value: nullableString(r.FacilityCode)},
		{Name: "facility_name", Value: nullableString(r.FacilityName)},
	}
	if existing == nil {
		cols = append(cols, ColumnValue{Name: "status", Value: string(model.StatusPending)})
		cols = append(cols, ColumnValue{Name: "items_extract_status", Value: string(model.StatusPending)})
	} else {
		// leave status/items_extract_status untouched: mark as key so the
		// upsert builder omits them from the UPDATE SET list.
		cols = append(cols, ColumnValue{Name: "status", Value: string(existing.Status), Key: true})
		cols = append(cols, ColumnValue{Name: "items_extract_status", Value: string(existing.ItemsExtractStatus), Key: true})
	}

	id, err = Upsert(ctx, s.conn, s.cat, "xml_receipts", "xml_receipt_id", cols)
	if err != nil {
		return 0, "", err
	}
	return id, action, nil
}

func (s *XmlReceiptStore) RecordRun(ctx context.Context, runID, receiptID int64, xmlSHA256 string, action model.RunAction, message string, now time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO xml_receipt_runs (run_id, xml_sha256, xml_receipt_id, action, message, created_at) VALUES (?,?,?,?,?,?)`,
		runID, xmlSHA256, receiptID, string(action), message, now)
	return err
}

// SetWellformedError lets Stage F's optional well-formed pre-check flip a
// freshly inserted receipt straight to ERROR (§4.F step 6).
func (s *XmlReceiptStore) SetWellformedError(ctx context.Context, xmlSHA256, code, message string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE xml_receipts SET status='ERROR', error_code=?, error_message=? WHERE xml_sha256=?`,
		code, message, xmlSHA256)
	return err
}

// SetExtractResult is Stage G's owned-column write: status/error/document_id.
// status is guarded against the column's declared enum set (§4.L, §8.5).
func (s *XmlReceiptStore) SetExtractResult(ctx context.Context, xmlSHA256 string, status model.ReceiptStatus, code, message string, documentID *string, runID int64, extractedAt time.Time) error {
	val := s.cat.GuardEnum(ctx, "xml_receipts", "status", string(status))
	_, err := s.conn.ExecContext(ctx,
		`UPDATE xml_receipts SET status=?, error_code=?, error_message=?, document_id=?, extracted_run_id=?, extracted_at=? WHERE xml_sha256=?`,
		val, nullableString(code), nullableString(message), documentID, runID, extractedAt, xmlSHA256)
	return err
}

// SetItemsExtractResult is Stage H's owned-column write.
func (s *XmlReceiptStore) SetItemsExtractResult(ctx context.Context, xmlSHA256 string, status model.ReceiptStatus, runID int64, at time.Time) error {
	val := s.cat.GuardEnum(ctx, "xml_receipts", "items_extract_status", string(status))
	_, err := s.conn.ExecContext(ctx,
		`UPDATE xml_receipts SET items_extract_status=?, items_extracted_run_id=?, items_extracted_at=? WHERE xml_sha256=?`,
		val, runID, at, xmlSHA256)
	return err
}

// PendingBatch selects up to limit rows whose status matches targetStatus,
// oldest first (§4.G).
func (s *XmlReceiptStore) PendingBatch(ctx context.Context, targetStatus model.ReceiptStatus, limit int) ([]*model.XmlReceipt, error) {
	query := `SELECT xml_receipt_id, xml_sha256, zip_sha256, zip_inner_path, zip_inner_path_sha256,
	                 file_size, file_mtime, COALESCE(facility_code,''), COALESCE(facility_name,''), status,
	                 COALESCE(error_code,''), COALESCE(error_message,''), document_id, items_extract_status
	          FROM xml_receipts WHERE status = ? ORDER BY xml_receipt_id ASC`
	if limit > 0 {
		query += " LIMIT ?"
	}
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.conn.QueryContext(ctx, query, string(targetStatus), limit)
	} else {
		rows, err = s.conn.QueryContext(ctx, query, string(targetStatus))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.XmlReceipt
	for rows.Next() {
		r := &model.XmlReceipt{}
		var docID sql.NullString
		if err := rows.Scan(&r.ID, &r.XmlSHA256, &r.ZipSHA256, &r.ZipInnerPath, &r.ZipInnerPathSHA256,
			&r.FileSize, &r.FileMtime, &r.FacilityCode, &r.FacilityName, &r.Status,
			&r.ErrorCode, &r.ErrorMessage, &docID, &r.ItemsExtractStatus); err != nil {
			return nil, err
		}
		if docID.Valid {
			r.DocumentID = &docID.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ItemExtractBatch selects receipts whose header extraction already
// succeeded (status=OK) and whose item extraction is still pending.
func (s *XmlReceiptStore) ItemExtractBatch(ctx context.Context, limit int) ([]*model.XmlReceipt, error) {
	query := `SELECT xml_receipt_id, xml_sha256, zip_sha256, zip_inner_path, zip_inner_path_sha256,
	                 file_size, file_mtime, COALESCE(facility_code,''), COALESCE(facility_name,''), status,
	                 COALESCE(error_code,''), COALESCE(error_message,''), document_id, items_extract_status
	          FROM xml_receipts WHERE status = 'OK' AND items_extract_status = 'PENDING'
	          ORDER BY xml_receipt_id ASC`
	if limit > 0 {
		query += " LIMIT ?"
	}
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.conn.QueryContext(ctx, query, limit)
	} else {
		rows, err = s.conn.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.XmlReceipt
	for rows.Next() {
		r := &model.XmlReceipt{}
		var docID sql.NullString
		if err := rows.Scan(&r.ID, &r.XmlSHA256, &r.ZipSHA256, &r.ZipInnerPath, &r.ZipInnerPathSHA256,
			&r.FileSize, &r.FileMtime, &r.FacilityCode, &r.FacilityName, &r.Status,
			&r.ErrorCode, &r.ErrorMessage, &docID, &r.ItemsExtractStatus); err != nil {
			return nil, err
		}
		if docID.Valid {
			r.DocumentID = &docID.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
