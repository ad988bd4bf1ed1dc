package db

import (
	"context"
	"database/sql"
	"time"

	"kenshin-ingest/internal/model"
)

// LedgerStore is the adapter for xml_ledger, Stage G's step-7 upsert
// target, keyed by (zip_sha256, zip_inner_path_sha256).
type LedgerStore struct {
	conn *sql.DB
	cat  *Catalog
}

func NewLedgerStore(conn *sql.DB, cat *Catalog) *LedgerStore {
	return &LedgerStore{conn: conn, cat: cat}
}

func (s *LedgerStore) Upsert(ctx context.Context, l *model.XmlLedger, now time.Time) (int64, error) {
	var xsdValid interface{}
	switch l.XsdValid {
	case model.TriTrue:
		xsdValid = 1
	case model.TriFalse:
		xsdValid = 0
	default:
		xsdValid = nil
	}

	cols := []ColumnValue{
		{Name: "zip_sha256", Value: l.ZipSHA256, Key: true},
		{Name: "zip_inner_path_sha256", Value: l.ZipInnerPathSHA256, Key: true},
		{Name: "insurer_number", Value: nullableString(l.InsurerNumber)},
		{Name: "insurance_symbol", Value: nullableString(l.InsuranceSymbol)},
		{Name: "insurance_number", Value: nullableString(l.InsuranceNumber)},
		{Name: "insurance_branch", Value: nullableString(l.InsuranceBranch)},
		{Name: "birth_date", Value: l.BirthDate},
		{Name: "exam_date", Value: l.ExamDate},
		{Name: "gender_code", Value: nullableString(l.GenderCode)},
		{Name: "kana_name", Value: nullableString(l.KanaName)},
		{Name: "patient_name", Value: nullableString(l.PatientName)},
		{Name: "postal_code", Value: nullableString(l.PostalCode)},
		{Name: "address", Value: nullableString(l.Address)},
		{Name: "facility_code", Value: nullableString(l.FacilityCode)},
		{Name: "facility_name", Value: nullableString(l.FacilityName)},
		{Name: "category_code", Value: nullableString(l.CategoryCode)},
		{Name: "program_code", Value: nullableString(l.ProgramCode)},
		{Name: "guidance_code", Value: nullableString(l.GuidanceCode)},
		{Name: "metabo_code", Value: nullableString(l.MetaboCode)},
		{Name: "xsd_valid", Value: xsdValid},
		{Name: "error_content", Value: nullableString(l.ErrorContent)},
		{Name: "updated_at", Value: now},
	}
	if exists, err := s.exists(ctx, l.ZipSHA256, l.ZipInnerPathSHA256); err != nil {
		return 0, err
	} else if !exists {
		cols = append(cols, ColumnValue{Name: "created_at", Value: now})
	} else {
		cols = append(cols, ColumnValue{Name: "created_at", Value: now, Key: true})
	}

	return Upsert(ctx, s.conn, s.cat, "xml_ledger", "xml_ledger_id", cols)
}

func (s *LedgerStore) exists(ctx context.Context, zipSHA256, innerSHA256 string) (bool, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT xml_ledger_id FROM xml_ledger WHERE zip_sha256 = ? AND zip_inner_path_sha256 = ?`,
		zipSHA256, innerSHA256).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
