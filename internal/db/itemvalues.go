package db

import (
	"context"
	"database/sql"
	"time"

	"kenshin-ingest/internal/model"
)

// ItemValueStore is the adapter for xml_item_values (Stage H) and
// exam_result_item_values (Stage I's projection).
type ItemValueStore struct {
	conn *sql.DB
	cat  *Catalog
}

func NewItemValueStore(conn *sql.DB, cat *Catalog) *ItemValueStore {
	return &ItemValueStore{conn: conn, cat: cat}
}

// Upsert writes one xml_item_values row and ensures a RAW
// exam_result_item_values projection row exists for it, keyed by
// (xml_sha256, namecode, occurrence_no).
func (s *ItemValueStore) Upsert(ctx context.Context, v *model.XmlItemValue, now time.Time) (int64, error) {
	cols := []ColumnValue{
		{Name: "xml_sha256", Value: v.XmlSHA256, Key: true},
		{Name: "namecode", Value: v.Namecode, Key: true},
		{Name: "occurrence_no", Value: v.OccurrenceNo, Key: true},
		{Name: "value_raw", Value: nullableString(v.ValueRaw)},
		{Name: "value_type", Value: nullableString(v.ValueType)},
		{Name: "unit", Value: nullableString(v.Unit)},
		{Name: "code_system", Value: nullableString(v.CodeSystem)},
		{Name: "code_value", Value: nullableString(v.CodeValue)},
		{Name: "code_display", Value: nullableString(v.CodeDisplay)},
		{Name: "created_at", Value: now},
	}
	id, err := Upsert(ctx, s.conn, s.cat, "xml_item_values", "item_value_id", cols)
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO exam_result_item_values (item_value_id, normalize_status) VALUES (?, 'RAW')
		 ON DUPLICATE KEY UPDATE exam_result_id = LAST_INSERT_ID(exam_result_id)`, id); err != nil {
		return 0, err
	}
	return id, nil
}

// NormalizeTarget is one row selected by Stage I: the raw item value plus
// its item master's declared type, joined so the normalizer doesn't issue
// a second round trip per row.
type NormalizeTarget struct {
	ExamResultID  int64
	ItemValueID   int64
	Namecode      string
	ValueRaw      string
	XMLValueType  string
	ResultCodeOID string
}

// NormalizeBatch selects item-value rows with normalize_status=RAW and
// empty value, joined against item_master for the declared value type.
func (s *ItemValueStore) NormalizeBatch(ctx context.Context, limit int) ([]*NormalizeTarget, error) {
	query := `SELECT e.exam_result_id, e.item_value_id, v.namecode, COALESCE(v.value_raw,''),
	                 COALESCE(m.xml_value_type, v.value_type, ''), COALESCE(m.result_code_oid, '')
	          FROM exam_result_item_values e
	          JOIN xml_item_values v ON v.item_value_id = e.item_value_id
	          LEFT JOIN item_master m ON m.namecode = v.namecode
	          WHERE e.normalize_status = 'RAW' AND (e.value IS NULL OR e.value = '')
	          ORDER BY e.exam_result_id ASC`
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

	var out []*NormalizeTarget
	for rows.Next() {
		t := &NormalizeTarget{}
		if err := rows.Scan(&t.ExamResultID, &t.ItemValueID, &t.Namecode, &t.ValueRaw, &t.XMLValueType, &t.ResultCodeOID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *ItemValueStore) SetNormalizeOK(ctx context.Context, examResultID int64, value string, at time.Time) error {
	status := s.cat.GuardEnum(ctx, "exam_result_item_values", "normalize_status", "OK")
	_, err := s.conn.ExecContext(ctx,
		`UPDATE exam_result_item_values SET value=?, normalize_status=?, normalized_at=?, normalize_error=NULL WHERE exam_result_id=?`,
		value, status, at, examResultID)
	return err
}

func (s *ItemValueStore) SetNormalizeError(ctx context.Context, examResultID int64, reason string) error {
	status := s.cat.GuardEnum(ctx, "exam_result_item_values", "normalize_status", "ERROR")
	_, err := s.conn.ExecContext(ctx,
		`UPDATE exam_result_item_values SET normalize_status=?, normalize_error=? WHERE exam_result_id=?`,
		status, reason, examResultID)
	return err
}
