package db

import (
	"context"
	"database/sql"
	"time"

	"kenshin-ingest/internal/model"
)

// ObservationStore is the adapter for shared_files + shared_folder_aliases,
// owned by Stage A (create/refresh) and mutated under the ownership rules
// of D/E (judgement, stage_status) elsewhere.
type ObservationStore struct {
	conn *sql.DB
	cat  *Catalog
}

func NewObservationStore(conn *sql.DB, cat *Catalog) *ObservationStore {
	return &ObservationStore{conn: conn, cat: cat}
}

// UpsertScan is Stage A's upsert: creates the row on first sight, and on
// re-scan refreshes last_seen_at/mtime/file_size while leaving sha256,
// manual_judgement, auto_judgement, stage_status and first_seen_at
// untouched by omitting them from the UPDATE-eligible column set entirely
// when not newly known.
func (s *ObservationStore) UpsertScan(ctx context.Context, o *model.ObservationRow) (int64, error) {
	cols := []ColumnValue{
		{Name: "path_hash", Value: o.PathHash, Key: true},
		{Name: "path", Value: o.Path},
		{Name: "file_name", Value: o.FileName},
		{Name: "ext", Value: o.Ext},
		{Name: "file_size", Value: o.FileSize},
		{Name: "mtime", Value: o.Mtime},
		{Name: "src_folder_raw", Value: nullableString(o.SrcFolderRaw)},
		{Name: "facility_hint", Value: nullableString(o.FacilityHint)},
		// auto_judgement and stage_status belong to Stages D/E once the row
		// exists: insert-only, kept out of the UPDATE SET list via Key.
		{Name: "auto_judgement", Value: string(model.JudgementUnknown), Key: true},
		{Name: "stage_status", Value: string(model.StageNew), Key: true},
		{Name: "last_seen_at", Value: o.LastSeenAt},
	}
	// first_seen_at only forced on insert: the ON DUPLICATE KEY UPDATE
	// clause must never touch it, so it is marked a key column even though
	// it isn't part of the unique index — that simply keeps it out of the
	// generated UPDATE SET list.
	cols = append(cols, ColumnValue{Name: "first_seen_at", Value: o.FirstSeenAt, Key: true})
	if o.SHA256 != "" {
		cols = append(cols, ColumnValue{Name: "sha256", Value: o.SHA256})
	}
	return Upsert(ctx, s.conn, s.cat, "shared_files", "shared_file_id", cols)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// SetContentHash is Stage B's write: sets sha256 for a row, leaving
// everything else untouched.
func (s *ObservationStore) SetContentHash(ctx context.Context, pathHash, sha256 string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE shared_files SET sha256 = ? WHERE path_hash = ?`, sha256, pathHash)
	return err
}

// SetZipProbe is Stage C's write: has_xml/xml_count/checked_at only.
func (s *ObservationStore) SetZipProbe(ctx context.Context, pathHash string, hasXML model.TriState, count int, checkedAt time.Time) error {
	var hasXMLVal interface{}
	switch hasXML {
	case model.TriTrue:
		hasXMLVal = 1
	case model.TriFalse:
		hasXMLVal = 0
	default:
		hasXMLVal = nil
	}
	_, err := s.conn.ExecContext(ctx,
		`UPDATE shared_files SET zip_has_xml = ?, zip_xml_count = ?, zip_xml_checked_at = ? WHERE path_hash = ?`,
		hasXMLVal, count, checkedAt, pathHash)
	return err
}

// SetAutoJudgement is Stage D's write: auto_judgement only, never touches
// manual_judgement.
func (s *ObservationStore) SetAutoJudgement(ctx context.Context, pathHash string, j model.Judgement) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE shared_files SET auto_judgement = ? WHERE path_hash = ?`, string(j), pathHash)
	return err
}

// SetStageStatus is Stage E's write: stage_status only (notes are
// run-level, per §4.J, and are not stored on the row).
func (s *ObservationStore) SetStageStatus(ctx context.Context, pathHash string, status model.StageStatus) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE shared_files SET stage_status = ? WHERE path_hash = ?`, string(status), pathHash)
	return err
}

// ContentHashBatch returns up to limit rows with ext='zip' and sha256 null/empty.
func (s *ObservationStore) ContentHashBatch(ctx context.Context, limit int) ([]*model.ObservationRow, error) {
	query := `SELECT path_hash, path, file_name, ext, file_size, mtime
	          FROM shared_files WHERE ext = 'zip' AND (sha256 IS NULL OR sha256 = '')
	          ORDER BY shared_file_id ASC`
	if limit > 0 {
		query += " LIMIT ?"
		return scanObservations(ctx, s.conn, query, limit)
	}
	return scanObservations(ctx, s.conn, query)
}

// AutoJudgeBatch returns NEW, zip, hashed, unjudged-by-human rows.
func (s *ObservationStore) AutoJudgeBatch(ctx context.Context, limit int) ([]*model.ObservationRow, error) {
	query := `SELECT path_hash, path, file_name, ext, file_size, mtime, sha256,
	                 COALESCE(zip_has_xml, -1), zip_xml_count, auto_judgement
	          FROM shared_files
	          WHERE stage_status = 'NEW' AND ext = 'zip' AND sha256 IS NOT NULL AND sha256 <> ''
	            AND manual_judgement IS NULL
	          ORDER BY shared_file_id ASC`
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

	var out []*model.ObservationRow
	for rows.Next() {
		o := &model.ObservationRow{}
		var tri int
		if err := rows.Scan(&o.PathHash, &o.Path, &o.FileName, &o.Ext, &o.FileSize, &o.Mtime,
			&o.SHA256, &tri, &o.ZipXMLCount, &o.AutoJudgement); err != nil {
			return nil, err
		}
		switch tri {
		case 1:
			o.ZipHasXML = model.TriTrue
		case 0:
			o.ZipHasXML = model.TriFalse
		default:
			o.ZipHasXML = model.TriUnknown
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// StageCopyCandidates returns rows eligible for Stage-Copy per §4.E's
// precondition list (everything except the "no ZipReceipt yet" and "active
// alias exists" checks, which the stage itself verifies per-row since they
// need joins the caller is better positioned to reason about).
func (s *ObservationStore) StageCopyCandidates(ctx context.Context, limit int) ([]*model.ObservationRow, error) {
	query := `SELECT sf.path_hash, sf.path, sf.file_name, sf.ext, sf.file_size, sf.mtime, sf.sha256,
	                 sf.src_folder_raw, COALESCE(sf.manual_judgement, sf.auto_judgement)
	          FROM shared_files sf
	          WHERE sf.stage_status = 'NEW' AND sf.ext = 'zip'
	            AND sf.sha256 IS NOT NULL AND sf.sha256 <> ''
	            AND sf.zip_has_xml = 1
	            AND COALESCE(sf.manual_judgement, sf.auto_judgement) = 'KENSHIN'
	          ORDER BY sf.shared_file_id ASC`
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

	var out []*model.ObservationRow
	for rows.Next() {
		o := &model.ObservationRow{}
		var effective string
		if err := rows.Scan(&o.PathHash, &o.Path, &o.FileName, &o.Ext, &o.FileSize, &o.Mtime,
			&o.SHA256, &o.SrcFolderRaw, &effective); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanObservations(ctx context.Context, conn *sql.DB, query string, args ...interface{}) ([]*model.ObservationRow, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ObservationRow
	for rows.Next() {
		o := &model.ObservationRow{}
		if err := rows.Scan(&o.PathHash, &o.Path, &o.FileName, &o.Ext, &o.FileSize, &o.Mtime); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ActiveAlias looks up an active destination folder for a raw source
// folder name, gating Stage-Copy.
func (s *ObservationStore) ActiveAlias(ctx context.Context, srcFolderRaw string) (*model.FolderAlias, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT src_folder_raw, dst_folder_norm, is_active FROM shared_folder_aliases
		 WHERE src_folder_raw = ? AND is_active = 1`, srcFolderRaw)
	a := &model.FolderAlias{}
	if err := row.Scan(&a.SrcFolderRaw, &a.DstFolderNorm, &a.IsActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}
