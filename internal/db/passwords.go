package db

import (
	"context"
	"database/sql"

	"kenshin-ingest/internal/model"
)

// PasswordStore is the read-only adapter for zip_passwords, consulted by
// internal/password's scope-priority resolver (§4.K).
type PasswordStore struct {
	conn *sql.DB
}

func NewPasswordStore(conn *sql.DB) *PasswordStore {
	return &PasswordStore{conn: conn}
}

// CandidatesFor returns every active candidate whose scope matches the
// given identifiers, ordered exactly per §4.K: scope priority (ZIP_SHA256
// 10, ZIP_NAME 20, FACILITY 30) first, then priority ASC, then id ASC.
func (s *PasswordStore) CandidatesFor(ctx context.Context, facilityCode, facilityFolderName, zipName, zipSHA256 string) ([]*model.PasswordCandidate, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT zip_password_id, scope_type, COALESCE(zip_sha256,''), COALESCE(zip_name,''),
		       COALESCE(facility_code,''), COALESCE(facility_folder_name,''), password_text, priority, is_active
		FROM zip_passwords
		WHERE is_active = 1 AND (
			(scope_type = 'ZIP_SHA256' AND zip_sha256 = ?) OR
			(scope_type = 'ZIP_NAME' AND zip_name = ?) OR
			(scope_type = 'FACILITY' AND (facility_code = ? OR facility_folder_name = ?))
		)
		ORDER BY
			CASE scope_type WHEN 'ZIP_SHA256' THEN 10 WHEN 'ZIP_NAME' THEN 20 WHEN 'FACILITY' THEN 30 ELSE 999 END ASC,
			priority ASC, zip_password_id ASC`,
		zipSHA256, zipName, facilityCode, facilityFolderName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PasswordCandidate
	for rows.Next() {
		c := &model.PasswordCandidate{}
		if err := rows.Scan(&c.ID, &c.Scope, &c.ZipSHA256, &c.ZipName, &c.FacilityCode,
			&c.FacilityFolderName, &c.PasswordText, &c.Priority, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
