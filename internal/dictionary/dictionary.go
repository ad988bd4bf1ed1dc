// Package dictionary is a read-only adapter over item_master and
// norm_variants, the two lookup tables neither Stage H nor Stage I ever
// write to (they're maintained out-of-band by the catalog team).
package dictionary

import (
	"context"
	"database/sql"

	"kenshin-ingest/internal/model"
)

type Dictionary struct {
	conn *sql.DB
}

func New(conn *sql.DB) *Dictionary {
	return &Dictionary{conn: conn}
}

// ItemMaster looks up a single namecode's extraction/typing rule. Returns
// nil, nil when the namecode is unknown to the dictionary — callers treat
// that as "use the node-inferred type" rather than an error.
func (d *Dictionary) ItemMaster(ctx context.Context, namecode string) (*model.ItemMaster, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT namecode, COALESCE(xml_value_type,''), COALESCE(result_code_oid,''),
		        COALESCE(value_method,''), COALESCE(display_unit,''), COALESCE(ucum_unit,'')
		 FROM item_master WHERE namecode = ?`, namecode)
	m := &model.ItemMaster{}
	if err := row.Scan(&m.Namecode, &m.XMLValueType, &m.ResultCodeOID, &m.ValueMethod, &m.DisplayUnit, &m.UcumUnit); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// NormVariants returns every active candidate for (resultCodeOID, rawValue),
// ordered is_canonical DESC, priority ASC, variant_id ASC per §4.I — the
// first row the caller accepts, if any, is the canonical answer.
func (d *Dictionary) NormVariants(ctx context.Context, resultCodeOID, rawValue string) ([]*model.NormVariant, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT variant_id, result_code_oid, raw_value_utf8, normalized_code, is_canonical, priority, is_active
		 FROM norm_variants
		 WHERE result_code_oid = ? AND raw_value_utf8 = ? AND is_active = 1
		 ORDER BY is_canonical DESC, priority ASC, variant_id ASC`, resultCodeOID, rawValue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.NormVariant
	for rows.Next() {
		v := &model.NormVariant{}
		if err := rows.Scan(&v.VariantID, &v.ResultCodeOID, &v.RawValueUTF8, &v.NormalizedCode, &v.IsCanonical, &v.Priority, &v.IsActive); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
