package dictionary

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// OIDLibrary is a presentation-only OID/code -> display-name lookup, loaded
// once from a CSV export of the catalog team's code book (§4.NEW-SUPPLEMENT
// item 2, ported from original_source's oid_utils.load_oid_library). It
// never participates in the normalization decision itself (§4.I stays
// exact-match against norm_variants); this exists purely so operator-facing
// log lines can show a human name next to a normalized_code.
type OIDLibrary struct {
	mu      sync.RWMutex
	byOID   map[string]map[string]string
}

// LoadOIDLibrary reads a CSV with headers OID_code, OID_code_value,
// OID_code_value_name, matching the original project's export format.
// Rows missing any of the three fields are skipped. A missing path is not
// an error: the library just stays empty and DisplayName always misses.
func LoadOIDLibrary(path string) (*OIDLibrary, error) {
	lib := &OIDLibrary{byOID: make(map[string]map[string]string)}
	if path == "" {
		return lib, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return nil, fmt.Errorf("oid library: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return lib, nil
		}
		return nil, fmt.Errorf("oid library: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimPrefix(strings.TrimSpace(h), string(rune(0xFEFF)))] = i
	}
	oidIdx, ok1 := col["OID_code"]
	codeIdx, ok2 := col["OID_code_value"]
	nameIdx, ok3 := col["OID_code_value_name"]
	if !ok1 || !ok2 || !ok3 {
		return lib, nil
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("oid library: read row: %w", err)
		}
		if oidIdx >= len(rec) || codeIdx >= len(rec) || nameIdx >= len(rec) {
			continue
		}
		oid := strings.TrimSpace(rec[oidIdx])
		code := strings.TrimSpace(rec[codeIdx])
		name := strings.TrimSpace(rec[nameIdx])
		if oid == "" || code == "" || name == "" {
			continue
		}
		if _, exists := lib.byOID[oid]; !exists {
			lib.byOID[oid] = make(map[string]string)
		}
		lib.byOID[oid][code] = name
	}
	return lib, nil
}

// DisplayName returns the human-readable name for (oid, code), and false
// when the library has no entry — callers fall back to the raw code.
func (l *OIDLibrary) DisplayName(oid, code string) (string, bool) {
	if l == nil {
		return "", false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	names, ok := l.byOID[oid]
	if !ok {
		return "", false
	}
	name, ok := names[code]
	return name, ok
}
