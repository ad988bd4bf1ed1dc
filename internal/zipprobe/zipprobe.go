// Package zipprobe implements ZIP-Probe (§4.C): inspect a ZIP's central
// directory only, without attempting decryption, and count .xml entries.
package zipprobe

import (
	"archive/zip"
	"errors"
	"os"
	"strings"
)

// Result mirrors the original project's frozen ZipXmlProbeResult: ok,
// has_xml, xml_count, and a short classification note.
type Result struct {
	OK       bool
	HasXML   bool
	XMLCount int
	Note     string
}

// Probe opens only path's central directory (archive/zip.OpenReader reads
// the central directory but never decompresses entries) and counts
// filenames ending in ".xml", case-insensitive, excluding directory
// entries.
func Probe(path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Note: "not_found"}
		}
		return Result{Note: "os_error: " + err.Error()}
	}
	if info.IsDir() {
		return Result{Note: "not_a_file"}
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) || errors.Is(err, zip.ErrChecksum) {
			return Result{Note: "bad_zip_file: " + err.Error()}
		}
		if os.IsPermission(err) {
			return Result{Note: "permission_error: " + err.Error()}
		}
		return Result{Note: "exception: " + err.Error()}
	}
	defer zr.Close()

	count := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			count++
		}
	}
	return Result{OK: true, HasXML: count > 0, XMLCount: count, Note: "ok"}
}
