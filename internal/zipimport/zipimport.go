// Package zipimport implements ZIP-Import (§4.F): walk the staged input
// tree one facility folder at a time, extract each ZIP to scratch,
// classify its structure and register every XML member it contains.
package zipimport

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kenshin-ingest/internal/db"
	kerrors "kenshin-ingest/internal/errors"
	"kenshin-ingest/internal/hashutil"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"
	"kenshin-ingest/internal/password"
	"kenshin-ingest/internal/runs"

	"github.com/sirupsen/logrus"
	yekazip "github.com/yeka/zip"
)

type Stage struct {
	zipReceipts *db.ZipReceiptStore
	xmlReceipts *db.XmlReceiptStore
	resolver    *password.Resolver
	inputRoot   string
	tempRoot    string
	checkWellformed bool
	limit       int
	logger      *logrus.Logger
}

func NewStage(zipReceipts *db.ZipReceiptStore, xmlReceipts *db.XmlReceiptStore, resolver *password.Resolver,
	inputRoot, tempRoot string, checkWellformed bool, limit int, logger *logrus.Logger) *Stage {
	return &Stage{
		zipReceipts: zipReceipts, xmlReceipts: xmlReceipts, resolver: resolver,
		inputRoot: inputRoot, tempRoot: tempRoot, checkWellformed: checkWellformed, limit: limit, logger: logger,
	}
}

// member is one XML file recovered from scratch extraction.
type member struct {
	absPath    string
	innerPath  string // forward-slashed, leading slash stripped
}

func (s *Stage) Run(ctx context.Context, run *runs.Run) error {
	facilityDirs, err := os.ReadDir(s.inputRoot)
	if err != nil {
		return fmt.Errorf("zip-import: read input root: %w", err)
	}

	processed := 0
	for _, fd := range facilityDirs {
		if !fd.IsDir() {
			continue
		}
		facilityFolder := fd.Name()
		code, name := splitFacilityFolder(facilityFolder)

		zipPaths, err := filepath.Glob(filepath.Join(s.inputRoot, facilityFolder, "*.zip"))
		if err != nil {
			s.logger.WithError(err).WithField("facility_folder", facilityFolder).Warn("zip-import: glob failed")
			continue
		}
		for _, zp := range zipPaths {
			if s.limit > 0 && processed >= s.limit {
				return nil
			}
			if err := s.processZip(ctx, run, zp, code, name, facilityFolder); err != nil {
				s.logger.WithError(err).WithField("zip_path", zp).Error("zip-import: failed")
				run.CountError()
			}
			processed++
		}
	}
	return nil
}

// splitFacilityFolder parses the "<code>_<name>" convention; code may be empty.
func splitFacilityFolder(folder string) (code, name string) {
	parts := strings.SplitN(folder, "_", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", folder
}

func (s *Stage) processZip(ctx context.Context, run *runs.Run, zipPath, facilityCode, facilityName, facilityFolder string) error {
	zipSHA256, err := hashutil.SHA256File(zipPath)
	if err != nil {
		return fmt.Errorf("sha256: %w", err)
	}
	zipName := filepath.Base(zipPath)

	candidates, err := s.resolver.Candidates(ctx, facilityCode, facilityFolder, zipName, zipSHA256)
	if err != nil {
		return err
	}

	scratch := filepath.Join(s.tempRoot, fmt.Sprintf("run_%d", run.ID), zipSHA256)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("scratch mkdir: %w", err)
	}
	defer os.RemoveAll(scratch)

	members, hasAnyFile, extractErr := extractZip(zipPath, scratch, candidates)

	receipt := &model.ZipReceipt{
		ZipSHA256:          zipSHA256,
		ZipPath:            zipPath,
		ZipName:            zipName,
		FacilityCode:       facilityCode,
		FacilityFolderName: facilityFolder,
		FacilityName:       facilityName,
	}

	if extractErr != nil {
		code := kerrors.CodeZipUnexpected
		if ae, ok := kerrors.As(extractErr); ok {
			code = ae.Code
		}
		receipt.StructureStatus = model.StructureError
		receipt.ErrorCode = string(code)
		receipt.StructureMessage = kerrors.Shorten(extractErr.Error(), 500)
		return s.commitReceipt(ctx, run, receipt, nil)
	}

	classifyStructure(members, hasAnyFile, receipt)
	return s.commitReceipt(ctx, run, receipt, members)
}

// classifyStructure implements §4.F step 4. hasAnyFile distinguishes a
// genuinely empty archive (ZIP_EMPTY_CONTENT) from one that holds files but
// none of them XML, which instead falls through to the dataDir/STRUCT_ZERO_XML
// path below, matching zip_has_any_file in the original importer.
func classifyStructure(members []member, hasAnyFile bool, receipt *model.ZipReceipt) {
	if !hasAnyFile {
		receipt.StructureStatus = model.StructureError
		receipt.ErrorCode = string(kerrors.CodeZipEmptyContent)
		return
	}

	dataDirs := map[string]bool{}
	for _, m := range members {
		for _, seg := range strings.Split(m.innerPath, "/") {
			if strings.EqualFold(seg, "DATA") {
				dataDirs[pathUpTo(m.innerPath, seg)] = true
			}
		}
	}

	var selected []member
	var warning string
	switch {
	case len(dataDirs) == 0:
		for _, m := range members {
			if strings.HasSuffix(strings.ToLower(m.innerPath), ".xml") {
				selected = append(selected, m)
			}
		}
		warning = string(kerrors.CodeStructNoDataDir)
	case len(dataDirs) == 1:
		for _, m := range members {
			if underAnyDataDir(m.innerPath, dataDirs) && strings.HasSuffix(strings.ToLower(m.innerPath), ".xml") {
				selected = append(selected, m)
			}
		}
	default:
		for _, m := range members {
			if underAnyDataDir(m.innerPath, dataDirs) && strings.HasSuffix(strings.ToLower(m.innerPath), ".xml") {
				selected = append(selected, m)
			}
		}
		sample := sampleDirs(dataDirs, 5)
		warning = fmt.Sprintf("%s: %s", kerrors.CodeStructMultiDataDir, strings.Join(sample, ", "))
	}

	receipt.DataDirCount = len(dataDirs)
	receipt.DataXMLCount = len(selected)
	receipt.ErrorCode = warning

	if receipt.DataXMLCount > 0 {
		receipt.StructureStatus = model.StructureOK
	} else {
		receipt.StructureStatus = model.StructureError
		if warning == "" {
			receipt.ErrorCode = string(kerrors.CodeStructZeroXML)
		} else {
			receipt.ErrorCode = warning + "; " + string(kerrors.CodeStructZeroXML)
		}
	}
}

func pathUpTo(innerPath, seg string) string {
	idx := strings.Index(innerPath, "/"+seg+"/")
	if idx < 0 {
		if strings.HasPrefix(innerPath, seg+"/") {
			return seg
		}
		return innerPath
	}
	return innerPath[:idx+1+len(seg)]
}

func underAnyDataDir(innerPath string, dataDirs map[string]bool) bool {
	for d := range dataDirs {
		if strings.HasPrefix(innerPath, d+"/") {
			return true
		}
	}
	return false
}

func sampleDirs(dirs map[string]bool, n int) []string {
	var out []string
	for d := range dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Stage) commitReceipt(ctx context.Context, run *runs.Run, receipt *model.ZipReceipt, members []member) error {
	id, action, err := s.zipReceipts.Upsert(ctx, receipt, run.ID, time.Now())
	if err != nil {
		return err
	}
	_ = s.zipReceipts.RecordRun(ctx, run.ID, id, receipt.ZipSHA256, action, receipt.ErrorCode, time.Now())
	metrics.ZipImportTotal.WithLabelValues(string(action), string(receipt.StructureStatus)).Inc()

	if receipt.StructureStatus != model.StructureOK {
		run.CountError()
		return nil
	}

	for _, m := range members {
		if err := s.registerXML(ctx, run, receipt, m); err != nil {
			s.logger.WithError(err).WithField("inner_path", m.innerPath).Warn("zip-import: xml registration failed")
		}
	}
	run.CountOK()
	return nil
}

func (s *Stage) registerXML(ctx context.Context, run *runs.Run, receipt *model.ZipReceipt, m member) error {
	data, err := os.ReadFile(m.absPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(m.absPath)
	if err != nil {
		return err
	}

	xmlSHA256 := hashutil.SHA256Bytes(data)
	innerSHA256 := hashutil.SHA256Hex(m.innerPath)

	r := &model.XmlReceipt{
		XmlSHA256:          xmlSHA256,
		ZipSHA256:          receipt.ZipSHA256,
		ZipInnerPath:       m.innerPath,
		ZipInnerPathSHA256: innerSHA256,
		FileSize:           info.Size(),
		FileMtime:          info.ModTime(),
		FacilityCode:       receipt.FacilityCode,
		FacilityName:       receipt.FacilityName,
	}

	id, action, err := s.xmlReceipts.UpsertFromImport(ctx, r)
	if err != nil {
		return err
	}
	if err := s.xmlReceipts.RecordRun(ctx, run.ID, id, xmlSHA256, action, "", time.Now()); err != nil {
		s.logger.WithError(err).Warn("zip-import: xml_receipt_runs insert failed")
	}

	if s.checkWellformed {
		if _, err := parseWellformed(data); err != nil {
			_ = s.xmlReceipts.SetWellformedError(ctx, xmlSHA256, string(kerrors.CodeXMLParse), kerrors.Shorten(err.Error(), 500))
			_ = run.Log(ctx, xmlSHA256, model.StepWellformed, model.LogError, err.Error())
		}
	}
	return nil
}

// extractZip pulls every *.xml member out of a ZIP into destDir, trying
// candidates in order (then a final no-password attempt) on encryption.
// The returned bool reports whether the archive contained any non-directory
// member at all, regardless of extension, so callers can tell "empty archive"
// apart from "archive has files but none are XML".
func extractZip(zipPath, destDir string, candidates []string) ([]member, bool, error) {
	zr, err := yekazip.OpenReader(zipPath)
	if err != nil {
		return nil, false, kerrors.New(kerrors.CodeZipOpen, "zipimport", "OpenReader", "open failed").Wrap(err)
	}
	defer zr.Close()

	tryOrder := append(append([]string{}, candidates...), "")
	var members []member
	var lastErr error
	hasAnyFile := false

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		hasAnyFile = true
		inner := hashutil.NormalizeInnerPath(f.Name)
		if !strings.HasSuffix(strings.ToLower(inner), ".xml") {
			continue
		}

		var ok bool
		for _, pw := range tryOrder {
			if f.IsEncrypted() {
				f.SetPassword(pw)
			}
			rc, openErr := f.Open()
			if openErr != nil {
				cat := classifyZipErr(openErr)
				if cat == catFatal {
					return nil, hasAnyFile, kerrors.New(kerrors.CodeZipLongPath, "zipimport", "extract", "fatal extraction error").Wrap(openErr)
				}
				lastErr = openErr
				continue
			}
			buf, readErr := io.ReadAll(rc)
			rc.Close()
			if readErr != nil {
				cat := classifyZipErr(readErr)
				if cat == catFatal {
					return nil, hasAnyFile, kerrors.New(kerrors.CodeZipLongPath, "zipimport", "extract", "fatal extraction error").Wrap(readErr)
				}
				lastErr = readErr
				continue
			}

			dest := filepath.Join(destDir, filepath.FromSlash(inner))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				if isLongPathErr(err) {
					return nil, hasAnyFile, kerrors.New(kerrors.CodeZipLongPath, "zipimport", "extract", "path too long").Wrap(err)
				}
				return nil, hasAnyFile, err
			}
			if err := os.WriteFile(dest, buf, 0o644); err != nil {
				if isLongPathErr(err) {
					return nil, hasAnyFile, kerrors.New(kerrors.CodeZipLongPath, "zipimport", "extract", "path too long").Wrap(err)
				}
				return nil, hasAnyFile, err
			}
			members = append(members, member{absPath: dest, innerPath: inner})
			ok = true
			break
		}
		if !ok && lastErr != nil {
			return nil, hasAnyFile, kerrors.New(kerrors.CodeZipPassword, "zipimport", "extract", "no candidate password worked").Wrap(lastErr)
		}
	}
	return members, hasAnyFile, nil
}

type zipErrCategory int

const (
	catRetry zipErrCategory = iota
	catFatal
)

// classifyZipErr distinguishes "try the next password" from fatal
// conditions like a path too long for the filesystem (§4.F step 3).
func classifyZipErr(err error) zipErrCategory {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "too long") || strings.Contains(msg, "no such file or directory") || strings.Contains(msg, "path not found") {
		return catFatal
	}
	return catRetry
}

func isLongPathErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too long") || strings.Contains(msg, "file name too long")
}

func parseWellformed(data []byte) (bool, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
}
