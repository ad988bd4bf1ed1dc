// Package xmlextract implements XML-Extract (§4.G): resolve each pending
// XML receipt's bytes from its parent ZIP, well-form check it, read the
// CDA document id, optionally validate against an XSD, extract header
// fields into the ledger, and transition the receipt to OK or ERROR.
package xmlextract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"kenshin-ingest/internal/cda"
	"kenshin-ingest/internal/db"
	kerrors "kenshin-ingest/internal/errors"
	"kenshin-ingest/internal/hashutil"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"
	"kenshin-ingest/internal/runs"

	"github.com/sirupsen/logrus"
)

type Stage struct {
	xmlReceipts  *db.XmlReceiptStore
	zipReceipts  *db.ZipReceiptStore
	ledger       *db.LedgerStore
	targetStatus model.ReceiptStatus
	limit        int
	xsd          *XSDResolver // nil disables XSD validation
	logger       *logrus.Logger

	zipCache map[string]*zip.ReadCloser
}

func NewStage(xmlReceipts *db.XmlReceiptStore, zipReceipts *db.ZipReceiptStore, ledger *db.LedgerStore,
	targetStatus model.ReceiptStatus, limit int, xsd *XSDResolver, logger *logrus.Logger) *Stage {
	return &Stage{
		xmlReceipts: xmlReceipts, zipReceipts: zipReceipts, ledger: ledger,
		targetStatus: targetStatus, limit: limit, xsd: xsd, logger: logger,
		zipCache: make(map[string]*zip.ReadCloser),
	}
}

func (s *Stage) Run(ctx context.Context, run *runs.Run) error {
	defer s.closeCache()

	rows, err := s.xmlReceipts.PendingBatch(ctx, s.targetStatus, s.limit)
	if err != nil {
		return err
	}

	for _, r := range rows {
		if err := s.extractOne(ctx, run, r); err != nil {
			s.logger.WithError(err).WithField("xml_sha256", r.XmlSHA256).Error("xml-extract: failed")
			run.CountError()
		}
	}
	return nil
}

func (s *Stage) closeCache() {
	for _, zr := range s.zipCache {
		zr.Close()
	}
}

func (s *Stage) zipFor(ctx context.Context, zipSHA256 string) (*zip.ReadCloser, error) {
	if zr, ok := s.zipCache[zipSHA256]; ok {
		return zr, nil
	}
	receipt, err := s.zipReceipts.FindBySHA256(ctx, zipSHA256)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, kerrors.New(kerrors.CodeParentZipMissing, "xmlextract", "zipFor", "no zip_receipts row for "+zipSHA256)
	}
	zr, err := zip.OpenReader(receipt.ZipPath)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeZipOpen, "xmlextract", "zipFor", "open failed").Wrap(err)
	}
	s.zipCache[zipSHA256] = zr
	return zr, nil
}

func (s *Stage) extractOne(ctx context.Context, run *runs.Run, r *model.XmlReceipt) error {
	data, err := s.resolveMember(ctx, r.ZipSHA256, r.ZipInnerPath)
	if err != nil {
		code := kerrors.CodeZipMemberNotFound
		if ae, ok := kerrors.As(err); ok {
			code = ae.Code
		}
		s.fail(ctx, run, r, code, err.Error())
		return nil
	}

	root, err := cda.Parse(bytes.NewReader(data))
	if err != nil {
		run.Log(ctx, r.XmlSHA256, model.StepWellformed, model.LogError, err.Error())
		s.fail(ctx, run, r, kerrors.CodeXMLParse, err.Error())
		return nil
	}
	run.Log(ctx, r.XmlSHA256, model.StepWellformed, model.LogOK, "")

	docID, nullFlavor, ok := cda.DocumentID(root)
	var documentID *string
	switch {
	case nullFlavor:
		run.Log(ctx, r.XmlSHA256, model.StepCDAIndex, model.LogSkip, "id/@nullFlavor present")
	case ok:
		documentID = &docID
		run.Log(ctx, r.XmlSHA256, model.StepCDAIndex, model.LogOK, docID)
	default:
		run.Log(ctx, r.XmlSHA256, model.StepCDAIndex, model.LogError, "id element missing root and nullFlavor")
	}

	xsdValid := model.TriUnknown
	if s.xsd != nil {
		valid, msg, skip := s.xsd.Validate(root, data)
		if skip {
			run.Log(ctx, r.XmlSHA256, model.StepXSDValidate, model.LogSkip, "no schema resolved")
		} else {
			xsdValid = model.TriFromBool(valid)
			result := model.LogOK
			if !valid {
				result = model.LogError
			}
			run.Log(ctx, r.XmlSHA256, model.StepXSDValidate, result, msg)
		}
	}

	ledger := extractHeader(root, r.ZipSHA256, r.ZipInnerPathSHA256, xsdValid)
	if _, err := s.ledger.Upsert(ctx, ledger, time.Now()); err != nil {
		s.fail(ctx, run, r, kerrors.CodeLedgerUpsert, err.Error())
		return nil
	}

	now := time.Now()
	if err := s.xmlReceipts.SetExtractResult(ctx, r.XmlSHA256, model.StatusOK, "", "", documentID, run.ID, now); err != nil {
		return err
	}
	metrics.XMLExtractTotal.WithLabelValues(string(model.StatusOK)).Inc()
	run.CountOK()
	return nil
}

func (s *Stage) fail(ctx context.Context, run *runs.Run, r *model.XmlReceipt, code kerrors.Code, message string) {
	now := time.Now()
	if err := s.xmlReceipts.SetExtractResult(ctx, r.XmlSHA256, model.StatusError, string(code), kerrors.Shorten(message, 500), nil, run.ID, now); err != nil {
		s.logger.WithError(err).WithField("xml_sha256", r.XmlSHA256).Error("xml-extract: failed to persist error state")
	}
	metrics.XMLExtractTotal.WithLabelValues(string(model.StatusError)).Inc()
	run.CountError()
}

// resolveMember reads the member bytes for innerPath out of the cached
// zip handle for zipSHA256, applying the suffix-matching rescue from §4.G
// step 2 when the exact inner path is no longer present (a re-packaged
// archive, different compression tool, or a path-separator mismatch).
func (s *Stage) resolveMember(ctx context.Context, zipSHA256, innerPath string) ([]byte, error) {
	zr, err := s.zipFor(ctx, zipSHA256)
	if err != nil {
		return nil, err
	}

	for _, f := range zr.File {
		if hashutil.NormalizeInnerPath(f.Name) == innerPath {
			return readZipFile(f)
		}
	}

	var candidates []*zip.File
	for _, f := range zr.File {
		n := hashutil.NormalizeInnerPath(f.Name)
		if n == innerPath || strings.HasSuffix(n, "/"+innerPath) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("zip member not found: %s", innerPath)
	}
	tries := candidates
	if len(tries) > 5 {
		tries = tries[:5]
	}
	var lastErr error
	for _, f := range tries {
		data, err := readZipFile(f)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extractHeader implements §4.H.1.
func extractHeader(root *cda.Node, zipSHA256, innerSHA256 string, xsdValid model.TriState) *model.XmlLedger {
	l := &model.XmlLedger{ZipSHA256: zipSHA256, ZipInnerPathSHA256: innerSHA256, XsdValid: xsdValid}

	recordTarget := root.Child("recordTarget")
	patientRole := recordTarget.Child("patientRole")
	patient := patientRole.Child("patient")

	if ext, ok := cda.IDByRoot(patientRole, cda.OIDInsuranceSymbol); ok {
		l.InsuranceSymbol = ext
	}
	if ext, ok := cda.IDByRoot(patientRole, cda.OIDInsuranceNumber); ok {
		l.InsuranceNumber = ext
	}
	if ext, ok := cda.IDByRoot(patientRole, cda.OIDInsuranceBranch); ok {
		l.InsuranceBranch = ext
	}
	if ext, ok := cda.IDByRoot(patientRole, cda.OIDInsurerNumber); ok {
		l.InsurerNumber = ext
	}

	addr := patientRole.Child("addr")
	l.PostalCode, _ = addrPart(addr, "postalCode")
	l.Address = cda.JoinAddressParts(
		textOfFirst(addr, "state"), textOfFirst(addr, "city"), textOfFirst(addr, "streetAddressLine"))

	if patient != nil {
		if bd, ok := patient.Child("birthTime").Attr("value"); ok {
			if t, ok := cda.ParseHL7Date(bd); ok {
				l.BirthDate = &t
			}
		}
		if gc, ok := patient.Child("administrativeGenderCode").Attr("code"); ok {
			l.GenderCode = gc
		}
		nameNode := patient.Child("name")
		if nameNode != nil {
			l.PatientName = nameNode.StringValue()
		}
	}

	author := root.Child("author")
	if t, ok := author.Child("time").Attr("value"); ok {
		if parsed, ok := cda.ParseHL7Date(t); ok {
			l.ExamDate = &parsed
		}
	}

	org := root.Find("author", "assignedAuthor", "representedOrganization")
	if org == nil {
		org = root.Find("custodian", "assignedCustodian", "representedCustodianOrganization")
	}
	if org != nil {
		if ext, ok := cda.IDByRoot(org, cda.OIDFacilityCode); ok {
			l.FacilityCode = ext
		}
		l.FacilityName = textOfFirst(org, "name")
	}

	code := root.Child("code")
	if c, ok := code.Attr("code"); ok {
		l.CategoryCode = c
	}

	return l
}

func addrPart(addr *cda.Node, name string) (string, bool) {
	if addr == nil {
		return "", false
	}
	child := addr.Child(name)
	if child == nil {
		return "", false
	}
	return child.DirectText(), true
}

func textOfFirst(parent *cda.Node, name string) string {
	if parent == nil {
		return ""
	}
	return parent.Child(name).DirectText()
}
