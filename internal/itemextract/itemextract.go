// Package itemextract implements Item-Extract (§4.H.2): walk every
// observation node in a well-formed CDA document and upsert one
// xml_item_values row per (namecode, occurrence).
package itemextract

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"time"

	"kenshin-ingest/internal/cda"
	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/dictionary"
	kerrors "kenshin-ingest/internal/errors"
	"kenshin-ingest/internal/hashutil"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"
	"kenshin-ingest/internal/runs"

	"github.com/sirupsen/logrus"
)

type Stage struct {
	xmlReceipts *db.XmlReceiptStore
	zipReceipts *db.ZipReceiptStore
	itemValues  *db.ItemValueStore
	dict        *dictionary.Dictionary
	limit       int
	logger      *logrus.Logger
}

func NewStage(xmlReceipts *db.XmlReceiptStore, zipReceipts *db.ZipReceiptStore, itemValues *db.ItemValueStore,
	dict *dictionary.Dictionary, limit int, logger *logrus.Logger) *Stage {
	return &Stage{xmlReceipts: xmlReceipts, zipReceipts: zipReceipts, itemValues: itemValues, dict: dict, limit: limit, logger: logger}
}

func (s *Stage) Run(ctx context.Context, run *runs.Run) error {
	rows, err := s.xmlReceipts.ItemExtractBatch(ctx, s.limit)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := s.extractOne(ctx, run, r); err != nil {
			s.logger.WithError(err).WithField("xml_sha256", r.XmlSHA256).Error("item-extract: failed")
			run.CountError()
		}
	}
	return nil
}

func (s *Stage) extractOne(ctx context.Context, run *runs.Run, r *model.XmlReceipt) error {
	data, err := s.readMember(ctx, r.ZipSHA256, r.ZipInnerPath)
	if err != nil {
		return s.finish(ctx, run, r, model.StatusError, "member read failed: "+err.Error())
	}

	root, err := cda.Parse(bytes.NewReader(data))
	if err != nil {
		return s.finish(ctx, run, r, model.StatusError, "parse failed: "+err.Error())
	}
	if root.Local != "ClinicalDocument" {
		run.Log(ctx, r.XmlSHA256, model.StepExtractItems, model.LogSkip, "root is not ClinicalDocument")
		return s.finish(ctx, run, r, model.StatusSkip, "")
	}

	occurrences := map[string]int{}
	written := 0
	for _, obs := range root.FindAll("observation") {
		codeNode := obs.Child("code")
		namecode, hasCode := codeNode.Attr("code")
		if !hasCode || namecode == "" {
			continue
		}

		occ := nextOccurrence(namecode, occurrences)

		master, err := s.dict.ItemMaster(ctx, namecode)
		if err != nil {
			return err
		}

		valueNode := obs.Child("value")
		if valueNode == nil {
			valueNode = obs.Child("text")
		}

		v := &model.XmlItemValue{
			XmlSHA256:    r.XmlSHA256,
			Namecode:     namecode,
			OccurrenceNo: occ,
		}
		v.ValueRaw = extractValue(valueNode, master)
		v.ValueType = resolveValueType(valueNode, master, v.ValueRaw)
		fillCodeAttrs(v, valueNode, codeNode)

		if _, err := s.itemValues.Upsert(ctx, v, time.Now()); err != nil {
			return err
		}
		written++
	}

	if written == 0 {
		run.Log(ctx, r.XmlSHA256, model.StepExtractItems, model.LogError, "zero observation rows extracted")
		return s.finish(ctx, run, r, model.StatusError, "zero rows extracted")
	}
	run.Log(ctx, r.XmlSHA256, model.StepExtractItems, model.LogOK, "")
	return s.finish(ctx, run, r, model.StatusOK, "")
}

// nextOccurrence counts strictly from position within this parse of the
// document: occ[namecode] = occ.get(namecode, 0) + 1, reset per document.
// A document re-parsed after a mid-extraction failure must reproduce the
// same 1..k occurrence sequence so the (xml_sha256, namecode, occurrence_no)
// upsert lands on the same rows instead of appending past them — seeding
// from a prior run's MAX(occurrence_no) would break exactly that.
func nextOccurrence(namecode string, seen map[string]int) int {
	next := seen[namecode] + 1
	seen[namecode] = next
	return next
}

// extractValue implements the value_method-driven extraction rule.
func extractValue(valueNode *cda.Node, master *model.ItemMaster) string {
	if valueNode == nil {
		return ""
	}
	method := ""
	if master != nil {
		method = master.ValueMethod
	}
	switch method {
	case "":
		if v, ok := valueNode.Attr("value"); ok && v != "" {
			return v
		}
		return valueNode.DirectText()
	case "text()":
		return valueNode.DirectText()
	case "string()":
		return valueNode.StringValue()
	default:
		if strings.HasPrefix(method, "@") {
			v, _ := valueNode.Attr(strings.TrimPrefix(method, "@"))
			return v
		}
		return valueNode.DirectText()
	}
}

// resolveValueType implements the master / xsi:type / "ST if present"
// precedence rule.
func resolveValueType(valueNode *cda.Node, master *model.ItemMaster, value string) string {
	if master != nil {
		switch master.XMLValueType {
		case "ST", "PQ", "CD", "CO":
			return master.XMLValueType
		}
	}
	if valueNode != nil {
		if t, ok := valueNode.Attr("type"); ok && t != "" {
			return t
		}
	}
	if value != "" {
		return "ST"
	}
	return ""
}

func fillCodeAttrs(v *model.XmlItemValue, valueNode, codeNode *cda.Node) {
	if unit, ok := valueNode.Attr("unit"); ok {
		v.Unit = unit
	}
	codeSystem, hasCS := valueNode.Attr("codeSystem")
	code, hasCode := valueNode.Attr("code")
	display, hasDisplay := valueNode.Attr("displayName")
	if !hasCS {
		codeSystem, hasCS = codeNode.Attr("codeSystem")
	}
	if !hasCode {
		code, hasCode = codeNode.Attr("code")
	}
	if !hasDisplay {
		display, hasDisplay = codeNode.Attr("displayName")
	}
	if hasCS {
		v.CodeSystem = codeSystem
	}
	if hasCode {
		v.CodeValue = code
	}
	if hasDisplay {
		v.CodeDisplay = display
	}
}

func (s *Stage) finish(ctx context.Context, run *runs.Run, r *model.XmlReceipt, status model.ReceiptStatus, note string) error {
	if err := s.xmlReceipts.SetItemsExtractResult(ctx, r.XmlSHA256, status, run.ID, time.Now()); err != nil {
		return err
	}
	metrics.ItemExtractTotal.WithLabelValues(string(status)).Inc()
	if status == model.StatusError {
		run.CountError()
	} else {
		run.CountOK()
	}
	return nil
}

func (s *Stage) readMember(ctx context.Context, zipSHA256, innerPath string) ([]byte, error) {
	receipt, err := s.zipReceipts.FindBySHA256(ctx, zipSHA256)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, kerrors.New(kerrors.CodeParentZipMissing, "itemextract", "readMember", "no zip_receipt for zip_sha256")
	}
	zr, err := zip.OpenReader(receipt.ZipPath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if hashutil.NormalizeInnerPath(f.Name) == innerPath {
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
	}
	for _, f := range zr.File {
		n := hashutil.NormalizeInnerPath(f.Name)
		if strings.HasSuffix(n, "/"+innerPath) {
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
	}
	return nil, errNotFound(innerPath)
}

type memberNotFoundError string

func (e memberNotFoundError) Error() string { return "zip member not found: " + string(e) }

func errNotFound(innerPath string) error { return memberNotFoundError(innerPath) }
