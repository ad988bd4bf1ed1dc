// Package normalize implements Normalize-Values (§4.I): turn a raw
// xml_item_values reading into its typed, canonical exam_result_item_values
// projection. No guessing — every failure records a precise reason and
// leaves the row in ERROR for an operator to inspect.
package normalize

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/dictionary"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/runs"

	"github.com/sirupsen/logrus"
)

type Stage struct {
	itemValues *db.ItemValueStore
	dict       *dictionary.Dictionary
	oidNames   *dictionary.OIDLibrary
	limit      int
	logger     *logrus.Logger
}

func NewStage(itemValues *db.ItemValueStore, dict *dictionary.Dictionary, limit int, logger *logrus.Logger) *Stage {
	return &Stage{itemValues: itemValues, dict: dict, limit: limit, logger: logger}
}

// WithOIDLibrary attaches the presentation-only OID->display-name lookup
// (§4.NEW-SUPPLEMENT item 2). Optional: with a nil library, or no entry for
// the (oid, code) pair, no display-name line is logged.
func (s *Stage) WithOIDLibrary(lib *dictionary.OIDLibrary) *Stage {
	s.oidNames = lib
	return s
}

func (s *Stage) Run(ctx context.Context, run *runs.Run) error {
	targets, err := s.itemValues.NormalizeBatch(ctx, s.limit)
	if err != nil {
		return err
	}

	for _, t := range targets {
		valueType := strings.ToUpper(strings.TrimSpace(t.XMLValueType))
		value, normErr := s.normalizeOne(ctx, valueType, t.ValueRaw, t.ResultCodeOID)

		if normErr != nil {
			metrics.NormalizeTotal.WithLabelValues(valueType, "error").Inc()
			if err := s.itemValues.SetNormalizeError(ctx, t.ExamResultID, normErr.Error()); err != nil {
				return err
			}
			run.CountError()
			continue
		}

		if err := s.itemValues.SetNormalizeOK(ctx, t.ExamResultID, value, time.Now()); err != nil {
			return err
		}
		metrics.NormalizeTotal.WithLabelValues(valueType, "ok").Inc()
		s.logDisplayName(valueType, t.ResultCodeOID, value)
		run.CountOK()
	}
	return nil
}

func (s *Stage) normalizeOne(ctx context.Context, valueType, raw, resultCodeOID string) (string, error) {
	switch valueType {
	case "", "ST":
		if raw == "" {
			return "", fmt.Errorf("ST: raw value is null")
		}
		return raw, nil

	case "PQ":
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return "", fmt.Errorf("PQ: raw value is empty after trim")
		}
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			return "", fmt.Errorf("PQ: %q is not a parseable number", trimmed)
		}
		return trimmed, nil

	case "CD", "CO":
		if resultCodeOID == "" {
			return "", fmt.Errorf("%s: result_code_oid is required for code normalization", valueType)
		}
		variants, err := s.dict.NormVariants(ctx, resultCodeOID, raw)
		if err != nil {
			return "", err
		}
		if len(variants) == 0 {
			return "", fmt.Errorf("%s: no active norm_variants match (oid=%s, raw=%q)", valueType, resultCodeOID, raw)
		}
		return variants[0].NormalizedCode, nil

	default:
		return "", fmt.Errorf("unsupported xml_value_type %q", valueType)
	}
}

// logDisplayName is a pure presentation aid (§4.NEW-SUPPLEMENT item 2): it
// never influences the normalization decision, only what the operator sees
// in the log line next to a freshly normalized coded value.
func (s *Stage) logDisplayName(valueType, resultCodeOID, value string) {
	if s.oidNames == nil || (valueType != "CD" && valueType != "CO") {
		return
	}
	if name, ok := s.oidNames.DisplayName(resultCodeOID, value); ok {
		s.logger.WithFields(logrus.Fields{
			"result_code_oid": resultCodeOID,
			"normalized_code": value,
			"display_name":    name,
		}).Debug("normalize: resolved display name")
	}
}
