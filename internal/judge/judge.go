// Package judge implements Auto-Judge (§4.D): decide auto_judgement for
// NEW, hashed, humanly-unjudged ZIPs from their probe result, re-probing
// first when zip_has_xml is still unknown and policy allows it.
package judge

import (
	"context"

	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"
	"kenshin-ingest/internal/runs"
	"kenshin-ingest/internal/zipprobe"

	"github.com/sirupsen/logrus"
)

type Stage struct {
	store        *db.ObservationStore
	probe        *zipprobe.Stage
	allowReprobe bool
	batchSize    int
	logger       *logrus.Logger
}

func NewStage(store *db.ObservationStore, probe *zipprobe.Stage, allowReprobe bool, batchSize int, logger *logrus.Logger) *Stage {
	return &Stage{store: store, probe: probe, allowReprobe: allowReprobe, batchSize: batchSize, logger: logger}
}

// Run never derives NON_KENSHIN from a probe alone: the only values this
// stage ever writes to auto_judgement are KENSHIN and UNKNOWN. NON_KENSHIN
// is reserved for a human via manual_judgement.
func (s *Stage) Run(ctx context.Context, run *runs.Run) error {
	rows, err := s.store.AutoJudgeBatch(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, o := range rows {
		hasXML := o.ZipHasXML
		if hasXML == model.TriUnknown && s.allowReprobe {
			probed, _, err := s.probe.ProbeAndPersist(ctx, o, run)
			if err != nil {
				s.logger.WithError(err).WithField("path", o.Path).Warn("judge: re-probe failed, leaving UNKNOWN")
			} else {
				hasXML = probed
			}
		}

		judgement := model.JudgementUnknown
		if hasXML == model.TriTrue {
			judgement = model.JudgementKenshin
		}

		if err := s.store.SetAutoJudgement(ctx, o.PathHash, judgement); err != nil {
			s.logger.WithError(err).WithField("path", o.Path).Error("judge: write failed")
			run.CountError()
			continue
		}
		metrics.AutoJudgementsTotal.WithLabelValues(string(judgement)).Inc()
		run.CountOK()
	}
	return nil
}
