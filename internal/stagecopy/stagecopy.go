// Package stagecopy implements Stage-Copy (§4.E): copy a judged ZIP into
// the alias-resolved per-insurer input tree that ZIP-Import walks.
package stagecopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"
	"kenshin-ingest/internal/runs"

	"github.com/sirupsen/logrus"
)

type Stage struct {
	store       *db.ObservationStore
	zipReceipts *db.ZipReceiptStore
	inputRoot   string
	overwrite   bool
	batchSize   int
	logger      *logrus.Logger
}

func NewStage(store *db.ObservationStore, zipReceipts *db.ZipReceiptStore, inputRoot string, overwrite bool, batchSize int, logger *logrus.Logger) *Stage {
	return &Stage{store: store, zipReceipts: zipReceipts, inputRoot: inputRoot, overwrite: overwrite, batchSize: batchSize, logger: logger}
}

func (s *Stage) Run(ctx context.Context, run *runs.Run) error {
	rows, err := s.store.StageCopyCandidates(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, o := range rows {
		if err := s.copyOne(ctx, o, run); err != nil {
			s.logger.WithError(err).WithField("path", o.Path).Warn("stage-copy: row left NEW")
		}
	}
	return nil
}

func (s *Stage) copyOne(ctx context.Context, o *model.ObservationRow, run *runs.Run) error {
	// The "no ZipReceipt yet for sha256" precondition needs a query this
	// late rather than baked into StageCopyCandidates's SELECT, since a
	// receipt can appear mid-batch from a concurrent ZIP-Import run.
	existing, err := s.zipReceipts.FindBySHA256(ctx, o.SHA256)
	if err != nil {
		return err
	}
	if existing != nil {
		run.CountSkip()
		return nil
	}

	alias, err := s.store.ActiveAlias(ctx, o.SrcFolderRaw)
	if err != nil {
		return err
	}
	if alias == nil || alias.DstFolderNorm == "" {
		run.CountSkip()
		return nil
	}

	if _, err := os.Stat(o.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.transition(ctx, o, model.StageSkipped, "source_missing", run)
			return nil
		}
		return err
	}

	destDir := filepath.Join(s.inputRoot, alias.DstFolderNorm)
	dest := filepath.Join(destDir, o.FileName)

	if _, err := os.Stat(dest); err == nil && !s.overwrite {
		s.transition(ctx, o, model.StageInputCopied, "destination_exists", run)
		return nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("stage-copy: mkdir %s: %w", destDir, err)
	}
	if err := copyPreservingMtime(o.Path, dest, o.Mtime); err != nil {
		metrics.StageCopiedTotal.WithLabelValues("copy_failed").Inc()
		run.CountError()
		return fmt.Errorf("stage-copy: copy %s -> %s: %w", o.Path, dest, err)
	}

	s.transition(ctx, o, model.StageInputCopied, "copied", run)
	return nil
}

func (s *Stage) transition(ctx context.Context, o *model.ObservationRow, status model.StageStatus, outcome string, run *runs.Run) {
	if err := s.store.SetStageStatus(ctx, o.PathHash, status); err != nil {
		s.logger.WithError(err).WithField("path", o.Path).Error("stage-copy: status write failed")
		run.CountError()
		return
	}
	metrics.StageCopiedTotal.WithLabelValues(outcome).Inc()
	run.CountOK()
}

func copyPreservingMtime(src, dst string, mtime time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, mtime, mtime)
}
