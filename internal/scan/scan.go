// Package scan implements Shared-Scan (§4.A): enumerate files under a
// configured root, one targeted traversal per allowed extension rather
// than a single filter-as-you-walk pass, and upsert an ObservationRow per
// hit.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/hashutil"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"
	"kenshin-ingest/internal/runs"

	"github.com/sirupsen/logrus"
)

type Stage struct {
	store  *db.ObservationStore
	cfg    model.ScanConfig
	logger *logrus.Logger
}

func NewStage(store *db.ObservationStore, cfg model.ScanConfig, logger *logrus.Logger) *Stage {
	return &Stage{store: store, cfg: cfg, logger: logger}
}

// Run enumerates every file whose extension is in cfg.Extensions under
// root, upserting an ObservationRow per hit. Stat failures are tolerated
// with a logged warning and a zero-size row rather than aborting the scan.
func (s *Stage) Run(ctx context.Context, root string, run *runs.Run) error {
	remaining := s.cfg.MaxFiles // 0 = unbounded
	for _, ext := range s.cfg.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		count, err := s.scanExtension(ctx, root, ext, remaining, run)
		if err != nil {
			return fmt.Errorf("scan: extension %q: %w", ext, err)
		}
		if remaining > 0 {
			remaining -= count
			if remaining <= 0 {
				break
			}
		}
	}
	return nil
}

func (s *Stage) scanExtension(ctx context.Context, root, ext string, limit int, run *runs.Run) (int, error) {
	count := 0
	suffix := "." + ext
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("scan: directory entry unreadable, skipping")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), suffix) {
			return nil
		}
		if limit > 0 && count >= limit {
			return filepath.SkipAll
		}

		if err := s.upsertHit(ctx, root, path, ext, run); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("scan: upsert failed")
		} else {
			count++
			metrics.FilesScannedTotal.WithLabelValues(ext).Inc()
			run.CountOK()
		}
		return nil
	})
	return count, err
}

func (s *Stage) upsertHit(ctx context.Context, root, path, ext string, run *runs.Run) error {
	now := time.Now()
	info, statErr := os.Stat(path)

	o := &model.ObservationRow{
		PathHash:     hashutil.PathHash(path),
		Path:         path,
		FileName:     filepath.Base(path),
		Ext:          ext,
		SrcFolderRaw: srcFolderRaw(root, path),
		FacilityHint: facilityHint(root, path, s.cfg.HintDepth),
		FirstSeenAt:  now,
		LastSeenAt:   now,
	}
	if statErr == nil {
		o.FileSize = info.Size()
		o.Mtime = info.ModTime()
	} else {
		s.logger.WithError(statErr).WithField("path", path).Warn("scan: stat failed, recording zero size")
	}

	_, err := s.store.UpsertScan(ctx, o)
	return err
}

// srcFolderRaw is the share-root-relative top-level folder name, nil for
// files directly under root.
func srcFolderRaw(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) <= 1 {
		return ""
	}
	return parts[0]
}

// facilityHint joins the N nearest ancestor directory names.
func facilityHint(root, path string, depth int) string {
	if depth <= 0 {
		return ""
	}
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > depth {
		parts = parts[len(parts)-depth:]
	}
	return strings.Join(parts, "/")
}
