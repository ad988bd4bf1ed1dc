// Package diskguard is a pre-flight disk-space check run before Stage-Copy
// and ZIP-Import's extraction work: both write new files under paths whose
// volume might already be near full, and the original disk-space manager's
// threshold/percent-free model (warning vs critical) is the right shape
// for that, just pointed at gopsutil instead of a raw syscall.Statfs call.
package diskguard

import (
	"context"
	"fmt"

	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
)

type Guard struct {
	cfg    model.DiskGuardConfig
	logger *logrus.Logger
}

func New(cfg model.DiskGuardConfig, logger *logrus.Logger) *Guard {
	return &Guard{cfg: cfg, logger: logger}
}

// Check samples free space percent on path and returns an error only when
// the critical threshold is breached; a warning threshold breach is logged
// but does not block the caller.
func (g *Guard) Check(ctx context.Context, path string) error {
	if !g.cfg.Enabled {
		return nil
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		g.logger.WithError(err).WithField("path", path).Warn("diskguard: usage check failed, proceeding")
		return nil
	}

	freePercent := 100 - usage.UsedPercent
	metrics.DiskSpacePercentFree.WithLabelValues(path).Set(freePercent)

	if freePercent <= g.cfg.CriticalSpaceThreshold {
		return fmt.Errorf("diskguard: %s has %.1f%% free, below critical threshold %.1f%%", path, freePercent, g.cfg.CriticalSpaceThreshold)
	}
	if freePercent <= g.cfg.WarningSpaceThreshold {
		g.logger.WithFields(logrus.Fields{"path": path, "free_percent": freePercent}).Warn("diskguard: approaching critical space threshold")
	}
	return nil
}
