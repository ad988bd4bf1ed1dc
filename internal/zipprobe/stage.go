package zipprobe

import (
	"context"
	"time"

	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"
	"kenshin-ingest/internal/runs"

	"github.com/sirupsen/logrus"
)

// Stage drives Probe across ObservationRows and persists zip_has_xml /
// zip_xml_count / zip_xml_checked_at, the three columns this stage owns.
type Stage struct {
	store  *db.ObservationStore
	logger *logrus.Logger
}

func NewStage(store *db.ObservationStore, logger *logrus.Logger) *Stage {
	return &Stage{store: store, logger: logger}
}

// ProbeAndPersist runs Probe(o.Path) and writes the result, returning the
// tri-state so Auto-Judge can use it immediately without a re-read.
func (s *Stage) ProbeAndPersist(ctx context.Context, o *model.ObservationRow, run *runs.Run) (model.TriState, int, error) {
	r := Probe(o.Path)
	metrics.ZipProbesTotal.WithLabelValues(r.Note).Inc()

	tri := model.TriUnknown
	if r.OK {
		tri = model.TriFromBool(r.HasXML)
	}
	if err := s.store.SetZipProbe(ctx, o.PathHash, tri, r.XMLCount, time.Now()); err != nil {
		run.CountError()
		return tri, r.XMLCount, err
	}
	run.CountOK()
	return tri, r.XMLCount, nil
}
