// Package external declares the boundary interfaces for subscriber
// roster import and outbound result emission. Neither has an
// implementation in this module: roster import is a separate operator
// script, and outbound emission is a future stage. The interfaces exist
// so the rest of the pipeline can depend on a stable shape without
// reaching into either concern.
package external

import "kenshin-ingest/internal/model"

// SubscriberImporter loads a roster CSV for one insurer into the
// subscriber staging table. No implementation ships with this module;
// operators run the equivalent standalone script against the same
// database.
type SubscriberImporter interface {
	ImportCSV(path string, insurerNumber string) (imported, skipped int, err error)
}

// OutboundEmitter turns a batch of normalized item values into an
// outbound result bundle (CDA or IX08) for a downstream subject. Stage M,
// out of scope for this module.
type OutboundEmitter interface {
	Emit(subjectKey string, values []model.ExamResultItemValue) (bundlePath string, err error)
}
