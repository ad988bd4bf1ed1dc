// Command kenshin-ingest drives one invocation of the health-checkup
// ingestion pipeline: a single stage, or the full scan-through-normalize
// sequence, selected by IMPORT_MODE and config, matching the teacher
// project's own small-flags-plus-env-driven cmd/main.go shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"kenshin-ingest/internal/app"
	"kenshin-ingest/internal/config"
	"kenshin-ingest/internal/model"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile string
		limit      int
		dryRun     bool
		stageFlag  string
	)
	flag.StringVar(&configFile, "config", defaultConfigPath(), "path to configuration file")
	flag.IntVar(&limit, "limit", 0, "batch cap override for the selected stage(s); 0 = unbounded")
	flag.BoolVar(&dryRun, "dry-run", false, "log which stages would run and exit without running them (the database connection and schema bootstrap still happen)")
	flag.StringVar(&stageFlag, "stage", "", "run exactly one stage (overrides IMPORT_MODE), one of: scan, content_hash, auto_judge, stage_copy, zip_import, xml_extract, item_extract, normalize")
	flag.Parse()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	applyLimitOverride(cfg, limit)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to construct application")
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			logger.WithError(cerr).Warn("error during shutdown")
		}
	}()

	stages := stagesFor(stageFlag, os.Getenv("IMPORT_MODE"))
	if len(stages) == 0 {
		logger.Fatal("no stage selected: set --stage or IMPORT_MODE")
	}

	if dryRun {
		logger.WithField("stages", strings.Join(stages, ",")).Info("dry-run: would execute these stages")
		os.Exit(0)
	}

	anyErrored := false
	for _, stage := range stages {
		run, err := a.RunStage(ctx, stage)
		if err != nil {
			logger.WithError(err).WithField("stage", stage).Error("stage failed")
			os.Exit(1)
		}
		if run.Errored() > 0 {
			anyErrored = true
		}
	}

	if anyErrored {
		os.Exit(2) // partial: some rows failed, per the spec's exit code convention
	}
	os.Exit(0)
}

func defaultConfigPath() string {
	if p := os.Getenv("KENSHIN_CONFIG_FILE"); p != "" {
		return p
	}
	return "/etc/kenshin-ingest/config.yaml"
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// applyLimitOverride pushes --limit into every stage's batch cap field
// when set, rather than threading a separate override through app.New.
func applyLimitOverride(cfg *model.Config, limit int) {
	if limit <= 0 {
		return
	}
	cfg.Stages.ContentHashBatch = limit
	cfg.Stages.ZipImportLimit = limit
	cfg.Stages.XMLExtractLimit = limit
	cfg.Stages.ItemExtractLimit = limit
	cfg.Stages.NormalizeLimit = limit
}

// stagesFor resolves the stage list to run: an explicit --stage wins,
// otherwise IMPORT_MODE picks among the spec's named modes.
func stagesFor(stageFlag, importMode string) []string {
	if stageFlag != "" {
		return []string{stageFlag}
	}
	switch strings.ToUpper(importMode) {
	case "ZIP_IMPORT":
		return []string{app.StageStageCopy, app.StageZipImport}
	case "XML_EXTRACT":
		return []string{app.StageXMLExtract, app.StageItemExtract, app.StageNormalize}
	case "FULL", "":
		return []string{
			app.StageScan, app.StageContentHash, app.StageAutoJudge,
			app.StageStageCopy, app.StageZipImport,
			app.StageXMLExtract, app.StageItemExtract, app.StageNormalize,
		}
	default:
		return nil
	}
}
