package config

import (
	"fmt"
	"os"

	"kenshin-ingest/internal/model"
)

// ConfigValidator accumulates validation errors across config sections so a
// single invocation reports every problem instead of failing on the first.
type ConfigValidator struct {
	errs []error
}

func ValidateConfig(cfg *model.Config) error {
	v := &ConfigValidator{}
	v.validateDatabase(cfg)
	v.validatePaths(cfg)
	v.validateScan(cfg)
	v.validateStages(cfg)

	if len(v.errs) == 0 {
		return nil
	}
	msg := "invalid configuration:"
	for _, e := range v.errs {
		msg += "\n  - " + e.Error()
	}
	return fmt.Errorf(msg)
}

func (v *ConfigValidator) fail(section, field, reason string) {
	v.errs = append(v.errs, fmt.Errorf("%s.%s: %s", section, field, reason))
}

func (v *ConfigValidator) validateDatabase(cfg *model.Config) {
	d := cfg.Database
	if d.DSN == "" && d.Host == "" {
		v.fail("database", "host", "either dsn or host must be set")
	}
	if d.DSN == "" && d.Name == "" {
		v.fail("database", "name", "required when dsn is not set")
	}
	if d.Port < 0 || d.Port > 65535 {
		v.fail("database", "port", "must be between 0 and 65535")
	}
}

func (v *ConfigValidator) validatePaths(cfg *model.Config) {
	if cfg.Paths.ShareRoot != "" {
		v.validateDirectoryReadable("paths", "share_root", cfg.Paths.ShareRoot)
	}
	if cfg.Paths.InputRoot != "" {
		v.validateDirectoryWritable("paths", "input_root", cfg.Paths.InputRoot)
	}
	if cfg.Paths.TempRoot == "" {
		v.fail("paths", "temp_root", "must not be empty")
	}
}

func (v *ConfigValidator) validateScan(cfg *model.Config) {
	if len(cfg.Scan.Extensions) == 0 {
		v.fail("scan", "extensions", "must list at least one extension")
	}
	if cfg.Scan.HintDepth < 0 {
		v.fail("scan", "hint_depth", "must be >= 0")
	}
}

func (v *ConfigValidator) validateStages(cfg *model.Config) {
	switch cfg.Stages.XMLTargetStatus {
	case "PENDING", "OK", "ERROR":
	default:
		v.fail("stages", "xml_target_status", "must be one of PENDING, OK, ERROR")
	}
	if cfg.Stages.ContentHashCommit <= 0 {
		v.fail("stages", "content_hash_commit_every", "must be > 0")
	}
}

func (v *ConfigValidator) validateDirectoryReadable(section, field, path string) {
	info, err := os.Stat(path)
	if err != nil {
		v.fail(section, field, fmt.Sprintf("not accessible: %v", err))
		return
	}
	if !info.IsDir() {
		v.fail(section, field, "is not a directory")
	}
}

func (v *ConfigValidator) validateDirectoryWritable(section, field, path string) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		v.fail(section, field, fmt.Sprintf("cannot create/write: %v", err))
	}
}
