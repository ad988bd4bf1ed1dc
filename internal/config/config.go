// Package config loads and validates the pipeline's configuration in the
// same three layers the teacher project uses: an optional YAML file,
// compiled-in defaults applied only to zero-valued fields, and environment
// variable overrides applied last (KENSHIN_* prefix).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"kenshin-ingest/internal/model"

	"gopkg.in/yaml.v2"
)

// LoadConfig reads configFile (if non-empty and present), applies defaults,
// then layers environment overrides on top, and validates the result.
func LoadConfig(configFile string) (*model.Config, error) {
	cfg := &model.Config{}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := loadConfigFile(configFile, cfg); err != nil {
				return nil, fmt.Errorf("config: loading %s: %w", configFile, err)
			}
		}
	}

	loadDotEnv(".env") // §4.NEW-SUPPLEMENT item 1: local dev convenience only

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *model.Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return err
	}
	text := string(raw)
	for _, section := range []string{"app", "database", "paths", "scan", "stages",
		"passwords", "xsd", "metrics", "tracing", "disk_guard", "hot_reload", "quarantine"} {
		if strings.Contains(text, section+":") {
			cfg.MarkLoaded(section)
		}
	}
	return nil
}

// loadDotEnv sets process environment variables from a simple KEY=VALUE
// file, skipping keys already set in the real environment. Never required
// in production, where env vars are injected by the deployment platform.
func loadDotEnv(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, strings.Trim(strings.TrimSpace(kv[1]), `"'`))
	}
}

func applyDefaults(cfg *model.Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "kenshin-ingest"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "json"
	}

	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if cfg.Paths.TempRoot == "" {
		cfg.Paths.TempRoot = os.TempDir()
	}

	if len(cfg.Scan.Extensions) == 0 {
		cfg.Scan.Extensions = []string{"zip"}
	}
	if cfg.Scan.HintDepth == 0 {
		cfg.Scan.HintDepth = 2
	}

	if cfg.Stages.ContentHashBatch == 0 {
		cfg.Stages.ContentHashBatch = 200
	}
	if cfg.Stages.ContentHashCommit == 0 {
		cfg.Stages.ContentHashCommit = 50
	}
	if cfg.Stages.ZipImportLimit == 0 {
		cfg.Stages.ZipImportLimit = 0 // unbounded by default, matches spec's 0=unbounded convention
	}
	if cfg.Stages.XMLExtractLimit == 0 {
		cfg.Stages.XMLExtractLimit = 500
	}
	if cfg.Stages.XMLTargetStatus == "" {
		cfg.Stages.XMLTargetStatus = "PENDING"
	}
	if cfg.Stages.ItemExtractLimit == 0 {
		cfg.Stages.ItemExtractLimit = 500
	}
	if cfg.Stages.NormalizeLimit == 0 {
		cfg.Stages.NormalizeLimit = 1000
	}

	if cfg.XSD.DefaultFileName == "" {
		cfg.XSD.DefaultFileName = "cda.xsd"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if !cfg.WasLoaded("metrics") {
		cfg.Metrics.Enabled = true
	}

	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "otlp"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "kenshin-ingest"
	}
	if cfg.Tracing.SamplerRatio == 0 {
		cfg.Tracing.SamplerRatio = 0.1
	}

	if cfg.DiskGuard.WarningSpaceThreshold == 0 {
		cfg.DiskGuard.WarningSpaceThreshold = 15.0
	}
	if cfg.DiskGuard.CriticalSpaceThreshold == 0 {
		cfg.DiskGuard.CriticalSpaceThreshold = 5.0
	}
	if !cfg.WasLoaded("disk_guard") {
		cfg.DiskGuard.Enabled = true
	}

	if cfg.HotReload.WatchInterval == 0 {
		cfg.HotReload.WatchInterval = 30 * time.Second
	}

	if cfg.Quarantine.Directory == "" {
		cfg.Quarantine.Directory = "./quarantine"
	}
	if cfg.Quarantine.MaxFileSizeMB == 0 {
		cfg.Quarantine.MaxFileSizeMB = 100
	}
}

func applyEnvironmentOverrides(cfg *model.Config) {
	getEnvString(&cfg.App.LogLevel, "KENSHIN_LOG_LEVEL")
	getEnvString(&cfg.App.LogFormat, "KENSHIN_LOG_FORMAT")

	getEnvString(&cfg.Database.DSN, "KENSHIN_DB_DSN")
	getEnvString(&cfg.Database.Host, "KENSHIN_DB_HOST")
	getEnvInt(&cfg.Database.Port, "KENSHIN_DB_PORT")
	getEnvString(&cfg.Database.User, "KENSHIN_DB_USER")
	getEnvString(&cfg.Database.Password, "KENSHIN_DB_PASSWORD")
	getEnvString(&cfg.Database.Name, "KENSHIN_DB_NAME")
	getEnvInt(&cfg.Database.MaxOpenConns, "KENSHIN_DB_MAX_OPEN_CONNS")

	getEnvString(&cfg.Paths.ShareRoot, "KENSHIN_SHARE_ROOT")
	getEnvString(&cfg.Paths.InputRoot, "KENSHIN_INPUT_ROOT")
	getEnvString(&cfg.Paths.TempRoot, "KENSHIN_TEMP_ROOT")
	getEnvString(&cfg.Paths.XSDRoot, "KENSHIN_XSD_ROOT")
	getEnvString(&cfg.Paths.OIDLibrary, "KENSHIN_OID_LIBRARY")

	getEnvStringSlice(&cfg.Scan.Extensions, "KENSHIN_SCAN_EXTENSIONS")
	getEnvInt(&cfg.Scan.MaxFiles, "KENSHIN_SCAN_MAX_FILES")
	getEnvInt(&cfg.Scan.HintDepth, "KENSHIN_SCAN_HINT_DEPTH")

	getEnvInt(&cfg.Stages.ContentHashBatch, "KENSHIN_CONTENT_HASH_BATCH")
	getEnvBool(&cfg.Stages.AutoJudgeAllowReprobe, "KENSHIN_AUTO_JUDGE_ALLOW_REPROBE")
	getEnvBool(&cfg.Stages.StageCopyOverwrite, "KENSHIN_STAGE_COPY_OVERWRITE")
	getEnvInt(&cfg.Stages.ZipImportLimit, "EXTRACT_LIMIT")
	getEnvInt(&cfg.Stages.XMLExtractLimit, "EXTRACT_LIMIT")
	getEnvBool(&cfg.Stages.XMLParseWellformed, "XML_PARSE_WELLFORMED")
	getEnvString(&cfg.Stages.XMLTargetStatus, "XML_TARGET_STATUS")
	getEnvInt(&cfg.Stages.ItemExtractLimit, "ITEM_EXTRACT_LIMIT")
	getEnvInt(&cfg.Stages.NormalizeLimit, "NORMALIZE_LIMIT")

	getEnvBool(&cfg.XSD.Enabled, "XML_ENABLED")

	getEnvBool(&cfg.Metrics.Enabled, "KENSHIN_METRICS_ENABLED")
	getEnvString(&cfg.Metrics.Addr, "KENSHIN_METRICS_ADDR")

	getEnvBool(&cfg.Tracing.Enabled, "KENSHIN_TRACING_ENABLED")
	getEnvString(&cfg.Tracing.Exporter, "KENSHIN_TRACING_EXPORTER")
	getEnvString(&cfg.Tracing.Endpoint, "KENSHIN_TRACING_ENDPOINT")
}

func getEnvString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func getEnvInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func getEnvBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func getEnvStringSlice(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}
