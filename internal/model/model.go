// Package model defines the row types that flow through the ingestion
// pipeline: one struct per entity in the ledger/receipt schema, plus the
// tri-state and enum-like string types shared across stages.
package model

import "time"

// Judgement is the tri-plus-unknown classification a shared file carries
// toward being treated as a kenshin (health checkup) deliverable.
type Judgement string

const (
	JudgementKenshin    Judgement = "KENSHIN"
	JudgementNonKenshin Judgement = "NON_KENSHIN"
	JudgementUnreadable Judgement = "UNREADABLE"
	JudgementUnknown    Judgement = "UNKNOWN"
)

// StageStatus tracks an ObservationRow's position in the A/D/E pipeline.
type StageStatus string

const (
	StageNew         StageStatus = "NEW"
	StageInputCopied StageStatus = "INPUT_COPIED"
	StageImported    StageStatus = "IMPORTED"
	StageSkipped     StageStatus = "SKIPPED"
)

// TriState represents a nullable boolean column (zip_has_xml, xsd_valid).
type TriState int

const (
	TriUnknown TriState = iota
	TriFalse
	TriTrue
)

func TriFromBool(b bool) TriState {
	if b {
		return TriTrue
	}
	return TriFalse
}

// ObservationRow is shared_files: one row per observed file path on the share.
type ObservationRow struct {
	ID              int64
	PathHash        string // sha1(path), unique natural key surrogate
	Path            string
	FileName        string
	Ext             string
	FileSize        int64
	Mtime           time.Time
	SHA256          string // empty until Content-Hash runs
	SrcFolderRaw    string
	FacilityHint    string
	ZipHasXML       TriState
	ZipXMLCount     int
	ZipXMLCheckedAt *time.Time
	AutoJudgement   Judgement
	ManualJudgement *Judgement // nil = unset; never overwritten by automation
	StageStatus     StageStatus
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
}

// EffectiveJudgement returns manual when set, else auto. Used by Stage-Copy's
// COALESCE(manual, auto) precondition.
func (o *ObservationRow) EffectiveJudgement() Judgement {
	if o.ManualJudgement != nil {
		return *o.ManualJudgement
	}
	return o.AutoJudgement
}

// FolderAlias maps a raw per-site source folder name to a normalized
// per-insurer destination folder. Gates Stage-Copy.
type FolderAlias struct {
	ID             int64
	SrcFolderRaw   string
	DstFolderNorm  string
	IsActive       bool
}

// StructureStatus classifies a ZipReceipt's decoded structure.
type StructureStatus string

const (
	StructureOK    StructureStatus = "OK"
	StructureError StructureStatus = "ERROR"
)

// ZipReceipt is zip_receipts: one row per distinct ZIP content.
type ZipReceipt struct {
	ID                 int64
	ZipSHA256          string
	ZipPath            string
	ZipName            string
	FacilityCode       string
	FacilityFolderName string
	FacilityName       string
	StructureStatus    StructureStatus
	ErrorCode          string
	StructureMessage   string
	DataDirCount       int
	DataXMLCount       int
	FirstSeenRunID     int64
	LastSeenRunID      int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReceiptStatus is the shared PENDING/OK/ERROR status used by XmlReceipt for
// both its extraction triple and its items-extraction triple; SKIP is used
// by the items-extraction triple only.
type ReceiptStatus string

const (
	StatusPending ReceiptStatus = "PENDING"
	StatusOK      ReceiptStatus = "OK"
	StatusError   ReceiptStatus = "ERROR"
	StatusSkip    ReceiptStatus = "SKIP"
)

// XmlReceipt is xml_receipts: one row per distinct XML content.
type XmlReceipt struct {
	ID                  int64
	XmlSHA256           string
	ZipSHA256           string
	ZipInnerPath        string
	ZipInnerPathSHA256  string
	FileSize            int64
	FileMtime           time.Time
	FacilityCode        string
	FacilityName        string

	Status          ReceiptStatus
	ErrorCode       string
	ErrorMessage    string
	DocumentID      *string
	ExtractedRunID  *int64
	ExtractedAt     *time.Time

	ItemsExtractStatus   ReceiptStatus
	ItemsExtractedRunID  *int64
	ItemsExtractedAt     *time.Time
}

// XmlLedger is the per-XML header extract, one row per
// (zip_sha256, zip_inner_path_sha256).
type XmlLedger struct {
	ID                 int64
	ZipSHA256          string
	ZipInnerPathSHA256 string

	InsurerNumber    string
	InsuranceSymbol  string
	InsuranceNumber  string
	InsuranceBranch  string
	BirthDate        *time.Time
	ExamDate         *time.Time
	GenderCode       string
	KanaName         string
	PatientName      string
	PostalCode       string
	Address          string
	FacilityCode     string
	FacilityName     string
	CategoryCode     string
	ProgramCode      string
	GuidanceCode     string
	MetaboCode       string

	XsdValid     TriState
	ErrorContent string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// XmlItemValue is xml_item_values: one row per (xml_sha256, namecode, occurrence_no).
type XmlItemValue struct {
	ID            int64
	XmlSHA256     string
	Namecode      string
	OccurrenceNo  int
	ValueRaw      string
	ValueType     string // ST/PQ/CD/CO, master-declared or node-inferred
	Unit          string
	CodeSystem    string
	CodeValue     string
	CodeDisplay   string
	CreatedAt     time.Time
}

// NormalizeStatus is exam_result_item_values.normalize_status.
type NormalizeStatus string

const (
	NormalizeRaw   NormalizeStatus = "RAW"
	NormalizeOK    NormalizeStatus = "OK"
	NormalizeError NormalizeStatus = "ERROR"
)

// ExamResultItemValue is the post-normalization projection of an XmlItemValue.
type ExamResultItemValue struct {
	ID              int64
	ItemValueID     int64
	Value           string
	NormalizeStatus NormalizeStatus
	NormalizedAt    *time.Time
	NormalizeError  string
}

// Run is import_runs: a single invocation of any stage.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	InputRoot  string
	Note       string
}

// LogResult is xml_process_logs.result.
type LogResult string

const (
	LogOK    LogResult = "OK"
	LogSkip  LogResult = "SKIP"
	LogError LogResult = "ERROR"
)

// ProcessStep is xml_process_logs.step.
type ProcessStep string

const (
	StepWellformed   ProcessStep = "WELLFORMED"
	StepCDAIndex     ProcessStep = "CDA_INDEX"
	StepXSDValidate  ProcessStep = "XSD_VALIDATE"
	StepExtractItems ProcessStep = "EXTRACT_ITEMS"
	StepLedger       ProcessStep = "LEDGER"
)

// ProcessLog is xml_process_logs: per (run, xml_sha256, step) audit row.
type ProcessLog struct {
	ID          int64
	RunID       int64
	XmlSHA256   string
	Step        ProcessStep
	Result      LogResult
	Message     string
	ProcessedAt time.Time
}

// PasswordScope is zip_passwords.scope_type, in priority order (ascending
// numeric value below maps to ascending priority, smallest first).
type PasswordScope string

const (
	ScopeZipSHA256 PasswordScope = "ZIP_SHA256"
	ScopeZipName   PasswordScope = "ZIP_NAME"
	ScopeFacility  PasswordScope = "FACILITY"
)

// ScopePriority returns the fixed scope ordering used by the password
// resolver: smallest value wins.
func ScopePriority(s PasswordScope) int {
	switch s {
	case ScopeZipSHA256:
		return 10
	case ScopeZipName:
		return 20
	case ScopeFacility:
		return 30
	default:
		return 999
	}
}

// PasswordCandidate is zip_passwords: a candidate plaintext for an archive.
type PasswordCandidate struct {
	ID                 int64
	Scope              PasswordScope
	ZipSHA256          string
	ZipName            string
	FacilityCode       string
	FacilityFolderName string
	PasswordText       string
	Priority           int
	IsActive           bool
}

// ItemMaster is item_master (read-only dictionary): describes how to
// extract and type a namecode's observation value.
type ItemMaster struct {
	Namecode      string
	XMLValueType  string // ST/PQ/CD/CO, may be empty
	ResultCodeOID string
	ValueMethod   string // "" / "@attr" / "text()" / "string()"
	DisplayUnit   string
	UcumUnit      string
}

// NormVariant is norm_variants (read-only dictionary): one candidate
// normalized code for a (result_code_oid, raw_value) pair.
type NormVariant struct {
	VariantID      int64
	ResultCodeOID  string
	RawValueUTF8   string
	NormalizedCode string
	IsCanonical    bool
	Priority       int
	IsActive       bool
}

// RunAction is zip_receipt_runs.action and xml_receipt_runs.action.
type RunAction string

const (
	ActionNew  RunAction = "NEW"
	ActionSeen RunAction = "SEEN"
)
