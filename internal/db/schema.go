package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ddlStatements are idempotent CREATE TABLE IF NOT EXISTS bootstraps for
// every table in §6, extending the original project's etl_runs/etl_errors
// shape (run/errors counters) to the full ledger/receipt schema.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS import_runs (
		run_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		started_at DATETIME(6) NOT NULL,
		finished_at DATETIME(6) NULL,
		input_root VARCHAR(1024) NULL,
		note TEXT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS shared_files (
		shared_file_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		path_hash CHAR(40) NOT NULL,
		path VARCHAR(2048) NOT NULL,
		file_name VARCHAR(512) NOT NULL,
		ext VARCHAR(16) NOT NULL,
		file_size BIGINT NOT NULL DEFAULT 0,
		mtime DATETIME(6) NULL,
		sha256 CHAR(64) NULL,
		src_folder_raw VARCHAR(512) NULL,
		facility_hint VARCHAR(512) NULL,
		zip_has_xml TINYINT NULL,
		zip_xml_count INT NOT NULL DEFAULT 0,
		zip_xml_checked_at DATETIME(6) NULL,
		auto_judgement ENUM('KENSHIN','NON_KENSHIN','UNREADABLE','UNKNOWN') NOT NULL DEFAULT 'UNKNOWN',
		manual_judgement ENUM('KENSHIN','NON_KENSHIN','UNREADABLE','UNKNOWN') NULL,
		stage_status ENUM('NEW','INPUT_COPIED','IMPORTED','SKIPPED') NOT NULL DEFAULT 'NEW',
		first_seen_at DATETIME(6) NOT NULL,
		last_seen_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_shared_files_path_hash (path_hash)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS shared_folder_aliases (
		alias_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		src_folder_raw VARCHAR(512) NOT NULL,
		dst_folder_norm VARCHAR(512) NOT NULL,
		is_active TINYINT NOT NULL DEFAULT 1,
		UNIQUE KEY uq_aliases_src (src_folder_raw)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS zip_receipts (
		zip_receipt_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		zip_sha256 CHAR(64) NOT NULL,
		zip_path VARCHAR(2048) NULL,
		zip_name VARCHAR(512) NULL,
		facility_code VARCHAR(64) NULL,
		facility_folder_name VARCHAR(512) NULL,
		facility_name VARCHAR(512) NULL,
		structure_status ENUM('OK','ERROR') NOT NULL DEFAULT 'ERROR',
		error_code VARCHAR(64) NULL,
		structure_message TEXT NULL,
		data_dir_count INT NOT NULL DEFAULT 0,
		data_xml_count INT NOT NULL DEFAULT 0,
		first_seen_run_id BIGINT NULL,
		last_seen_run_id BIGINT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_zip_receipts_sha256 (zip_sha256)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS zip_receipt_runs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_id BIGINT NOT NULL,
		zip_receipt_id BIGINT NOT NULL,
		zip_sha256 CHAR(64) NOT NULL,
		action ENUM('NEW','SEEN') NOT NULL,
		message TEXT NULL,
		seen_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS xml_receipts (
		xml_receipt_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		xml_sha256 CHAR(64) NOT NULL,
		zip_sha256 CHAR(64) NOT NULL,
		zip_inner_path VARCHAR(2048) NOT NULL,
		zip_inner_path_sha256 CHAR(64) NOT NULL,
		file_size BIGINT NOT NULL DEFAULT 0,
		file_mtime DATETIME(6) NULL,
		facility_code VARCHAR(64) NULL,
		facility_name VARCHAR(512) NULL,
		status ENUM('PENDING','OK','ERROR') NOT NULL DEFAULT 'PENDING',
		error_code VARCHAR(64) NULL,
		error_message TEXT NULL,
		document_id VARCHAR(512) NULL,
		extracted_run_id BIGINT NULL,
		extracted_at DATETIME(6) NULL,
		items_extract_status ENUM('PENDING','OK','ERROR','SKIP') NOT NULL DEFAULT 'PENDING',
		items_extracted_run_id BIGINT NULL,
		items_extracted_at DATETIME(6) NULL,
		UNIQUE KEY uq_xml_receipts_sha256 (xml_sha256),
		UNIQUE KEY uq_xml_receipts_zip_inner (zip_sha256, zip_inner_path_sha256)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS xml_receipt_runs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_id BIGINT NOT NULL,
		xml_sha256 CHAR(64) NOT NULL,
		xml_receipt_id BIGINT NOT NULL,
		action ENUM('NEW','SEEN') NOT NULL,
		message TEXT NULL,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS xml_process_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_id BIGINT NOT NULL,
		xml_sha256 CHAR(64) NOT NULL,
		step ENUM('WELLFORMED','CDA_INDEX','XSD_VALIDATE','EXTRACT_ITEMS','LEDGER','OTHER') NOT NULL,
		result ENUM('OK','SKIP','ERROR') NOT NULL,
		message TEXT NULL,
		processed_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS xml_ledger (
		xml_ledger_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		zip_sha256 CHAR(64) NOT NULL,
		zip_inner_path_sha256 CHAR(64) NOT NULL,
		insurer_number VARCHAR(32) NULL,
		insurance_symbol VARCHAR(64) NULL,
		insurance_number VARCHAR(64) NULL,
		insurance_branch VARCHAR(32) NULL,
		birth_date DATE NULL,
		exam_date DATE NULL,
		gender_code VARCHAR(8) NULL,
		kana_name VARCHAR(256) NULL,
		patient_name VARCHAR(256) NULL,
		postal_code VARCHAR(16) NULL,
		address VARCHAR(1024) NULL,
		facility_code VARCHAR(64) NULL,
		facility_name VARCHAR(512) NULL,
		category_code VARCHAR(32) NULL,
		program_code VARCHAR(32) NULL,
		guidance_code VARCHAR(32) NULL,
		metabo_code VARCHAR(32) NULL,
		xsd_valid TINYINT NULL,
		error_content TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_xml_ledger_key (zip_sha256, zip_inner_path_sha256)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS xml_item_values (
		item_value_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		xml_sha256 CHAR(64) NOT NULL,
		namecode VARCHAR(64) NOT NULL,
		occurrence_no INT NOT NULL,
		value_raw TEXT NULL,
		value_type VARCHAR(8) NULL,
		unit VARCHAR(64) NULL,
		code_system VARCHAR(128) NULL,
		code_value VARCHAR(128) NULL,
		code_display VARCHAR(256) NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_item_values_key (xml_sha256, namecode, occurrence_no)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS exam_result_item_values (
		exam_result_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		item_value_id BIGINT NOT NULL,
		value TEXT NULL,
		normalize_status ENUM('RAW','OK','ERROR') NOT NULL DEFAULT 'RAW',
		normalized_at DATETIME(6) NULL,
		normalize_error TEXT NULL,
		UNIQUE KEY uq_exam_result_item_value (item_value_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS item_master (
		namecode VARCHAR(64) NOT NULL PRIMARY KEY,
		xml_value_type VARCHAR(8) NULL,
		result_code_oid VARCHAR(64) NULL,
		value_method VARCHAR(16) NULL,
		display_unit VARCHAR(64) NULL,
		ucum_unit VARCHAR(64) NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS norm_variants (
		variant_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		result_code_oid VARCHAR(64) NOT NULL,
		raw_value_utf8 VARCHAR(256) NOT NULL,
		normalized_code VARCHAR(64) NOT NULL,
		is_canonical TINYINT NOT NULL DEFAULT 0,
		priority INT NOT NULL DEFAULT 100,
		is_active TINYINT NOT NULL DEFAULT 1,
		KEY idx_norm_variants_lookup (result_code_oid, raw_value_utf8, is_active)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS zip_passwords (
		zip_password_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		scope_type ENUM('ZIP_SHA256','ZIP_NAME','FACILITY') NOT NULL,
		zip_sha256 CHAR(64) NULL,
		zip_name VARCHAR(512) NULL,
		facility_code VARCHAR(64) NULL,
		facility_folder_name VARCHAR(512) NULL,
		password_text VARCHAR(256) NOT NULL,
		priority INT NOT NULL DEFAULT 100,
		is_active TINYINT NOT NULL DEFAULT 1
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Bootstrap runs every CREATE TABLE IF NOT EXISTS statement. Safe to call
// on every process start; it never alters existing tables (schema drift
// tolerance comes from the catalog, not from migrating DDL here).
func Bootstrap(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range ddlStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("db: bootstrap: %w", err)
		}
	}
	return nil
}
