package store

import "codeberg.org/voss/memguard/internal/errors"

const (
	// Configuration Errors
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed  = errors.ErrorCode("store_schema_init_failed")
	ErrTransactionFailed = errors.ErrorCode("store_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrorCode("store_init_failed")
	ErrStorageClose = errors.ErrorCode("store_close_failed")
	ErrTrimFailed   = errors.ErrorCode("store_trim_failed")
)
