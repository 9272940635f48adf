// Package errors provides structured error handling for quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, cache persistence)
//   - 3XX: Format errors (cache version / corrupt serialized state)
//   - 4XX: Validation errors
//   - 5XX: Defect errors (internal invariant violations)
//   - 6XX: Build errors (index construction failures)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryFormat indicates cache-format errors: version mismatch or a
	// corrupt serialized index. Always downgraded to a full rebuild.
	CategoryFormat Category = "FORMAT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryDefect indicates internal invariant violations. Forces a full
	// rebuild; never user-visible.
	CategoryDefect Category = "DEFECT"
	// CategoryBuild indicates index build failures surfaced to synchronous
	// load callers.
	CategoryBuild Category = "BUILD"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileRead       = "ERR_202_FILE_READ"
	ErrCodeCacheWrite     = "ERR_203_CACHE_WRITE"
	ErrCodeFileTooLarge   = "ERR_204_FILE_TOO_LARGE"
	ErrCodeLockContention = "ERR_205_LOCK_CONTENTION"

	// Format errors (300-399)
	ErrCodeCacheVersionMismatch = "ERR_301_CACHE_VERSION_MISMATCH"
	ErrCodeCacheCorrupt         = "ERR_302_CACHE_CORRUPT"
	ErrCodeVectorIndexCorrupt   = "ERR_303_VECTOR_INDEX_CORRUPT"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeInvalidPath       = "ERR_404_INVALID_PATH"

	// Defect errors (500-599)
	ErrCodeNegativeDocFreq = "ERR_501_NEGATIVE_DOC_FREQ"
	ErrCodeInternal        = "ERR_502_INTERNAL"

	// Build errors (600-699)
	ErrCodeBuildFailed     = "ERR_601_BUILD_FAILED"
	ErrCodeEmbeddingFailed = "ERR_602_EMBEDDING_FAILED"
	ErrCodeScanFailed      = "ERR_603_SCAN_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryDefect
	}

	// Extract the leading digit of the numeric portion
	// (e.g. "2" from "ERR_201_FILE_NOT_FOUND").
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryFormat
	case '4':
		return CategoryValidation
	case '5':
		return CategoryDefect
	case '6':
		return CategoryBuild
	default:
		return CategoryDefect
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryFormat, CategoryDefect:
		// Self-healing via full rebuild; degraded but continuing.
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable error.
// Lock contention and transient IO are worth retrying; everything else
// requires the caller to change something first.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLockContention, ErrCodeCacheWrite:
		return true
	default:
		return false
	}
}
