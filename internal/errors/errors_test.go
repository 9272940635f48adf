package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarryError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with QuarryError
	qe := New(ErrCodeFileNotFound, "file not found: test.txt", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, qe)
	assert.Equal(t, originalErr, errors.Unwrap(qe))
	assert.True(t, errors.Is(qe, originalErr))
}

func TestQuarryError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "file error",
			code:     ErrCodeFileNotFound,
			message:  "a.txt not found",
			expected: "[ERR_201_FILE_NOT_FOUND] a.txt not found",
		},
		{
			name:     "format error",
			code:     ErrCodeCacheVersionMismatch,
			message:  "cache version 2, want 3",
			expected: "[ERR_301_CACHE_VERSION_MISMATCH] cache version 2, want 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestQuarryError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := New(ErrCodeFileNotFound, "file A not found", nil)
	err2 := New(ErrCodeFileNotFound, "file B not found", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
}

func TestQuarryError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeFileNotFound, "file not found", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestCategoryDerivation(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileRead, CategoryIO},
		{ErrCodeCacheVersionMismatch, CategoryFormat},
		{ErrCodeCacheCorrupt, CategoryFormat},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeNegativeDocFreq, CategoryDefect},
		{ErrCodeBuildFailed, CategoryBuild},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestCategoryPredicates_SeeThroughWrapping(t *testing.T) {
	// Given: a format error wrapped twice with %w
	inner := New(ErrCodeCacheVersionMismatch, "version mismatch", nil)
	wrapped := fmt.Errorf("load cache: %w", inner)
	doubly := fmt.Errorf("build round: %w", wrapped)

	// Then: predicates find the category through the chain
	assert.True(t, IsFormat(doubly))
	assert.False(t, IsDefect(doubly))
	assert.Equal(t, ErrCodeCacheVersionMismatch, GetCode(doubly))
}

func TestDefectPredicate(t *testing.T) {
	err := New(ErrCodeNegativeDocFreq, "df(dog) would be -1", nil)

	assert.True(t, IsDefect(err))
	assert.False(t, IsFormat(err))
	assert.False(t, IsBuild(err))
	// Defects self-heal through a rebuild, so they log as warnings.
	assert.Equal(t, SeverityWarning, err.Severity)
}

func TestBuildErrorHelper(t *testing.T) {
	cause := errors.New("walk failed")
	err := BuildError("lexical build failed", cause)

	assert.True(t, IsBuild(err))
	assert.Equal(t, ErrCodeBuildFailed, err.Code)
	assert.True(t, errors.Is(err, cause))
}

func TestQuarryError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeFileNotFound, "file not found", nil)

	err = err.WithDetail("path", "/corpus/a.txt")
	err = err.WithDetail("size", "1024")

	assert.Equal(t, "/corpus/a.txt", err.Details["path"])
	assert.Equal(t, "1024", err.Details["size"])
}

func TestQuarryError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeLockContention, "cache is locked", nil)

	err = err.WithSuggestion("Another quarry process may be indexing; wait or remove the lock file")

	assert.Equal(t, "Another quarry process may be indexing; wait or remove the lock file", err.Suggestion)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeLockContention, "locked", nil)))
	assert.False(t, IsRetryable(New(ErrCodeFileNotFound, "gone", nil)))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeCacheWrite, "cannot write index cache", nil).
		WithSuggestion("Check free disk space")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: cannot write index cache")
	assert.Contains(t, out, "Hint: Check free disk space")
	assert.Contains(t, out, "Code: ERR_203_CACHE_WRITE")
}

func TestFormatJSON_IncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New(ErrCodeCacheWrite, "cannot write index cache", cause)

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	assert.Contains(t, string(data), `"code":"ERR_203_CACHE_WRITE"`)
	assert.Contains(t, string(data), `"cause":"disk full"`)
	assert.Contains(t, string(data), `"retryable":true`)
}
