package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name: "nil error returns empty",
		},
		{
			name:        "schema validation error",
			err:         &SchemaValidationError{Missing: []string{FieldFlowrate}},
			wantCode:    "VAL001",
			wantMessage: "Required columns are missing from the CSV",
		},
		{
			name:        "empty table",
			err:         &EmptyTableError{},
			wantCode:    "FILE004",
			wantMessage: "The uploaded file has no data rows",
		},
		{
			name:        "decode failure",
			err:         &DecodeError{Err: errors.New("bare \" in non-quoted field")},
			wantCode:    "FILE002",
			wantMessage: "File could not be parsed as CSV",
		},
		{
			name:        "body too large",
			err:         errors.New("http: request body too large"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds the upload size limit",
		},
		{
			name:        "wrapped not found",
			err:         fmt.Errorf("get 7: %w", ErrDatasetNotFound),
			wantCode:    "DS001",
			wantMessage: "Dataset not found",
		},
		{
			name:        "limiter rejection",
			err:         ErrTooManyUploads,
			wantCode:    "UPL001",
			wantMessage: "System is busy processing other uploads",
		},
		{
			name:        "deadline beats timeout",
			err:         errors.New("context deadline exceeded"),
			wantCode:    "UPL003",
			wantMessage: "Request timed out",
		},
		{
			name:        "connection refused",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "DB001",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DEADLOCK detected"),
			wantCode:    "DB004",
			wantMessage: "Database was busy with conflicting operations",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyUploads)

	expected := "System is busy processing other uploads (Code: UPL001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrDatasetNotFound, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
