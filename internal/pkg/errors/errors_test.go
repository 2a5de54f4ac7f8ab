package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCode(t *testing.T) {
	tests := []struct {
		code   int
		status int
	}{
		{Success, http.StatusOK},
		{ErrSearchNotFound, http.StatusNotFound},
		{ErrStaleGeneration, http.StatusConflict},
		{ErrMalformedResult, http.StatusUnprocessableEntity},
		{ErrBackendUnavailable, http.StatusBadGateway},
		{99999, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, GetHTTPStatus(tt.code), "code %d", tt.code)
	}
	assert.True(t, IsServerError(ErrExportFailed))
	assert.False(t, IsServerError(ErrWidgetInvalid))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternalServer))

	cause := errors.New("connection refused")
	err := Wrap(cause, ErrBackendUnavailable, "status poll")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrBackendUnavailable, ExtractCode(err))
	assert.Equal(t, "status poll", GetDetails(err))
	assert.Equal(t, "[2005] Search backend unavailable: connection refused", err.Error())

	// an existing code wins
	again := Wrap(err, ErrInternalServer)
	assert.Equal(t, ErrBackendUnavailable, again.Code)
	assert.True(t, Is(again, ErrBackendUnavailable))
}

func TestExtractCode_PlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, ErrInternalServer, ExtractCode(err))
	assert.Equal(t, "boom", GetDetails(err))
	assert.False(t, Is(err, ErrInternalServer))
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "Invalid widget", FormatError(ErrWidgetInvalid))
	assert.Equal(t, "Invalid widget: id is required", FormatError(ErrWidgetInvalid, "id is required"))
	assert.Equal(t, "[3000] Invalid widget: id is required", New(ErrWidgetInvalid, "id is required").Error())
}
