package server

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"melodizr/core/capture"
	"melodizr/core/control"
	"melodizr/core/convert"
)

func TestWriteDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{capture.ErrPermissionDenied, 403},
		{capture.ErrDeviceUnavailable, 409},
		{capture.ErrNoActiveCapture, 409},
		{control.ErrInvalidStep, 409},
		{control.ErrBusy, 409},
		{&control.FileTooLongError{AllowedMillis: 8000, ActualMillis: 9000}, 413},
		{fmt.Errorf("gateway: %w", convert.ErrConversionFailed), 502},
		{fmt.Errorf("something else"), 500},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, "error %v", tc.err)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestFileTooLongResponseCarriesAllowedSeconds(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, &control.FileTooLongError{AllowedMillis: 8000, ActualMillis: 8600})
	assert.Contains(t, rec.Body.String(), `"allowedSeconds":8`)
}
