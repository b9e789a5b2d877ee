package response

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"GuardWatch/pkg/errors"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: errors.AlertNotFound, want: http.StatusNotFound},
		{err: errors.AlertAlreadyAcknowledged, want: http.StatusConflict},
		{err: errors.InvalidAlertID, want: http.StatusBadRequest},
		{err: errors.InvalidSiteID, want: http.StatusBadRequest},
		{err: errors.Unauthorized, want: http.StatusUnauthorized},
		{err: errors.ScanStatusUnavailable, want: http.StatusServiceUnavailable},
		{err: errors.TooManyRequests, want: http.StatusTooManyRequests},
		{err: fmt.Errorf("acknowledge: %w", errors.AlertNotFound), want: http.StatusNotFound},
		{err: stderrors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestDetail(t *testing.T) {
	code, msg := detail(fmt.Errorf("wrapped: %w", errors.AlertAlreadyAcknowledged))
	assert.Equal(t, "ALERT_ALREADY_ACKNOWLEDGED", code)
	assert.Equal(t, "Alert already acknowledged", msg)

	code, msg = detail(stderrors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", code)
	assert.Equal(t, "boom", msg)
}
