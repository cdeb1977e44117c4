package observability

import (
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, parseLevel("chatty"))
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, NewLogger("dev", "debug"))
	assert.NotNil(t, NewLogger("prod", ""))
}

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(BookingAdmissions.WithLabelValues(OutcomeAdmitted))
	BookingAdmissions.WithLabelValues(OutcomeAdmitted).Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(BookingAdmissions.WithLabelValues(OutcomeAdmitted)), 0.0001)
	assert.Equal(t, 1, testutil.CollectAndCount(BookingCancellations))
}
