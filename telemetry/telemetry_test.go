package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	r := prometheus.NewRegistry()
	require.NoError(t, Register(r))
	require.NoError(t, Register(r))
}

func TestRecordCacheRequest(t *testing.T) {
	before := testutil.ToFloat64(cacheRequests.WithLabelValues("telemetry-test", "hit"))
	RecordCacheRequest("telemetry-test", true)
	RecordCacheRequest("telemetry-test", true)
	RecordCacheRequest("telemetry-test", false)

	assert.Equal(t, before+2, testutil.ToFloat64(cacheRequests.WithLabelValues("telemetry-test", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cacheRequests.WithLabelValues("telemetry-test", "miss")))
}

func TestRecordStatement(t *testing.T) {
	RecordStatement("telemetry.ok", "select", time.Millisecond, nil)
	RecordStatement("telemetry.fail", "update", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 0.0, testutil.ToFloat64(statementErrors.WithLabelValues("telemetry.ok", "select")))
	assert.Equal(t, 1.0, testutil.ToFloat64(statementErrors.WithLabelValues("telemetry.fail", "update")))
	assert.Equal(t, 2, testutil.CollectAndCount(statementDuration, "batis_statement_duration_seconds"))
}
