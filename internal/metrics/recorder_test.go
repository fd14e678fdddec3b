package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderDoesNotPanic(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObservePassDuration(time.Second)
	r.ObserveJobDuration(time.Second)
	r.ObservePassCount(2)
	r.IncJobOutcome(OutcomeSucceeded)
	r.IncSourceKind("tex")
	r.SetQueueDepth(3)
	r.SetActiveJobs(1)
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.IncJobOutcome(OutcomeSucceeded)
	rec.IncJobOutcome(OutcomeSucceeded)
	rec.IncJobOutcome(OutcomeFailed)
	rec.IncSourceKind("markdown")
	rec.SetQueueDepth(5)
	rec.SetActiveJobs(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.jobOutcomes.WithLabelValues(string(OutcomeSucceeded))))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.jobOutcomes.WithLabelValues(string(OutcomeFailed))))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.sourceKinds.WithLabelValues("markdown")))
	assert.Equal(t, float64(5), testutil.ToFloat64(rec.queueDepth))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.activeJobs))
}

func TestPrometheusRecorderNilReceiverSafe(t *testing.T) {
	var rec *PrometheusRecorder
	rec.ObservePassDuration(time.Second)
	rec.IncJobOutcome(OutcomeTimedOut)
	rec.SetQueueDepth(1)
}

func TestPrometheusRecorderHistograms(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObservePassDuration(250 * time.Millisecond)
	rec.ObserveJobDuration(time.Second)
	rec.ObservePassCount(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["texbuild_pass_duration_seconds"])
	assert.True(t, names["texbuild_job_duration_seconds"])
	assert.True(t, names["texbuild_passes_per_job"])
}
