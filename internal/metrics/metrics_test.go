package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	VideosProcessedTotal.WithLabelValues("ready").Inc()
	QueueDepth.Set(3)

	if got := testutil.ToFloat64(QueueDepth); got != 3 {
		t.Fatalf("QueueDepth = %v, want 3", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"streamswarm_videos_processed_total", "streamswarm_processing_queue_depth"} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}
