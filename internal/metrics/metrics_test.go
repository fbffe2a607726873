package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSessionLifecycleCounters(t *testing.T) {
	r := New()
	r.SessionStarted()
	r.SessionStarted()
	r.SessionEnded(true)

	body := scrape(t, r)
	if !strings.Contains(body, "mmserverd_sessions_started_total 2") {
		t.Errorf("expected sessionsStarted=2, body:\n%s", body)
	}
	if !strings.Contains(body, "mmserverd_sessions_reaped_total 1") {
		t.Errorf("expected sessionsReaped=1, body:\n%s", body)
	}
}

func TestVideoDeliveryCounters(t *testing.T) {
	r := New()
	r.RecordVideoDelivery(true)
	r.RecordVideoDelivery(false)
	r.RecordVideoDelivery(false)

	body := scrape(t, r)
	if !strings.Contains(body, "mmserverd_video_frames_sent_total 1") {
		t.Errorf("expected videoFramesSent=1, body:\n%s", body)
	}
	if !strings.Contains(body, "mmserverd_video_frames_dropped_total 2") {
		t.Errorf("expected videoFramesDropped=2, body:\n%s", body)
	}
}

func TestFECRepairRatioLabelsByLayer(t *testing.T) {
	r := New()
	r.SetFECRepairRatio(0, 0.3)
	r.SetFECRepairRatio(1, 0.15)

	body := scrape(t, r)
	if !strings.Contains(body, `layer="0"`) || !strings.Contains(body, `layer="1"`) {
		t.Errorf("expected per-layer FEC ratio labels, body:\n%s", body)
	}
}

func TestObserveFrameEncodeRecordsHistogram(t *testing.T) {
	r := New()
	r.ObserveFrameEncode(16 * time.Millisecond)

	body := scrape(t, r)
	if !strings.Contains(body, "mmserverd_frame_encode_duration_seconds_count 1") {
		t.Errorf("expected one histogram observation, body:\n%s", body)
	}
}

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}
