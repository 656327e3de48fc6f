package apify

import (
	"testing"
)

func TestWebhookPayloadRunIDFallback(t *testing.T) {
	p, err := ParseWebhookPayload([]byte(`{"id":"top","data":{"id":"nested"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := p.RunID(); got != "nested" {
		t.Fatalf("expected nested run id, got %q", got)
	}

	p, err = ParseWebhookPayload([]byte(`{"id":"top"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := p.RunID(); got != "top" {
		t.Fatalf("expected top-level run id, got %q", got)
	}
}

func TestWebhookPayloadDatasetIDFallback(t *testing.T) {
	p, err := ParseWebhookPayload([]byte(`{"resource":{"defaultDatasetId":"res"},"data":{"defaultDatasetId":"dat"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := p.DatasetID(); got != "res" {
		t.Fatalf("expected resource dataset id, got %q", got)
	}

	p, err = ParseWebhookPayload([]byte(`{"data":{"defaultDatasetId":"dat"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := p.DatasetID(); got != "dat" {
		t.Fatalf("expected data dataset id, got %q", got)
	}

	p, err = ParseWebhookPayload([]byte(`{}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := p.DatasetID(); got != "" {
		t.Fatalf("expected empty dataset id, got %q", got)
	}
}

func TestDedupeKeyStableAcrossBodies(t *testing.T) {
	a, _ := ParseWebhookPayload([]byte(`{"data":{"id":"run1","defaultDatasetId":"ds1"},"eventType":"ACTOR.RUN.SUCCEEDED"}`))
	b, _ := ParseWebhookPayload([]byte(`{"data":{"id":"run1","defaultDatasetId":"ds1"},"eventType":"ACTOR.RUN.FAILED","extra":true}`))
	if a.DedupeKey() != b.DedupeKey() {
		t.Fatalf("same run+dataset must share a dedupe key: %q vs %q", a.DedupeKey(), b.DedupeKey())
	}
	if HashKey(a.DedupeKey()) != HashKey(b.DedupeKey()) {
		t.Fatal("hashes of equal keys must match")
	}
	if len(HashKey(a.DedupeKey())) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(HashKey(a.DedupeKey())))
	}
}

func TestPostRecordViewsFallback(t *testing.T) {
	play := int64(100)
	view := int64(40)

	r := PostRecord{VideoPlayCount: &play, VideoViewCount: &view}
	if got := r.Views(); got != 100 {
		t.Fatalf("expected play count to win, got %d", got)
	}

	r = PostRecord{VideoViewCount: &view}
	if got := r.Views(); got != 40 {
		t.Fatalf("expected view count fallback, got %d", got)
	}

	r = PostRecord{}
	if got := r.Views(); got != 0 {
		t.Fatalf("expected zero with no counters, got %d", got)
	}
}

func TestPostRecordPostedAt(t *testing.T) {
	r := PostRecord{Timestamp: "2025-06-01T10:30:00.000Z"}
	at := r.PostedAt()
	if at == nil {
		t.Fatal("expected parsed timestamp")
	}
	if at.Year() != 2025 || at.Month() != 6 || at.Day() != 1 {
		t.Fatalf("unexpected date: %v", at)
	}

	r = PostRecord{Timestamp: "not-a-time"}
	if r.PostedAt() != nil {
		t.Fatal("malformed timestamp must yield nil")
	}

	r = PostRecord{}
	if r.PostedAt() != nil {
		t.Fatal("empty timestamp must yield nil")
	}
}

func TestPostRecordDurationSeconds(t *testing.T) {
	r := PostRecord{VideoDuration: 12.6}
	d := r.DurationSeconds()
	if d == nil || *d != 13 {
		t.Fatalf("expected rounded 13, got %v", d)
	}
	r = PostRecord{}
	if r.DurationSeconds() != nil {
		t.Fatal("zero duration must yield nil")
	}
}

func TestTerminalRunWebhook(t *testing.T) {
	w := TerminalRunWebhook("https://example.com/apify_webhook?secret=s")
	if len(w.EventTypes) != 3 {
		t.Fatalf("expected all terminal event types, got %v", w.EventTypes)
	}
	want := map[string]bool{
		"ACTOR.RUN.SUCCEEDED": true,
		"ACTOR.RUN.FAILED":    true,
		"ACTOR.RUN.ABORTED":   true,
	}
	for _, et := range w.EventTypes {
		if !want[et] {
			t.Fatalf("unexpected event type %q", et)
		}
	}
}
