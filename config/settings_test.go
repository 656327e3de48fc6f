package config

import (
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("APIFY_TOKEN", "tok")
	t.Setenv("APIFY_WEBHOOK_SECRET", "sec")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com/")
	t.Setenv("APIFY_BASE_URL", "")
	t.Setenv("INBOX_BATCH_SIZE", "")
	t.Setenv("SCHEDULE_CHUNK_SIZE", "")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ApifyBaseURL != "https://api.apify.com/v2" {
		t.Errorf("base url default: %s", s.ApifyBaseURL)
	}
	if s.ApifyActor != "apify~instagram-reel-scraper" {
		t.Errorf("actor default: %s", s.ApifyActor)
	}
	if s.InboxBatchSize != 200 {
		t.Errorf("batch size default: %d", s.InboxBatchSize)
	}
	if s.ScheduleChunkSize != 10 {
		t.Errorf("chunk size default: %d", s.ScheduleChunkSize)
	}
	if s.BackfillLimit != 100 {
		t.Errorf("backfill limit default: %d", s.BackfillLimit)
	}
	if s.DailyScrapeLimit != 3 {
		t.Errorf("daily limit default: %d", s.DailyScrapeLimit)
	}
	if s.ProviderTimeout != 30*time.Second {
		t.Errorf("provider timeout default: %s", s.ProviderTimeout)
	}
	if s.PublicBaseURL != "https://api.example.com" {
		t.Errorf("trailing slash must be trimmed: %s", s.PublicBaseURL)
	}
}

func TestLoadSettingsRequiredFields(t *testing.T) {
	t.Setenv("APIFY_TOKEN", "")
	t.Setenv("APIFY_WEBHOOK_SECRET", "sec")
	if _, err := LoadSettings(); err == nil {
		t.Fatal("missing APIFY_TOKEN must error")
	}

	t.Setenv("APIFY_TOKEN", "tok")
	t.Setenv("APIFY_WEBHOOK_SECRET", "")
	if _, err := LoadSettings(); err == nil {
		t.Fatal("missing APIFY_WEBHOOK_SECRET must error")
	}
}

func TestWebhookCallbackURL(t *testing.T) {
	t.Setenv("APIFY_TOKEN", "tok")
	t.Setenv("APIFY_WEBHOOK_SECRET", "sec")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	got := s.WebhookCallbackURL("instagram")
	want := "https://api.example.com/apify_webhook?source=instagram&secret=sec"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
