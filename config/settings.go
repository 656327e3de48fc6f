package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the explicit application configuration, loaded once in main()
// and injected into the components that need it. Endpoint URLs, tokens and
// tuning knobs live here, never as literals in the pipeline code.
type Settings struct {
	// Apify provider
	ApifyBaseURL  string
	ApifyToken    string
	ApifyActor    string
	WebhookSecret string

	// PublicBaseURL is this service's externally reachable base URL; it is
	// embedded into the webhook callback URL handed to the provider.
	PublicBaseURL string

	// Pipeline tuning
	InboxBatchSize     int
	ScheduleChunkSize  int
	BackfillLimit      int
	DailyScrapeLimit   int
	ProviderTimeout    time.Duration
	DrainLockTTL       time.Duration
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// LoadSettings builds Settings from the environment. ApifyToken and
// WebhookSecret are required; everything else has a sensible default.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		ApifyBaseURL:      envStringDefault("APIFY_BASE_URL", "https://api.apify.com/v2"),
		ApifyToken:        strings.TrimSpace(os.Getenv("APIFY_TOKEN")),
		ApifyActor:        envStringDefault("APIFY_ACTOR", "apify~instagram-reel-scraper"),
		WebhookSecret:     strings.TrimSpace(os.Getenv("APIFY_WEBHOOK_SECRET")),
		PublicBaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/"),
		InboxBatchSize:    envIntDefault("INBOX_BATCH_SIZE", 200),
		ScheduleChunkSize: envIntDefault("SCHEDULE_CHUNK_SIZE", 10),
		BackfillLimit:     envIntDefault("BACKFILL_RESULTS_LIMIT", 100),
		DailyScrapeLimit:  envIntDefault("DAILY_RESULTS_LIMIT", 3),
		ProviderTimeout:   time.Duration(envIntDefault("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		DrainLockTTL:      time.Duration(envIntDefault("DRAIN_LOCK_TTL_SECONDS", 60)) * time.Second,
	}

	if s.ApifyToken == "" {
		return nil, errors.New("APIFY_TOKEN is required")
	}
	if s.WebhookSecret == "" {
		return nil, errors.New("APIFY_WEBHOOK_SECRET is required")
	}
	s.ApifyBaseURL = strings.TrimRight(s.ApifyBaseURL, "/")
	return s, nil
}

// WebhookCallbackURL is the URL the provider will POST completion events to.
func (s *Settings) WebhookCallbackURL(source string) string {
	return s.PublicBaseURL + "/apify_webhook?source=" + source + "&secret=" + s.WebhookSecret
}

func envStringDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
