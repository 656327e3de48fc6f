package apify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"
)

// WebhookPayload is the loosely-shaped body of a provider run notification.
// Only the identifiers are read here; the full raw body is stored alongside.
type WebhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"eventType"`
	Data      struct {
		ID               string `json:"id"`
		DefaultDatasetId string `json:"defaultDatasetId"`
	} `json:"data"`
	Resource struct {
		DefaultDatasetId string `json:"defaultDatasetId"`
	} `json:"resource"`
}

func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RunID prefers the nested run id and falls back to the top-level id, since
// the provider has shipped both shapes.
func (p *WebhookPayload) RunID() string {
	if p.Data.ID != "" {
		return p.Data.ID
	}
	return p.ID
}

func (p *WebhookPayload) DatasetID() string {
	if p.Resource.DefaultDatasetId != "" {
		return p.Resource.DefaultDatasetId
	}
	return p.Data.DefaultDatasetId
}

// DedupeKey joins run and dataset ids; two notifications for the same run
// and dataset are one logical event even when the bodies differ.
func (p *WebhookPayload) DedupeKey() string {
	return p.RunID() + "-" + p.DatasetID()
}

// HashKey returns the hex SHA-256 of a dedupe key, which is what the inbox
// uniqueness constraint and the webhook response both carry.
func HashKey(dedupeKey string) string {
	sum := sha256.Sum256([]byte(dedupeKey))
	return hex.EncodeToString(sum[:])
}

// PostRecord is one item of a scraped dataset. Counter fields are pointers
// because the scraper omits counters it could not read.
type PostRecord struct {
	ID             string   `json:"id"`
	OwnerUsername  string   `json:"ownerUsername"`
	Url            string   `json:"url"`
	Caption        string   `json:"caption"`
	Hashtags       []string `json:"hashtags"`
	DisplayUrl     string   `json:"displayUrl"`
	Timestamp      string   `json:"timestamp"`
	VideoDuration  float64  `json:"videoDuration"`
	VideoPlayCount *int64   `json:"videoPlayCount"`
	VideoViewCount *int64   `json:"videoViewCount"`
	LikesCount     int64    `json:"likesCount"`
	CommentsCount  int64    `json:"commentsCount"`
}

// Views prefers play count over view count; the scraper populates one or the
// other depending on the post type.
func (r *PostRecord) Views() int64 {
	if r.VideoPlayCount != nil {
		return *r.VideoPlayCount
	}
	if r.VideoViewCount != nil {
		return *r.VideoViewCount
	}
	return 0
}

// PostedAt parses the scraper's RFC 3339 timestamp. A missing or malformed
// timestamp yields nil rather than an error; the post is still usable.
func (r *PostRecord) PostedAt() *time.Time {
	if r.Timestamp == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func (r *PostRecord) DurationSeconds() *int {
	if r.VideoDuration <= 0 {
		return nil
	}
	n := int(math.Round(r.VideoDuration))
	return &n
}

// RunInput is the actor input for one scrape run.
type RunInput struct {
	Usernames    []string `json:"usernames"`
	ResultsLimit int      `json:"resultsLimit"`
}

// RunWebhook asks the provider to notify the given URL when the run ends,
// in any terminal state.
type RunWebhook struct {
	EventTypes []string `json:"eventTypes"`
	RequestUrl string   `json:"requestUrl"`
}

func TerminalRunWebhook(requestUrl string) RunWebhook {
	return RunWebhook{
		EventTypes: []string{"ACTOR.RUN.SUCCEEDED", "ACTOR.RUN.FAILED", "ACTOR.RUN.ABORTED"},
		RequestUrl: requestUrl,
	}
}
