package ingest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/reelpulse/reels_backend/apify"
	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/ingest"
	"bitbucket.org/reelpulse/reels_backend/models"
)

// End-to-end pipeline scenario against a throwaway MySQL container and a
// stubbed provider API: enable -> webhook -> drain -> schedule.
func TestWebhookToMetricsPipeline(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()
	gin.SetMode(gin.TestMode)

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Provider stub: one actor, two datasets.
	var runCounter int64
	var failRuns atomic.Bool
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/acts/"):
			if failRuns.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"error":"actor unavailable"}`)
				return
			}
			n := atomic.AddInt64(&runCounter, 1)
			fmt.Fprintf(w, `{"data":{"id":"run-%d"}}`, n)
		case r.Method == http.MethodGet && r.URL.Path == "/datasets/ds-1/items":
			fmt.Fprint(w, `[
				{"id":"post-1","ownerUsername":"alice","url":"https://ig/p/1","caption":"hi #go","hashtags":["go"],"displayUrl":"https://cdn/1.jpg","timestamp":"2025-06-01T10:00:00.000Z","videoDuration":12.6,"videoPlayCount":100,"likesCount":7,"commentsCount":2},
				{"id":"post-2","ownerUsername":"ghost","url":"https://ig/p/2","videoViewCount":40},
				{"id":"post-3","url":"https://ig/p/3"}
			]`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not found"}`)
		}
	}))
	t.Cleanup(stub.Close)

	// Wire env for config.Connect* helpers and settings.
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "reelpulse_test")
	t.Setenv("APIFY_BASE_URL", stub.URL)
	t.Setenv("APIFY_TOKEN", "test-token")
	t.Setenv("APIFY_WEBHOOK_SECRET", "test-secret")
	t.Setenv("PUBLIC_BASE_URL", "https://api.test.local")
	t.Setenv("ENABLE_INBOX_NUDGE", "0")
	t.Setenv("SKIP_MIGRATIONS", "")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()
	if db == nil {
		t.Fatal("db is nil after ConnectDatabaseWithRetry")
	}

	settings, err := config.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	client := apify.NewClient(settings)
	processor := ingest.NewProcessor(settings, client)
	lifecycle := ingest.NewLifecycle(settings, client)
	scheduler := ingest.NewScheduler(settings, client)

	r := gin.New()
	r.POST("/apify_webhook", ingest.ApifyWebhookHandler(settings))

	// Seed one workspace with one tracked account.
	workspace := models.Workspace{Name: "Test Workspace"}
	if err := db.WithContext(ctx).Create(&workspace).Error; err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	alice := models.Model{WorkspaceId: workspace.ID, Username: "alice"}
	if err := db.WithContext(ctx).Create(&alice).Error; err != nil {
		t.Fatalf("create model: %v", err)
	}

	// 1) Enable kicks off the backfill and stores the run id.
	if err := lifecycle.Enable(ctx, alice.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	enabled, err := models.GetModelById(ctx, db, alice.ID)
	if err != nil {
		t.Fatalf("reload model: %v", err)
	}
	if enabled.Status != models.ModelStatusEnabled {
		t.Fatalf("expected enabled, got %s", enabled.Status)
	}
	if enabled.ApifyTaskId == nil || *enabled.ApifyTaskId != "run-1" {
		t.Fatalf("expected run-1 stored, got %v", enabled.ApifyTaskId)
	}
	if enabled.LastBackfillAt == nil {
		t.Fatal("last_backfill_at must be stamped")
	}
	var auditCount int64
	if err := db.WithContext(ctx).Model(&models.EventLog{}).Where("event = ?", "model:enabled").Count(&auditCount).Error; err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if auditCount != 1 {
		t.Fatalf("expected one model:enabled event, got %d", auditCount)
	}

	// 2) Webhook receipt: wrong secret rejected, duplicates acknowledged once.
	body := []byte(`{"data":{"id":"run-1","defaultDatasetId":"ds-1"},"eventType":"ACTOR.RUN.SUCCEEDED"}`)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/apify_webhook?secret=wrong", bytes.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", w.Code)
	}

	postWebhook := func(payload []byte) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
			"/apify_webhook?secret=test-secret&source=instagram", bytes.NewReader(payload)))
		return rec
	}

	first := postWebhook(body)
	if first.Code != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d: %s", first.Code, first.Body.String())
	}
	var firstResp struct {
		Ok   bool   `json:"ok"`
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &firstResp); err != nil {
		t.Fatalf("decode webhook response: %v", err)
	}
	if !firstResp.Ok || firstResp.Hash != apify.HashKey("run-1-ds-1") {
		t.Fatalf("unexpected webhook response: %+v", firstResp)
	}

	second := postWebhook(body)
	if second.Code != http.StatusOK {
		t.Fatalf("duplicate webhook: expected 200, got %d", second.Code)
	}
	pending, err := models.CountUnprocessedWebhooks(ctx, db)
	if err != nil {
		t.Fatalf("count unprocessed: %v", err)
	}
	if pending != 1 {
		t.Fatalf("duplicate must not create a second inbox row, got %d", pending)
	}

	// 3) Drain reconciles alice's post, skips the untracked and ownerless ones.
	result, err := processor.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Processed != 1 || result.Errors != 0 || result.ItemErrors != 0 {
		t.Fatalf("unexpected drain result: %+v", result)
	}

	reel, err := models.GetReelByPlatformPostId(ctx, db, workspace.ID, "post-1")
	if err != nil {
		t.Fatalf("fetch reel: %v", err)
	}
	if reel.ModelId != alice.ID {
		t.Fatalf("reel owned by wrong model: %s", reel.ModelId)
	}
	if got := reel.Hashtags(); len(got) != 1 || got[0] != "go" {
		t.Fatalf("hashtags not persisted: %v", got)
	}
	if reel.DurationSeconds == nil || *reel.DurationSeconds != 13 {
		t.Fatalf("duration not rounded: %v", reel.DurationSeconds)
	}

	metrics, err := models.GetDailyMetrics(ctx, db, reel.ID, models.MetricsDay(time.Now()))
	if err != nil {
		t.Fatalf("fetch metrics: %v", err)
	}
	if metrics.Views != 100 || metrics.Likes != 7 || metrics.Comments != 2 {
		t.Fatalf("unexpected counters: %+v", metrics)
	}
	if metrics.Saves != 0 || metrics.Shares != 0 || metrics.WatchTime != 0 {
		t.Fatalf("unavailable counters must be zero: %+v", metrics)
	}

	var reelCount int64
	if err := db.WithContext(ctx).Model(&models.Reel{}).Count(&reelCount).Error; err != nil {
		t.Fatalf("count reels: %v", err)
	}
	if reelCount != 1 {
		t.Fatalf("untracked posts must not create reels, got %d", reelCount)
	}

	scraped, _ := models.GetModelById(ctx, db, alice.ID)
	if scraped.LastScrapedAt == nil {
		t.Fatal("last_scraped_at must be stamped after drain")
	}
	if scraped.BackfillCompleted == nil || !*scraped.BackfillCompleted {
		t.Fatal("backfill_completed must flip after drain")
	}

	status, err := models.GetCronStatus(ctx, db, "process_inbox")
	if err != nil {
		t.Fatalf("fetch cron status: %v", err)
	}
	if status.LastOk == nil || !*status.LastOk {
		t.Fatalf("drain heartbeat must be ok: %+v", status)
	}

	// 4) Replayed run for the same dataset converges instead of duplicating.
	replay := postWebhook([]byte(`{"data":{"id":"run-9","defaultDatasetId":"ds-1"}}`))
	if replay.Code != http.StatusOK {
		t.Fatalf("replay webhook: %d", replay.Code)
	}
	if _, err := processor.Drain(ctx); err != nil {
		t.Fatalf("replay drain: %v", err)
	}
	if err := db.WithContext(ctx).Model(&models.Reel{}).Count(&reelCount).Error; err != nil {
		t.Fatalf("count reels: %v", err)
	}
	if reelCount != 1 {
		t.Fatalf("replay must upsert, not insert, got %d reels", reelCount)
	}
	var metricsCount int64
	if err := db.WithContext(ctx).Model(&models.ReelMetricsDaily{}).Where("reel_id = ?", reel.ID).Count(&metricsCount).Error; err != nil {
		t.Fatalf("count metrics: %v", err)
	}
	if metricsCount != 1 {
		t.Fatalf("same-day replay must keep one metrics row, got %d", metricsCount)
	}

	// 5) A failing dataset fetch leaves the entry queued for retry.
	if rec := postWebhook([]byte(`{"data":{"id":"run-10","defaultDatasetId":"ds-missing"}}`)); rec.Code != http.StatusOK {
		t.Fatalf("webhook for missing dataset: %d", rec.Code)
	}
	result, err = processor.Drain(ctx)
	if err != nil {
		t.Fatalf("drain with failing fetch: %v", err)
	}
	if result.Errors != 1 || result.Processed != 0 {
		t.Fatalf("expected one fetch error, got %+v", result)
	}
	pending, _ = models.CountUnprocessedWebhooks(ctx, db)
	if pending != 1 {
		t.Fatalf("failed entry must stay unprocessed, got %d pending", pending)
	}
	status, _ = models.GetCronStatus(ctx, db, "process_inbox")
	if status.LastOk == nil || *status.LastOk {
		t.Fatalf("failed drain heartbeat must not be ok: %+v", status)
	}
	// Clear the poisoned entry so the scheduler section starts clean.
	if err := db.WithContext(ctx).Model(&models.WebhookInbox{}).Where("processed = ?", false).
		Updates(map[string]interface{}{"processed": true, "processed_at": time.Now().UTC()}).Error; err != nil {
		t.Fatalf("clear inbox: %v", err)
	}

	// 6) Scheduling chunks 23 enabled accounts into 3 runs and stamps all.
	for i := 0; i < 22; i++ {
		m := models.Model{
			WorkspaceId: workspace.ID,
			Username:    fmt.Sprintf("creator%02d", i),
			Status:      models.ModelStatusEnabled,
		}
		if err := db.WithContext(ctx).Create(&m).Error; err != nil {
			t.Fatalf("create model %d: %v", i, err)
		}
	}
	runsBefore := atomic.LoadInt64(&runCounter)

	schedule, err := scheduler.Run(ctx)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if schedule.ModelsCount != 23 || schedule.ChunksCount != 3 || schedule.SuccessfulRuns != 3 || schedule.ErrorCount != 0 {
		t.Fatalf("unexpected schedule result: %+v", schedule)
	}
	if got := atomic.LoadInt64(&runCounter) - runsBefore; got != 3 {
		t.Fatalf("expected 3 run submissions, got %d", got)
	}
	var unstamped int64
	if err := db.WithContext(ctx).Model(&models.Model{}).
		Where("status = ? AND last_daily_scrape_at IS NULL", models.ModelStatusEnabled).
		Count(&unstamped).Error; err != nil {
		t.Fatalf("count unstamped: %v", err)
	}
	if unstamped != 0 {
		t.Fatalf("every enabled model must be stamped, %d were not", unstamped)
	}

	// 7) Submission failures surface in the counts but still stamp.
	failRuns.Store(true)
	schedule, err = scheduler.Run(ctx)
	if err != nil {
		t.Fatalf("scheduler with failing provider: %v", err)
	}
	if schedule.ErrorCount != 3 || schedule.SuccessfulRuns != 0 {
		t.Fatalf("expected all chunks to fail, got %+v", schedule)
	}
	status, _ = models.GetCronStatus(ctx, db, "schedule_scrape_reels")
	if status.LastOk == nil || *status.LastOk {
		t.Fatalf("failing schedule heartbeat must not be ok: %+v", status)
	}
	failRuns.Store(false)

	// 8) Disable stops future scheduling.
	if err := lifecycle.Disable(ctx, alice.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	disabled, _ := models.GetModelById(ctx, db, alice.ID)
	if disabled.Status != models.ModelStatusDisabled {
		t.Fatalf("expected disabled, got %s", disabled.Status)
	}
	schedule, err = scheduler.Run(ctx)
	if err != nil {
		t.Fatalf("scheduler after disable: %v", err)
	}
	if schedule.ModelsCount != 22 {
		t.Fatalf("disabled model must not be scheduled, got %d", schedule.ModelsCount)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("reelpulse-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=reelpulse_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
