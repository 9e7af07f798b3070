package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib"
	"github.com/fiffu/marketoracle/lib/dispatch"
	"github.com/fiffu/marketoracle/lib/limiter"
	"github.com/fiffu/marketoracle/lib/models"
	"github.com/fiffu/marketoracle/lib/schedule"
	"github.com/fiffu/marketoracle/reporter"
	"github.com/fiffu/marketoracle/senders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubSender struct {
	verifications int
	reports       int
}

func (s *stubSender) SendReport(ctx context.Context, subject, htmlBody string, recipients []string) (string, error) {
	s.reports += len(recipients)
	return "msg-id", nil
}

func (s *stubSender) SendVerification(ctx context.Context, recipient, verifyURL string) (string, error) {
	s.verifications++
	return "msg-id", nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, tickers []string, dateContext string) (string, error) {
	return "<h3>report</h3>", nil
}

var _ reporter.Generator = stubGenerator{}

func newTestRouter(t *testing.T) (http.Handler, *config.Config, *gorm.DB, *stubSender) {
	t.Helper()
	t.Setenv("BASIC_AUTH_CREDS", "admin:password")
	t.Setenv("ENVIRONMENT", "")

	log := zap.NewNop()
	cfg := config.NewConfig(nil, log)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Subscriber{},
		&models.Verification{},
		&models.TriggerCounter{},
		&models.DispatchLock{},
	))

	sender := &stubSender{}
	registry := senders.Registry{"email": sender}
	svc := lib.NewService(nil, cfg, log, db, registry)
	cal := schedule.NewCalendar(cfg)
	roster := dispatch.NewRoster(cfg, log, db, cal)
	lim := limiter.New(cfg, log, db)
	orch := dispatch.NewOrchestrator(nil, cfg, log, db, roster, lim, cal, stubGenerator{}, registry)

	return router(cfg, log, svc, orch, cal, lim), cfg, db, sender
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSubscribeEndpoint_Validation(t *testing.T) {
	h, _, _, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "nope", "stocks": []string{"NVDA"}, "schedule": "MORNING",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "user@example.com", "stocks": []string{}, "schedule": "MORNING",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "user@example.com", "stocks": []string{"NVDA"}, "schedule": "WHENEVER",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeEndpoint_PendingThenVerifiedFlow(t *testing.T) {
	h, _, db, sender := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "User@Example.com", "stocks": []string{"nvda", "tsla"}, "schedule": "BOTH",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, 1, sender.verifications)

	// Click the verification link.
	verification := models.Verification{}
	require.NoError(t, db.Where("email = ?", "user@example.com").First(&verification).Error)
	rec = doJSON(t, h, http.MethodGet, "/verify/"+verification.Nonce, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["verified"])

	rec = doJSON(t, h, http.MethodGet, "/subscribe?email=user@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, true, body["is_existing"])
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, []any{"NVDA", "TSLA"}, body["stocks"])
}

func TestSubscribeEndpoint_QuotaReturns403(t *testing.T) {
	h, cfg, _, _ := newTestRouter(t)
	cfg.SubscriberQuota = 1

	rec := doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "first@example.com", "stocks": []string{"NVDA"}, "schedule": "MORNING",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "second@example.com", "stocks": []string{"NVDA"}, "schedule": "MORNING",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "quota_limit_reached", decode(t, rec)["message"])
}

func TestSubscribeEndpoint_UnsubscribeAction(t *testing.T) {
	h, _, _, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "user@example.com", "stocks": []string{"NVDA"}, "schedule": "MORNING",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 2; i++ { // idempotent
		rec = doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
			"email": "user@example.com", "action": "unsubscribe",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "inactive", decode(t, rec)["status"])
	}
}

func TestLookupEndpoint_UnknownAddress(t *testing.T) {
	h, _, _, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/subscribe?email=stranger@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["is_existing"])

	rec = doJSON(t, h, http.MethodGet, "/subscribe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNextDispatchEndpoint(t *testing.T) {
	h, _, db, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/subscribe", map[string]any{
		"email": "user@example.com", "stocks": []string{"NVDA"}, "schedule": "AFTERNOON",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/next-dispatch?email=user@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pending", body["state"])

	require.NoError(t, db.Model(&models.Subscriber{}).
		Where("email = ?", "user@example.com").
		Update("status", models.StatusActive).Error)

	rec = doJSON(t, h, http.MethodGet, "/next-dispatch?email=user@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "active", body["state"])
	assert.NotEmpty(t, body["home_time"])
	assert.NotEmpty(t, body["display_label"])

	rec = doJSON(t, h, http.MethodGet, "/next-dispatch?email=stranger@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDispatch_AuthAndTestTrigger(t *testing.T) {
	h, _, _, sender := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/admin/dispatch", map[string]any{
		"action": "test", "email": "ops@example.com",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{"action": "test", "email": "ops@example.com"}))
	req := httptest.NewRequest(http.MethodPost, "/admin/dispatch", &buf)
	req.SetBasicAuth("admin", "password")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, sender.reports)
}
