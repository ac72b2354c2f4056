package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecal/carecal/internal/calendar"
	"github.com/carecal/carecal/internal/config"
	"github.com/carecal/carecal/internal/platform/auth"
	"github.com/carecal/carecal/internal/platform/metrics"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

const weekFeed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:a\r\nDTSTART:20261020T090000Z\r\nDTEND:20261020T100000Z\r\nSUMMARY:Wound care\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:b\r\nDTSTART:20261020T140000Z\r\nDTEND:20261020T150000Z\r\nSUMMARY:Medication\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:c\r\nDTSTART;VALUE=DATE:20261021\r\nSUMMARY:Holiday\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:            env,
		Storage:        config.StorageMemory,
		Timezone:       "UTC",
		CORSOrigins:    []string{"http://localhost:3000"},
		AuthSigningKey: testSigningKey,
		AuthIssuer:     "carecal",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		RequestTimeout: 5 * time.Second,
		BodyLimit:      "1M",
		FeedSyncCron:   "*/15 * * * *",
	}
}

func newTestServer(t *testing.T, env string) (*config.Config, http.Handler) {
	t.Helper()
	cfg := testConfig(env)
	st, err := openStorage(context.Background(), cfg)
	require.NoError(t, err)
	return cfg, newServer(cfg, st, metrics.New(), zerolog.Nop())
}

func bearer(t *testing.T, cfg *config.Config, roles ...string) string {
	t.Helper()
	token, err := auth.IssueToken(jwtConfig(cfg), "nurse-1", roles, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(h http.Handler, method, target, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_PublicEndpoints(t *testing.T) {
	_, h := newTestServer(t, "production")

	rec := serve(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage":"memory"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(h, http.MethodGet, "/health/db", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "carecal_http_requests_total")
}

func TestServer_RequiresToken(t *testing.T) {
	cfg, h := newTestServer(t, "production")

	rec := serve(h, http.MethodGet, "/api/v1/calendar", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodPost, "/api/v1/categories", bearer(t, cfg, auth.RoleViewer), `{"label":"Visits"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_CalendarFlow(t *testing.T) {
	cfg, h := newTestServer(t, "production")
	planner := bearer(t, cfg, auth.RolePlanner)

	rec := serve(h, http.MethodPost, "/api/v1/appointments", planner,
		`{"title":"Wound care","start":"2026-10-20T09:00:00Z","end":"2026-10-20T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = serve(h, http.MethodPost, "/api/v1/appointments", planner,
		`{"title":"Medication","start":"2026-10-20T14:00:00Z","end":"2026-10-20T15:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(h, http.MethodGet, "/api/v1/calendar?view=week&date=2026-10-21", bearer(t, cfg, auth.RoleViewer), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	etag := rec.Header().Get("ETag")
	assert.NotEmpty(t, etag)

	var view calendar.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Decision.UseTimeAxis)
	assert.Equal(t, calendar.ReasonMultiplePerDay, view.Decision.Reason)
	assert.Len(t, view.Days, 7)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calendar?view=week&date=2026-10-21", nil)
	req.Header.Set("Authorization", planner)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = serve(h, http.MethodGet, "/metrics", "", "")
	body := rec.Body.String()
	assert.Contains(t, body, `carecal_layout_decisions_total{layout="time_axis",reason="multiple-per-day",view="week"} 1`)
	assert.Contains(t, body, `carecal_changes_total{action="create",resource="appointments",status="2xx"} 2`)
}

func TestServer_DevIdentity(t *testing.T) {
	_, h := newTestServer(t, "development")

	rec := serve(h, http.MethodPost, "/api/v1/categories", "", `{"label":"Visits","color":"#22c55e"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(h, http.MethodGet, "/api/v1/categories", "Bearer not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewFeedSyncer(t *testing.T) {
	cfg := testConfig("production")
	st, err := openStorage(context.Background(), cfg)
	require.NoError(t, err)

	s, err := newFeedSyncer(cfg, st.svc, metrics.New(), zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.FeedURLs = []string{"https://example.org/feed.ics"}
	cfg.FeedCategory = "not-a-uuid"
	_, err = newFeedSyncer(cfg, st.svc, metrics.New(), zerolog.Nop())
	assert.ErrorContains(t, err, "FEED_CATEGORY")

	cfg.FeedCategory = ""
	s, err = newFeedSyncer(cfg, st.svc, metrics.New(), zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestRenderRequest(t *testing.T) {
	now := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)

	req, err := renderRequest("month", "2026-02-14", "auto", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, calendar.ViewMonth, req.Mode)
	assert.Equal(t, time.Date(2026, time.February, 14, 12, 0, 0, 0, time.UTC), req.Reference)
	assert.Nil(t, req.TimeAxisOverride)

	req, err = renderRequest("week", "", "false", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, now, req.Reference)
	require.NotNil(t, req.TimeAxisOverride)
	assert.False(t, *req.TimeAxisOverride)

	_, err = renderRequest("year", "", "auto", time.UTC, now)
	assert.Error(t, err)
	_, err = renderRequest("week", "14.02.2026", "auto", time.UTC, now)
	assert.Error(t, err)
	_, err = renderRequest("week", "", "sometimes", time.UTC, now)
	assert.Error(t, err)
}

func TestRenderCmd_FromStdin(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetIn(strings.NewReader(weekFeed))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"render", "--view", "week", "--date", "2026-10-21", "--input", "-"})
	require.NoError(t, cmd.Execute())

	var view calendar.View
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Equal(t, calendar.ReasonMultiplePerDay, view.Decision.Reason)
	total := 0
	for _, d := range view.Days {
		total += d.Total
	}
	assert.Equal(t, 2, total)
}

func TestRenderCmd_YAML(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"render", "--view", "month", "--date", "2026-10-21", "--format", "yaml"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "reason: month-view")
}

func TestWriteOutput_UnsupportedFormat(t *testing.T) {
	assert.Error(t, writeOutput(&bytes.Buffer{}, "xml", struct{}{}))
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("STORAGE", config.StorageMemory)
	t.Setenv("ENV", "production")
	t.Setenv("AUTH_SIGNING_KEY", testSigningKey)

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--subject", "nurse-1", "--role", "planner"})
	require.NoError(t, cmd.Execute())

	_, h := newTestServer(t, "production")
	rec := serve(h, http.MethodGet, "/api/v1/categories", "Bearer "+strings.TrimSpace(out.String()), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
