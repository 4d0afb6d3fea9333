// Package integration drives a fully wired server over real HTTP.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agriapp/server/api"
	apirest "github.com/agriapp/server/api/rest"
	"github.com/agriapp/server/api/sse"
	"github.com/agriapp/server/audit"
	"github.com/agriapp/server/cache"
	"github.com/agriapp/server/config"
	mw "github.com/agriapp/server/middleware"
	"github.com/agriapp/server/progress"
	"github.com/agriapp/server/scheduler"
	"github.com/agriapp/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the admin key the test server accepts.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Ranking *progress.Ranking
	Sched   *scheduler.Scheduler
	Audit   *audit.Service
	Server  *httptest.Server
	URL     string
	Sec     config.SecurityConfig

	cancel context.CancelFunc
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	auditSvc := audit.New(db, logger)
	ranking := progress.NewRanking(c, 100)
	records := progress.NewGormProgressStore(db)
	svc := progress.NewService(
		progress.NewGormPlanStore(db),
		records,
		logger,
		progress.WithLocker(progress.NewCacheLocker(c, 5*time.Second, 2*time.Second)),
		progress.WithPublisher(pubsub),
		progress.WithRanking(ranking),
	)

	sched := scheduler.New(logger)
	sched.AddTicker(apirest.RankingRefreshTask, time.Hour, func(ctx context.Context) error {
		_, err := ranking.Rebuild(ctx, records)
		return err
	})

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	sseH := sse.NewHandler(pubsub, c, sec, logger)
	routes := &api.Routes{
		Auth:        apirest.NewAuthHandler(db, c, sec).WithBcryptCost(4),
		Plans:       apirest.NewPlanHandler(db, logger),
		Progress:    apirest.NewProgressHandler(svc, auditSvc, logger),
		Ranking:     apirest.NewRankingHandler(db, ranking, records, logger),
		Admin:       apirest.NewAdminHandler(db, sched, sseH, logger),
		SSE:         sseH,
		RequireAuth: mw.Auth(sec, c),
		AdminGuards: []gin.HandlerFunc{
			mw.IPWhitelist([]string{"127.0.0.1", "::1"}, logger),
			apirest.AdminAuth(AdminKey),
		},
	}
	routes.Register(r)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Ranking: ranking,
		Sched:   sched,
		Audit:   auditSvc,
		Server:  server,
		URL:     server.URL,
		Sec:     sec,
		cancel:  cancel,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the server and background workers. Safe to call twice.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ts.Audit.Stop(ctx)
	ts.cancel()
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body. headers are name/value pairs.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// Put sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) Put(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPut, path, body, token)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// RequireStatus fails the test unless resp has the given status, then
// decodes the body into target when it is non-nil.
func RequireStatus(t *testing.T, resp *http.Response, status int, target interface{}) {
	t.Helper()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.Failf(t, "unexpected status", "want %d got %d: %s", status, resp.StatusCode, data)
	}
	if target == nil {
		resp.Body.Close()
		return
	}
	ReadJSON(t, resp, target)
}

// --- Domain helpers ---

// Login logs in (auto-registers on first call) and returns the token and user id.
func (ts *TestServer) Login(t *testing.T, username, password string) (token, userID string) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	var result struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	RequireStatus(t, resp, http.StatusOK, &result)
	return result.Token, result.UserID
}

// CreatePlan creates a public plan with the given milestone ids and tags.
func (ts *TestServer) CreatePlan(t *testing.T, token, title string, milestoneIDs []string, tags ...string) string {
	t.Helper()
	milestones := make([]map[string]string, len(milestoneIDs))
	for i, id := range milestoneIDs {
		milestones[i] = map[string]string{"id": id, "title": "step " + id}
	}
	resp := ts.PostJSON(t, "/api/plans", map[string]interface{}{
		"title":      title,
		"tags":       tags,
		"milestones": milestones,
		"is_public":  true,
	}, token)
	var plan struct {
		ID string `json:"id"`
	}
	RequireStatus(t, resp, http.StatusCreated, &plan)
	return plan.ID
}

var uniqueCounter int64

// UniqueID returns prefix plus a process-unique suffix.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, atomic.AddInt64(&uniqueCounter, 1))
}
