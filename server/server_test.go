package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/service"
)

type stubEngine struct {
	lastReq    service.Request
	lastPeriod core.Period
	lastClick  service.ClickRequest
	recErr     error
	clickErr   error
}

func (s *stubEngine) Recommend(_ context.Context, req service.Request) (*service.Response, error) {
	s.lastReq = req
	if s.recErr != nil {
		return nil, s.recErr
	}
	if _, err := core.ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}
	return &service.Response{
		UserID: req.UserID,
		Mode:   req.Mode,
		Recommendations: []*core.Recommendation{{
			Key:        core.ItemKey{Type: core.ItemTypeRecipe, ID: 7},
			BaseScore:  90,
			FinalScore: 100,
			Reasons:    []string{"Perfecto para la hora de comer"},
			Sources:    []core.Algorithm{core.AlgorithmAdvanced},
		}},
	}, nil
}

func (s *stubEngine) Stats(_ context.Context, userID string) *service.StatsResponse {
	return &service.StatsResponse{UserID: userID, TotalEvents: 3}
}

func (s *stubEngine) Accuracy(_ context.Context, period core.Period) (*service.AccuracyReport, error) {
	s.lastPeriod = period
	return &service.AccuracyReport{Period: period}, nil
}

func (s *stubEngine) TrackClick(_ context.Context, req service.ClickRequest) (core.ClickEvent, error) {
	s.lastClick = req
	if s.clickErr != nil {
		return core.ClickEvent{}, s.clickErr
	}
	return core.ClickEvent{ID: "c1", UserID: req.UserID, Attributed: true}, nil
}

func (s *stubEngine) DefaultLimit() int { return 10 }

var fixedNow = time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)

func newTestServer() (*stubEngine, http.Handler) {
	eng := &stubEngine{}
	srv := New(eng, zerolog.Nop())
	srv.Now = func() time.Time { return fixedNow }
	return eng, srv.Routes()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRecommendRoute(t *testing.T) {
	eng, h := newTestServer()

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantLimit int
	}{
		{"default limit", "/recommendations/hybrid?user_id=u1", http.StatusOK, 10},
		{"explicit limit", "/recommendations/advanced?user_id=u1&limit=3&device=mobile", http.StatusOK, 3},
		{"zero limit", "/recommendations/ml?user_id=u1&limit=0", http.StatusOK, 0},
		{"bad limit", "/recommendations/ml?user_id=u1&limit=abc", http.StatusBadRequest, -1},
		{"bad mode", "/recommendations/popular?user_id=u1", http.StatusBadRequest, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng.lastReq = service.Request{Limit: -1}
			rec := do(h, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, 期望 %d, body=%s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if eng.lastReq.Limit != tt.wantLimit {
				t.Errorf("limit = %d, 期望 %d", eng.lastReq.Limit, tt.wantLimit)
			}
		})
	}

	rec := do(h, http.MethodGet, "/recommendations/advanced?user_id=u1&device=mobile", "")
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	items := body["recommendations"].([]any)
	first := items[0].(map[string]any)
	if first["score"].(float64) != 100 || first["razon"] == nil {
		t.Errorf("响应字段错误: %v", first)
	}
	if eng.lastReq.Device != "mobile" || eng.lastReq.Mode != core.AlgorithmAdvanced {
		t.Errorf("请求参数未透传: %+v", eng.lastReq)
	}
}

func TestRecommendInternalError(t *testing.T) {
	eng, h := newTestServer()
	eng.recErr = core.ErrNoGenerators
	rec := do(h, http.MethodGet, "/recommendations/hybrid?user_id=u1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("结构性错误应返回 500, got %d", rec.Code)
	}
}

func TestStatsRoute(t *testing.T) {
	_, h := newTestServer()
	if rec := do(h, http.MethodGet, "/recommendations/stats", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("缺少 user_id 应返回 400, got %d", rec.Code)
	}
	rec := do(h, http.MethodGet, "/recommendations/stats?user_id=u1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total_events":3`) {
		t.Errorf("stats 响应错误: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAccuracyRoute(t *testing.T) {
	eng, h := newTestServer()

	rec := do(h, http.MethodGet, "/recommendations/accuracy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !eng.lastPeriod.To.Equal(fixedNow) || !eng.lastPeriod.From.Equal(fixedNow.Add(-DefaultAccuracyPeriod)) {
		t.Errorf("默认周期错误: %+v", eng.lastPeriod)
	}

	rec = do(h, http.MethodGet, "/recommendations/accuracy?from=2026-10-01T00:00:00Z&to=2026-10-02T00:00:00Z", "")
	if rec.Code != http.StatusOK || eng.lastPeriod.From.Day() != 1 || eng.lastPeriod.To.Day() != 2 {
		t.Errorf("周期解析错误: %d %+v", rec.Code, eng.lastPeriod)
	}

	if rec := do(h, http.MethodGet, "/recommendations/accuracy?from=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("非法时间应返回 400, got %d", rec.Code)
	}
}

func TestClickRoute(t *testing.T) {
	eng, h := newTestServer()

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"ok", `{"user_id":"u1","item_type":"recipe","item_id":42,"position":3,"algorithm":"hybrid"}`, http.StatusCreated},
		{"missing user", `{"item_type":"recipe","item_id":42}`, http.StatusBadRequest},
		{"missing item", `{"user_id":"u1","item_type":"recipe"}`, http.StatusBadRequest},
		{"negative position", `{"user_id":"u1","item_type":"recipe","item_id":1,"position":-1}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/recommendations/click-tracking", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, 期望 %d, body=%s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
	if eng.lastClick.ItemID != 42 || eng.lastClick.Position != 3 || eng.lastClick.Algorithm != core.AlgorithmHybrid {
		t.Errorf("点击参数未透传: %+v", eng.lastClick)
	}

	eng.clickErr = errors.New("redis down")
	ok := `{"user_id":"u1","item_type":"recipe","item_id":42}`
	if rec := do(h, http.MethodPost, "/recommendations/click-tracking", ok); rec.Code != http.StatusInternalServerError {
		t.Errorf("写入失败应返回 500, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := newTestServer()
	if rec := do(h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hybridrec_") {
		t.Errorf("metrics 应暴露 hybridrec 指标")
	}
}

type fakeHTTPServer struct {
	stop     chan struct{}
	shutdown bool
}

func (f *fakeHTTPServer) ListenAndServe() error {
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdown = true
	close(f.stop)
	return nil
}

func TestHTTPServiceShutdown(t *testing.T) {
	fake := &fakeHTTPServer{stop: make(chan struct{})}
	svc := NewHTTPService(fake, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve 返回 %v, 期望 context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve 没有退出")
	}
	if !fake.shutdown {
		t.Error("应调用 Shutdown")
	}
}
