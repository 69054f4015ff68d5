package goated

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"GoatedVips/internal/config"
	"GoatedVips/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	cfg := &config.GoatedConfig{
		BaseURL:         baseURL,
		LeaderboardPath: "/leaderboard",
		Token:           "test-token",
		Timeout:         2,
		RetryCount:      3,
	}
	a := NewGoatedAdapter(cfg, testLogger()).(*Adapter)
	// 测试里用毫秒级常数退避，避免真实指数间隔拖慢用例
	a.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), uint64(cfg.RetryCount))
	}
	return a
}

const feedBody = `{"data": [
	{"uid": "u1", "name": "Alice", "wagered": {"today": 100, "this_week": 500, "this_month": 2000, "all_time": 9000}},
	{"uid": "u2", "name": "Bob", "wagered": {"today": 300, "this_week": 400, "this_month": 3000, "all_time": 8000}},
	{"uid": "u3", "name": "", "wagered": {"today": 0, "this_week": 0, "this_month": 1000, "all_time": 1000}},
	{"uid": "u4", "name": "Mallory", "wagered": {"today": -5, "this_month": 500, "all_time": 500}},
	{"uid": "u5", "name": "NoWager"}
]}`

func TestFetchLeaderboardNormalizes(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	payload, err := a.FetchLeaderboard(context.Background())
	if err != nil {
		t.Fatalf("expected success, got error %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}

	// 缺wagered对象的u5整条丢弃
	if payload.TotalUsers != 4 {
		t.Fatalf("expected 4 users, got %d", payload.TotalUsers)
	}

	// today窗口：u4负数钳0后剔除，u3为0剔除，剩 u2(300) > u1(100)
	wantToday := []string{"u2", "u1"}
	if len(payload.Today) != len(wantToday) {
		t.Fatalf("today: expected %d entries, got %d", len(wantToday), len(payload.Today))
	}
	for i, uid := range wantToday {
		if payload.Today[i].UID != uid {
			t.Fatalf("today[%d]: expected %s, got %s", i, uid, payload.Today[i].UID)
		}
	}

	// monthly窗口：u2(3000) > u1(2000) > u3(1000) > u4(500)，降序
	wantMonthly := []string{"u2", "u1", "u3", "u4"}
	for i, uid := range wantMonthly {
		if payload.Monthly[i].UID != uid {
			t.Fatalf("monthly[%d]: expected %s, got %s", i, uid, payload.Monthly[i].UID)
		}
	}
	for i := 1; i < len(payload.Monthly); i++ {
		if payload.Monthly[i].Wagered.ThisMonth > payload.Monthly[i-1].Wagered.ThisMonth {
			t.Fatalf("monthly not sorted desc at index %d", i)
		}
	}

	// 空显示名落为Anonymous
	if payload.Monthly[2].Name != "Anonymous" {
		t.Fatalf("expected Anonymous, got %q", payload.Monthly[2].Name)
	}
	if payload.Stale {
		t.Fatal("fresh payload must not be stale")
	}
}

func TestFetchLeaderboardRetriesAndSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 先失败两次，第3次成功（退避预算内）
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	payload, err := a.FetchLeaderboard(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if payload.TotalUsers != 4 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", got)
	}
}

func TestFetchLeaderboardExhaustsRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	if _, err := a.FetchLeaderboard(context.Background()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// 1次原始请求 + 3次重试
	if got := atomic.LoadInt32(&hits); got != 4 {
		t.Fatalf("expected 4 upstream calls, got %d", got)
	}
}

func TestBuildPayloadKeepsTieOrder(t *testing.T) {
	entries := []model.GoatedEntry{
		{UID: "a", Name: "A", Wagered: &model.GoatedWagered{ThisMonth: 100}},
		{UID: "b", Name: "B", Wagered: &model.GoatedWagered{ThisMonth: 100}},
		{UID: "c", Name: "C", Wagered: &model.GoatedWagered{ThisMonth: 200}},
	}
	payload := buildPayload(entries, time.Now())

	want := []string{"c", "a", "b"} // 同额保持原始顺序（稳定排序）
	for i, uid := range want {
		if payload.Monthly[i].UID != uid {
			t.Fatalf("monthly[%d]: expected %s, got %s", i, uid, payload.Monthly[i].UID)
		}
	}
}
