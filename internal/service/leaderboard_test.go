package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"GoatedVips/internal/cache"
	"GoatedVips/internal/model"
)

// fakeFetcher 可编程的外部源替身
type fakeFetcher struct {
	payload *model.LeaderboardPayload
	err     error
	calls   int
}

func (f *fakeFetcher) GetName() string { return "fake" }

func (f *fakeFetcher) FetchLeaderboard(ctx context.Context) (*model.LeaderboardPayload, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

// fakeStatsRepo 记录落库调用
type fakeStatsRepo struct {
	upserts map[model.PeriodKey][]model.LeaderboardEntry
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{upserts: make(map[model.PeriodKey][]model.LeaderboardEntry)}
}

func (f *fakeStatsRepo) UpsertPeriodStats(ctx context.Context, period model.PeriodKey, entries []model.LeaderboardEntry) error {
	f.upserts[period] = entries
	return nil
}

func (f *fakeStatsRepo) ListPeriodStats(ctx context.Context, period model.PeriodKey, limit int) ([]*model.AffiliateStat, error) {
	return nil, nil
}

func newTestLeaderboardService(fetcher *fakeFetcher, ttl time.Duration, statsRepo *fakeStatsRepo) *LeaderboardService {
	logger := testLogger()
	store := cache.NewStore[*model.LeaderboardPayload](16, ttl, logger)
	if statsRepo == nil {
		return NewLeaderboardService(fetcher, store, nil, logger)
	}
	return NewLeaderboardService(fetcher, store, statsRepo, logger)
}

func fullPayload() *model.LeaderboardPayload {
	entry := func(uid, name string, today, week, month, all float64) model.LeaderboardEntry {
		return model.LeaderboardEntry{
			UID:  uid,
			Name: name,
			Wagered: model.WagerData{
				Today: today, ThisWeek: week, ThisMonth: month, AllTime: all,
			},
		}
	}
	return &model.LeaderboardPayload{
		TotalUsers:  4,
		LastUpdated: time.Now(),
		Today: []model.LeaderboardEntry{
			entry("u3", "Carol", 300, 900, 2000, 5000),
			entry("u1", "Alice", 100, 1200, 4000, 9000),
		},
		Weekly: []model.LeaderboardEntry{
			entry("u1", "Alice", 100, 1200, 4000, 9000),
			entry("u3", "Carol", 300, 900, 2000, 5000),
		},
		Monthly: []model.LeaderboardEntry{
			entry("u1", "Alice", 100, 1200, 4000, 9000),
			entry("u2", "Bob", 0, 0, 3000, 7000),
			entry("u3", "Carol", 300, 900, 2000, 5000),
		},
		AllTime: []model.LeaderboardEntry{
			entry("u1", "Alice", 100, 1200, 4000, 9000),
			entry("u2", "Bob", 0, 0, 3000, 7000),
			entry("u3", "Carol", 300, 900, 2000, 5000),
			entry("u4", "dave", 0, 0, 0, 1000),
		},
	}
}

func TestFetchStatsCachesWithinTTL(t *testing.T) {
	fetcher := &fakeFetcher{payload: fullPayload()}
	svc := newTestLeaderboardService(fetcher, time.Minute, nil)

	for i := 0; i < 3; i++ {
		payload, err := svc.FetchStats(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payload.Stale {
			t.Fatal("fresh payload should not be stale")
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", fetcher.calls)
	}
}

func TestFetchStatsStaleFallback(t *testing.T) {
	fetcher := &fakeFetcher{payload: fullPayload()}
	svc := newTestLeaderboardService(fetcher, 10*time.Millisecond, nil)

	first, err := svc.FetchStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	fetcher.err = errors.New("upstream down")

	second, err := svc.FetchStats(context.Background())
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !second.Stale {
		t.Fatal("fallback payload should carry stale flag")
	}
	if second.TotalUsers != first.TotalUsers {
		t.Fatal("fallback should reuse last good payload")
	}
	// 缓存里的共享对象不能被置位污染
	if first.Stale {
		t.Fatal("original payload mutated by stale marking")
	}
}

func TestFetchStatsUnavailableWithoutCache(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream down")}
	svc := newTestLeaderboardService(fetcher, time.Minute, nil)

	if _, err := svc.FetchStats(context.Background()); !errors.Is(err, ErrStatsUnavailable) {
		t.Fatalf("expected ErrStatsUnavailable, got %v", err)
	}
}

func TestRefreshStatsBypassesTTLAndPersists(t *testing.T) {
	fetcher := &fakeFetcher{payload: fullPayload()}
	repo := newFakeStatsRepo()
	svc := newTestLeaderboardService(fetcher, time.Minute, repo)

	if _, err := svc.RefreshStats(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RefreshStats(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("refresh should bypass TTL, got %d calls", fetcher.calls)
	}

	for _, period := range []model.PeriodKey{model.PeriodToday, model.PeriodWeekly, model.PeriodMonthly, model.PeriodAllTime} {
		if _, ok := repo.upserts[period]; !ok {
			t.Fatalf("period %s not persisted", period)
		}
	}
	if len(repo.upserts[model.PeriodAllTime]) != 4 {
		t.Fatalf("expected 4 all_time rows persisted, got %d", len(repo.upserts[model.PeriodAllTime]))
	}
}

func TestRefreshStatsSkipsPersistWhenStale(t *testing.T) {
	fetcher := &fakeFetcher{payload: fullPayload()}
	repo := newFakeStatsRepo()
	svc := newTestLeaderboardService(fetcher, time.Minute, repo)

	if _, err := svc.RefreshStats(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repo.upserts = make(map[model.PeriodKey][]model.LeaderboardEntry)

	fetcher.err = errors.New("upstream down")
	payload, err := svc.RefreshStats(context.Background())
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !payload.Stale {
		t.Fatal("expected stale payload")
	}
	if len(repo.upserts) != 0 {
		t.Fatalf("stale payload must not be persisted, got %d periods", len(repo.upserts))
	}
}

func TestFindByUID(t *testing.T) {
	payload := fullPayload()

	entry := FindByUID(payload, model.PeriodMonthly, "u2")
	if entry == nil || entry.Name != "Bob" {
		t.Fatalf("expected Bob, got %+v", entry)
	}
	if FindByUID(payload, model.PeriodToday, "u2") != nil {
		t.Fatal("u2 has no today record")
	}
	if FindByUID(payload, model.PeriodMonthly, "") != nil {
		t.Fatal("empty uid should not match")
	}
	if FindByUID(nil, model.PeriodMonthly, "u2") != nil {
		t.Fatal("nil payload should return nil")
	}
}

func TestSearch(t *testing.T) {
	payload := fullPayload()

	t.Run("case insensitive substring", func(t *testing.T) {
		results := Search(payload, "ALI")
		if len(results) != 1 || results[0].UID != "u1" {
			t.Fatalf("expected only Alice, got %+v", results)
		}
	})

	t.Run("dedup across periods", func(t *testing.T) {
		// Carol 出现在全部四个窗口，只返回一条
		results := Search(payload, "carol")
		if len(results) != 1 || results[0].UID != "u3" {
			t.Fatalf("expected single Carol, got %+v", results)
		}
	})

	t.Run("scan order all_time first", func(t *testing.T) {
		// dave 只在 all_time 窗口出现
		results := Search(payload, "dave")
		if len(results) != 1 || results[0].UID != "u4" {
			t.Fatalf("expected dave from all_time, got %+v", results)
		}
	})

	t.Run("first hit order preserved", func(t *testing.T) {
		results := Search(payload, "o") // Bob, Carol 命中
		if len(results) != 2 || results[0].UID != "u2" || results[1].UID != "u3" {
			t.Fatalf("expected [u2, u3], got %+v", results)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		if got := Search(payload, "   "); len(got) != 0 {
			t.Fatalf("expected empty results, got %+v", got)
		}
	})

	t.Run("cap at 10", func(t *testing.T) {
		big := &model.LeaderboardPayload{}
		for i := 0; i < 25; i++ {
			big.AllTime = append(big.AllTime, model.LeaderboardEntry{
				UID:  fmt.Sprintf("p%d", i),
				Name: fmt.Sprintf("player%d", i),
			})
		}
		results := Search(big, "player")
		if len(results) != 10 {
			t.Fatalf("expected 10 results, got %d", len(results))
		}
		// 截断保留扫描中的先见顺序
		if results[0].UID != "p0" || results[9].UID != "p9" {
			t.Fatalf("unexpected cap ordering: first=%s last=%s", results[0].UID, results[9].UID)
		}
	})
}

func TestUserStats(t *testing.T) {
	payload := fullPayload()

	stats := UserStats(payload, "alice")
	if len(stats) != 4 {
		t.Fatalf("Alice should rank in all 4 periods, got %d", len(stats))
	}
	if stats["today"].Rank != 2 || stats["today"].Wagered != 100 {
		t.Fatalf("unexpected today stats: %+v", stats["today"])
	}
	if stats["weekly"].Rank != 1 || stats["weekly"].Wagered != 1200 {
		t.Fatalf("unexpected weekly stats: %+v", stats["weekly"])
	}
	if stats["all_time"].Rank != 1 || stats["all_time"].Wagered != 9000 {
		t.Fatalf("unexpected all_time stats: %+v", stats["all_time"])
	}

	partial := UserStats(payload, "Bob")
	if _, ok := partial["today"]; ok {
		t.Fatal("Bob has no today record")
	}
	if partial["monthly"].Rank != 2 {
		t.Fatalf("expected Bob monthly rank 2, got %d", partial["monthly"].Rank)
	}

	if got := UserStats(payload, "nobody"); len(got) != 0 {
		t.Fatalf("unknown user should have empty stats, got %+v", got)
	}
}
