package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"GoatedVips/internal/cache"
	"GoatedVips/internal/interfaces"
	"GoatedVips/internal/model"
	"GoatedVips/internal/repository"

	"github.com/sirupsen/logrus"
)

// ErrStatsUnavailable 外部统计源不可达且无可用缓存
var ErrStatsUnavailable = errors.New("外部统计源不可用")

const (
	leaderboardCacheKey = "goated:leaderboard"
	searchResultLimit   = 10
)

// LeaderboardService 榜单聚合服务：读穿缓存拉取外部统计，支持uid查找与按名搜索。
// 对比赛/榜单表只读，不持有任何可写状态。
type LeaderboardService struct {
	fetcher   interfaces.StatsFetcher
	cache     *cache.Store[*model.LeaderboardPayload]
	statsRepo repository.StatsRepository
	logger    *logrus.Logger
}

func NewLeaderboardService(
	fetcher interfaces.StatsFetcher,
	store *cache.Store[*model.LeaderboardPayload],
	statsRepo repository.StatsRepository,
	logger *logrus.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		fetcher:   fetcher,
		cache:     store,
		statsRepo: statsRepo,
		logger:    logger,
	}
}

// FetchStats 取四窗口榜单。TTL内命中缓存；源不可达时回退过期缓存并置Stale；
// 连过期缓存都没有才返回ErrStatsUnavailable，调用方据此隐藏组件而非展示假数据。
func (s *LeaderboardService) FetchStats(ctx context.Context) (*model.LeaderboardPayload, error) {
	payload, stale, err := s.cache.GetOrFetch(ctx, leaderboardCacheKey, s.fetcher.FetchLeaderboard)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
	}
	return markStale(payload, stale), nil
}

// RefreshStats 跳过TTL强制刷新（调度器用），成功后把各窗口落到affiliate_stats缓存表
func (s *LeaderboardService) RefreshStats(ctx context.Context) (*model.LeaderboardPayload, error) {
	payload, stale, err := s.cache.Refresh(ctx, leaderboardCacheKey, s.fetcher.FetchLeaderboard)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
	}
	if !stale && s.statsRepo != nil {
		s.persistStats(ctx, payload)
	}
	return markStale(payload, stale), nil
}

// persistStats 单窗口落库失败只告警，不阻塞刷新链路
func (s *LeaderboardService) persistStats(ctx context.Context, payload *model.LeaderboardPayload) {
	periods := []model.PeriodKey{model.PeriodToday, model.PeriodWeekly, model.PeriodMonthly, model.PeriodAllTime}
	for _, period := range periods {
		if err := s.statsRepo.UpsertPeriodStats(ctx, period, payload.Period(period)); err != nil {
			s.logger.WithError(err).WithField("period", period).Warn("落库affiliate_stats失败")
		}
	}
}

// markStale 缓存内payload是共享对象，置位前先浅拷贝
func markStale(payload *model.LeaderboardPayload, stale bool) *model.LeaderboardPayload {
	if !stale {
		return payload
	}
	p := *payload
	p.Stale = true
	return &p
}

// FindByUID 在指定窗口榜单中按uid查找，未命中返回nil（数据规模下O(n)扫描足够）
func FindByUID(payload *model.LeaderboardPayload, period model.PeriodKey, uid string) *model.LeaderboardEntry {
	if payload == nil || uid == "" {
		return nil
	}
	entries := payload.Period(period)
	for i := range entries {
		if entries[i].UID == uid {
			return &entries[i]
		}
	}
	return nil
}

// Search 跨四窗口按显示名做大小写不敏感的子串匹配。
// 扫描顺序固定为 all_time -> monthly -> weekly -> today，按uid去重（先见者胜），
// 最多返回10条；结果顺序即扫描中的首次命中顺序。
func Search(payload *model.LeaderboardPayload, query string) []model.LeaderboardEntry {
	results := []model.LeaderboardEntry{}
	query = strings.ToLower(strings.TrimSpace(query))
	if payload == nil || query == "" {
		return results
	}

	scanOrder := []model.PeriodKey{model.PeriodAllTime, model.PeriodMonthly, model.PeriodWeekly, model.PeriodToday}
	seen := make(map[string]struct{})
	for _, period := range scanOrder {
		for _, entry := range payload.Period(period) {
			if len(results) >= searchResultLimit {
				return results
			}
			if _, ok := seen[entry.UID]; ok {
				continue
			}
			if strings.Contains(strings.ToLower(entry.Name), query) {
				seen[entry.UID] = struct{}{}
				results = append(results, entry)
			}
		}
	}
	return results
}

// UserPeriodRank 单窗口内某用户的名次切片
type UserPeriodRank struct {
	Rank    int     `json:"rank"` // 0表示该窗口无记录
	Wagered float64 `json:"wagered"`
}

// UserStats /api/affiliate/stats?username= 的单用户切片：按显示名精确匹配（大小写不敏感），
// 给出该用户在四个窗口中的名次与投注额
func UserStats(payload *model.LeaderboardPayload, username string) map[string]UserPeriodRank {
	out := make(map[string]UserPeriodRank, 4)
	if payload == nil {
		return out
	}
	periods := []model.PeriodKey{model.PeriodToday, model.PeriodWeekly, model.PeriodMonthly, model.PeriodAllTime}
	for _, period := range periods {
		for i, entry := range payload.Period(period) {
			if strings.EqualFold(entry.Name, username) {
				out[string(period)] = UserPeriodRank{Rank: i + 1, Wagered: entry.Amount(period)}
				break
			}
		}
	}
	return out
}
