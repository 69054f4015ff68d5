package service

import (
	"context"
	"time"

	"GoatedVips/internal/config"
	"GoatedVips/internal/model"

	"github.com/sirupsen/logrus"
)

// SyncService 后台调度：按固定周期拉取外部统计并推进比赛生命周期。
// 单轮顺序：刷新统计 -> 开赛到点的比赛 -> 刷新live比赛榜单 -> 结算到期比赛。
// 拉取失败只告警并保留上一次快照，等下一轮重试，不中断调度
type SyncService struct {
	leaderboard *LeaderboardService
	races       *RaceService
	cfg         *config.SyncConfig
	logger      *logrus.Logger
}

func NewSyncService(leaderboard *LeaderboardService, races *RaceService, cfg *config.SyncConfig, logger *logrus.Logger) *SyncService {
	return &SyncService{
		leaderboard: leaderboard,
		races:       races,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start 阻塞运行调度循环，ctx取消后退出。启动时先跑一轮
func (s *SyncService) Start(ctx context.Context) {
	s.logger.Infof("同步调度启动，周期: %s", s.cfg.Interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同步调度退出")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce 执行单轮同步
func (s *SyncService) RunOnce(ctx context.Context) {
	now := time.Now()

	payload, err := s.leaderboard.RefreshStats(ctx)
	if err != nil {
		// 保留上一次快照，榜单刷新本轮跳过；比赛生命周期流转照常推进
		s.logger.WithError(err).Warn("本轮统计刷新失败，保留上一次快照")
		payload = nil
	}

	if _, err := s.races.ActivateDueRaces(ctx, now); err != nil {
		s.logger.WithError(err).Warn("开赛扫描失败")
	}

	if payload != nil {
		s.refreshLiveRaces(ctx, payload)
	}

	if err := s.races.CompleteExpiredRaces(ctx, payload, now); err != nil {
		s.logger.WithError(err).Warn("完赛扫描失败")
	}
}

// refreshLiveRaces 逐场刷新live比赛榜单，单场失败不阻塞整轮
func (s *SyncService) refreshLiveRaces(ctx context.Context, payload *model.LeaderboardPayload) {
	races, err := s.races.repo.ListLiveRaces(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("查询live比赛失败")
		return
	}
	for _, race := range races {
		if err := s.races.RefreshStandings(ctx, race, payload); err != nil {
			s.logger.WithError(err).WithField("race_id", race.ID).Warn("刷新比赛榜单失败")
		}
	}
}
