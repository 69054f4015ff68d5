package service

import (
	"context"
	"strings"

	"GoatedVips/internal/model"
	"GoatedVips/internal/repository"

	"github.com/sirupsen/logrus"
)

// PositionService 名次查询服务：回答"我现在第几名、名次变了没"。
// 只读消费比赛快照与榜单聚合，绝不返回伪造数据——源不可达时给显式降级标记
type PositionService struct {
	leaderboard *LeaderboardService
	repo        repository.RaceRepository
	logger      *logrus.Logger
}

func NewPositionService(leaderboard *LeaderboardService, repo repository.RaceRepository, logger *logrus.Logger) *PositionService {
	return &PositionService{
		leaderboard: leaderboard,
		repo:        repo,
		logger:      logger,
	}
}

// GetPosition 查用户在当前live比赛中的名次视图。
// 无live比赛返回(nil, nil)；用户本窗口无投注记录返回Ranked=false（不是错误）；
// 快照为空且外部源不可达时返回Degraded=true的占位结果
func (s *PositionService) GetPosition(ctx context.Context, uid, username string) (*model.RacePosition, error) {
	race, err := s.repo.GetLiveRace(ctx, "")
	if err != nil {
		return nil, err
	}
	if race == nil {
		return nil, nil
	}

	total, err := s.repo.CountParticipants(ctx, race.ID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		// 快照尚未生成（比赛刚开或刷新一直失败），直接对聚合器兜底
		return s.positionFromStats(ctx, race, uid, username), nil
	}

	row, err := s.repo.GetParticipantByUID(ctx, race.ID, uid)
	if err != nil {
		return nil, err
	}
	if row == nil && username != "" {
		if row, err = s.repo.GetParticipantByName(ctx, race.ID, username); err != nil {
			return nil, err
		}
	}

	pos := s.basePosition(race)
	pos.TotalParticipants = int(total)
	if row == nil {
		return pos, nil // 未上榜：尚未投注或未达门槛
	}
	pos.Ranked = true
	pos.Position = row.Position
	pos.WagerAmount = row.Wagered
	pos.PreviousPosition = row.PreviousPosition
	return pos, nil
}

// positionFromStats 快照缺失时的兜底路径：直接在聚合榜单里找名次（无历史名次可比）
func (s *PositionService) positionFromStats(ctx context.Context, race *model.WagerRace, uid, username string) *model.RacePosition {
	pos := s.basePosition(race)

	payload, err := s.leaderboard.FetchStats(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("race_id", race.ID).Warn("快照缺失且统计源不可用，返回降级结果")
		pos.Degraded = true
		return pos
	}

	entries := payload.Period(race.PeriodKey())
	pos.TotalParticipants = len(entries)
	pos.Degraded = payload.Stale
	for i, entry := range entries {
		if entry.UID == uid || (username != "" && strings.EqualFold(entry.Name, username)) {
			pos.Ranked = true
			pos.Position = i + 1
			pos.WagerAmount = entry.Amount(race.PeriodKey())
			return pos
		}
	}
	return pos
}

func (s *PositionService) basePosition(race *model.WagerRace) *model.RacePosition {
	return &model.RacePosition{
		RaceType:  race.Type,
		RaceTitle: race.Title,
		EndDate:   race.EndDate,
	}
}
