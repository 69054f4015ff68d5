package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"GoatedVips/internal/model"
	"GoatedVips/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRaceNotFound 指定比赛不存在
	ErrRaceNotFound = errors.New("比赛不存在")
	// ErrRaceNotLive 操作要求比赛处于live状态
	ErrRaceNotLive = errors.New("比赛不在进行中")
	// ErrRaceCompleted 比赛已完结，终态不可再变更
	ErrRaceCompleted = errors.New("比赛已完结")
	// ErrRaceStillRunning 未到结束时间且未指定强制完赛
	ErrRaceStillRunning = errors.New("比赛尚未到结束时间")
	// ErrOpenRaceExists 同类型已存在未完成比赛（同一scope最多一场）
	ErrOpenRaceExists = errors.New("同类型已存在未完成的比赛")
)

// Payout 单个玩家的派奖结果
type Payout struct {
	UID      string  `json:"uid"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Amount   float64 `json:"amount"`
}

// CompletionResult 完赛结算结果
type CompletionResult struct {
	RaceID  string   `json:"raceId"`
	Payouts []Payout `json:"payouts"`
}

// RaceService 投注竞赛引擎：独占比赛生命周期与榜单快照的写入权。
// 状态只允许 upcoming -> live -> completed 单向流转；
// 同一比赛的榜单刷新与完赛通过比赛粒度互斥锁串行（单进程部署足够）。
type RaceService struct {
	repo   repository.RaceRepository
	logger *logrus.Logger
	topN   int
	locks  sync.Map // raceID -> *sync.Mutex
	nowFn  func() time.Time
}

func NewRaceService(repo repository.RaceRepository, topN int, logger *logrus.Logger) *RaceService {
	if topN <= 0 {
		topN = 10
	}
	return &RaceService{
		repo:   repo,
		logger: logger,
		topN:   topN,
		nowFn:  time.Now,
	}
}

func (s *RaceService) lockFor(raceID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(raceID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateRace 新建比赛（管理端）。校验时间窗、奖池、派奖百分比，并保证同类型只有一场未完成比赛
func (s *RaceService) CreateRace(ctx context.Context, race *model.WagerRace) error {
	if race.ID == "" {
		return fmt.Errorf("比赛ID不能为空")
	}
	switch race.Type {
	case model.RaceTypeDaily, model.RaceTypeWeekly, model.RaceTypeMonthly:
	default:
		return fmt.Errorf("非法比赛类型: %q", race.Type)
	}
	if !race.StartDate.Before(race.EndDate) {
		return fmt.Errorf("开始时间必须早于结束时间")
	}
	if race.PrizePool < 0 {
		return fmt.Errorf("奖池不能为负")
	}
	if race.MinWager < 0 {
		return fmt.Errorf("参赛门槛不能为负")
	}
	dist, err := model.ParsePrizeDistribution(race.PrizeDistribution)
	if err != nil {
		return err
	}
	if err := model.ValidatePrizeDistribution(dist); err != nil {
		return err
	}
	switch race.Status {
	case "":
		race.Status = model.RaceStatusUpcoming
	case model.RaceStatusUpcoming, model.RaceStatusLive:
	default:
		return fmt.Errorf("新建比赛状态只能为upcoming或live: %q", race.Status)
	}

	exists, err := s.repo.HasOpenRace(ctx, race.Type)
	if err != nil {
		return fmt.Errorf("检查未完成比赛失败: %w", err)
	}
	if exists {
		return ErrOpenRaceExists
	}

	if err := s.repo.CreateRace(ctx, race); err != nil {
		return fmt.Errorf("创建比赛失败: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"race_id": race.ID,
		"type":    race.Type,
		"status":  race.Status,
	}).Info("比赛创建成功")
	return nil
}

// GetCurrentRace 当前live比赛及榜单前topN，无则返回(nil, nil, nil)
func (s *RaceService) GetCurrentRace(ctx context.Context, raceType string) (*model.WagerRace, []*model.WagerRaceParticipant, error) {
	race, err := s.repo.GetLiveRace(ctx, raceType)
	if err != nil || race == nil {
		return nil, nil, err
	}
	rows, err := s.repo.ListParticipants(ctx, race.ID, s.topN)
	if err != nil {
		return nil, nil, err
	}
	return race, rows, nil
}

// GetPreviousRace 最近完成的比赛及终榜，无则返回(nil, nil, nil)
func (s *RaceService) GetPreviousRace(ctx context.Context, raceType string) (*model.WagerRace, []*model.WagerRaceParticipant, error) {
	race, err := s.repo.GetLatestCompletedRace(ctx, raceType)
	if err != nil || race == nil {
		return nil, nil, err
	}
	rows, err := s.repo.ListParticipants(ctx, race.ID, s.topN)
	if err != nil {
		return nil, nil, err
	}
	return race, rows, nil
}

// RefreshStandings 用榜单payload整体重算比赛快照。
// 只接受live比赛；相同输入重复执行产出相同名次（幂等）；落库为单事务整体替换
func (s *RaceService) RefreshStandings(ctx context.Context, race *model.WagerRace, payload *model.LeaderboardPayload) error {
	if payload == nil {
		return fmt.Errorf("榜单数据为空，保留上一次快照")
	}

	mu := s.lockFor(race.ID)
	mu.Lock()
	defer mu.Unlock()

	if race.Status != model.RaceStatusLive {
		s.logger.WithFields(logrus.Fields{
			"race_id": race.ID,
			"status":  race.Status,
		}).Warn("拒绝刷新非live比赛的榜单")
		if race.Status == model.RaceStatusCompleted {
			return ErrRaceCompleted
		}
		return ErrRaceNotLive
	}

	rows := buildStandings(race, payload)
	if err := s.repo.ReplaceParticipants(ctx, race.ID, rows); err != nil {
		return fmt.Errorf("替换比赛快照失败: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"race_id":      race.ID,
		"participants": len(rows),
	}).Debug("比赛榜单刷新完成")
	return nil
}

// buildStandings 窗口榜单 -> 快照行：按minWager过滤资格，名次1起步无空洞，
// 金额相同保持榜单原始顺序（稳定）。同一批次打同一个snapshot_id
func buildStandings(race *model.WagerRace, payload *model.LeaderboardPayload) []*model.WagerRaceParticipant {
	entries := payload.Period(race.PeriodKey())
	snapshotID := uuid.NewString()
	now := time.Now()

	rows := make([]*model.WagerRaceParticipant, 0, len(entries))
	for _, entry := range entries {
		amount := entry.Amount(race.PeriodKey())
		if race.MinWager > 0 && amount < race.MinWager {
			continue
		}
		rows = append(rows, &model.WagerRaceParticipant{
			RaceID:     race.ID,
			UID:        entry.UID,
			Name:       entry.Name,
			Wagered:    amount,
			Position:   len(rows) + 1,
			SnapshotID: snapshotID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return rows
}

// CompleteRace 完赛结算：终榜替换+派奖计算+状态流转，对状态变更原子生效。
// payload为nil时以现有快照为终榜（外部源不可达时不清榜）。
// force仅供管理端提前完赛，会打显式告警日志
func (s *RaceService) CompleteRace(ctx context.Context, race *model.WagerRace, payload *model.LeaderboardPayload, force bool) (*CompletionResult, error) {
	mu := s.lockFor(race.ID)
	mu.Lock()
	defer mu.Unlock()

	switch race.Status {
	case model.RaceStatusCompleted:
		return nil, ErrRaceCompleted
	case model.RaceStatusLive:
	default:
		return nil, ErrRaceNotLive
	}
	if s.nowFn().Before(race.EndDate) && !force {
		return nil, ErrRaceStillRunning
	}
	if force {
		s.logger.WithField("race_id", race.ID).Warn("管理员强制完赛")
	}

	var rows []*model.WagerRaceParticipant
	if payload != nil {
		rows = buildStandings(race, payload)
	} else {
		s.logger.WithField("race_id", race.ID).Warn("完赛时无新榜单数据，沿用现有快照作为终榜")
	}

	ok, err := s.repo.CompleteWithParticipants(ctx, race.ID, rows)
	if err != nil {
		return nil, fmt.Errorf("完赛落库失败: %w", err)
	}
	if !ok {
		// 状态CAS未命中：已被并发流转，终态不可重复结算
		return nil, ErrRaceCompleted
	}
	race.Status = model.RaceStatusCompleted

	finalRows := rows
	if finalRows == nil {
		if finalRows, err = s.repo.ListParticipants(ctx, race.ID, 0); err != nil {
			return nil, fmt.Errorf("读取终榜失败: %w", err)
		}
	}
	payouts, err := computePayouts(race, finalRows)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"race_id": race.ID,
		"payouts": len(payouts),
	}).Info("比赛完结，派奖计算完成")
	return &CompletionResult{RaceID: race.ID, Payouts: payouts}, nil
}

// computePayouts 按百分比口径派奖：amount = prize_pool * pct / 100（四舍五入到分）。
// 未出现在prize_distribution中的名次不派奖，总派奖额不超过奖池
func computePayouts(race *model.WagerRace, rows []*model.WagerRaceParticipant) ([]Payout, error) {
	dist, err := model.ParsePrizeDistribution(race.PrizeDistribution)
	if err != nil {
		return nil, err
	}
	payouts := make([]Payout, 0, len(dist))
	for _, row := range rows {
		pct, ok := dist[row.Position]
		if !ok {
			continue
		}
		payouts = append(payouts, Payout{
			UID:      row.UID,
			Name:     row.Name,
			Position: row.Position,
			Amount:   roundCents(race.PrizePool * pct / 100),
		})
	}
	return payouts, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ListRaces 管理端比赛列表
func (s *RaceService) ListRaces(ctx context.Context, filter repository.RaceFilter, page, pageSize int) ([]*model.WagerRace, int64, error) {
	return s.repo.ListRaces(ctx, filter, page, pageSize)
}

// ForceCompleteRace 管理端强制完赛入口
func (s *RaceService) ForceCompleteRace(ctx context.Context, raceID string, payload *model.LeaderboardPayload) (*CompletionResult, error) {
	race, err := s.repo.GetRaceByID(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if race == nil {
		return nil, ErrRaceNotFound
	}
	return s.CompleteRace(ctx, race, payload, true)
}

// ActivateDueRaces 把到点的upcoming比赛流转为live；同类型已有live比赛时跳过并告警
func (s *RaceService) ActivateDueRaces(ctx context.Context, now time.Time) (int, error) {
	races, err := s.repo.ListDueUpcomingRaces(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("查询到点比赛失败: %w", err)
	}

	activated := 0
	for _, race := range races {
		live, err := s.repo.GetLiveRace(ctx, race.Type)
		if err != nil {
			s.logger.WithError(err).WithField("race_id", race.ID).Warn("检查同类型live比赛失败，跳过")
			continue
		}
		if live != nil {
			s.logger.WithFields(logrus.Fields{
				"race_id": race.ID,
				"live_id": live.ID,
			}).Warn("同类型已有live比赛，暂不开赛")
			continue
		}
		ok, err := s.repo.UpdateStatus(ctx, race.ID, model.RaceStatusUpcoming, model.RaceStatusLive)
		if err != nil {
			s.logger.WithError(err).WithField("race_id", race.ID).Warn("开赛流转失败")
			continue
		}
		if ok {
			activated++
			s.logger.WithField("race_id", race.ID).Info("比赛开始")
		}
	}
	return activated, nil
}

// CompleteExpiredRaces 结算所有已过结束时间仍为live的比赛；单场失败不阻塞整次扫描
func (s *RaceService) CompleteExpiredRaces(ctx context.Context, payload *model.LeaderboardPayload, now time.Time) error {
	races, err := s.repo.ListExpiredLiveRaces(ctx, now)
	if err != nil {
		return fmt.Errorf("查询到期比赛失败: %w", err)
	}
	for _, race := range races {
		result, err := s.CompleteRace(ctx, race, payload, false)
		if err != nil {
			s.logger.WithError(err).WithField("race_id", race.ID).Warn("完赛结算失败，等待下一轮重试")
			continue
		}
		for _, p := range result.Payouts {
			s.logger.WithFields(logrus.Fields{
				"race_id":  race.ID,
				"uid":      p.UID,
				"position": p.Position,
				"amount":   p.Amount,
			}).Info("派奖")
		}
	}
	return nil
}
