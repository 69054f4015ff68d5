package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"GoatedVips/internal/model"

	"gorm.io/gorm"
)

// RaceFilter 比赛列表筛选条件
type RaceFilter struct {
	Status string // upcoming / live / completed
	Type   string // daily / weekly / monthly
}

// RaceRepository 比赛与榜单快照仓储接口。
// 竞赛引擎是唯一写入方，聚合器与名次服务只读。
type RaceRepository interface {
	// CreateRace 新建比赛
	CreateRace(ctx context.Context, race *model.WagerRace) error
	// GetRaceByID 按业务键查比赛，不存在返回(nil, nil)
	GetRaceByID(ctx context.Context, id string) (*model.WagerRace, error)
	// GetLiveRace 查指定类型当前live的比赛，不存在返回(nil, nil)
	GetLiveRace(ctx context.Context, raceType string) (*model.WagerRace, error)
	// GetLatestCompletedRace 查指定类型最近完成的比赛
	GetLatestCompletedRace(ctx context.Context, raceType string) (*model.WagerRace, error)
	// ListRaces 按条件分页查比赛（管理端用）
	ListRaces(ctx context.Context, filter RaceFilter, page, pageSize int) ([]*model.WagerRace, int64, error)
	// ListLiveRaces 所有live比赛（调度器刷新榜单用）
	ListLiveRaces(ctx context.Context) ([]*model.WagerRace, error)
	// ListDueUpcomingRaces 已到开始时间仍为upcoming的比赛
	ListDueUpcomingRaces(ctx context.Context, now time.Time) ([]*model.WagerRace, error)
	// ListExpiredLiveRaces 已过结束时间仍为live的比赛（供完赛结算）
	ListExpiredLiveRaces(ctx context.Context, now time.Time) ([]*model.WagerRace, error)
	// HasOpenRace 指定类型是否已有未完成（upcoming/live）比赛
	HasOpenRace(ctx context.Context, raceType string) (bool, error)
	// UpdateStatus 状态check-and-set，命中返回true（同一比赛并发流转只有一方成功）
	UpdateStatus(ctx context.Context, raceID, from, to string) (bool, error)
	// ReplaceParticipants 整体替换比赛榜单快照，并把旧名次带入previous_position
	ReplaceParticipants(ctx context.Context, raceID string, rows []*model.WagerRaceParticipant) error
	// CompleteWithParticipants 终榜替换+live->completed流转，同一事务内原子完成；
	// rows为nil表示保留现有快照作为终榜。状态CAS未命中返回false并整体回滚
	CompleteWithParticipants(ctx context.Context, raceID string, rows []*model.WagerRaceParticipant) (bool, error)
	// ListParticipants 按名次升序取榜单，limit<=0取全部
	ListParticipants(ctx context.Context, raceID string, limit int) ([]*model.WagerRaceParticipant, error)
	// CountParticipants 榜单行数
	CountParticipants(ctx context.Context, raceID string) (int64, error)
	// GetParticipantByUID 查单个玩家的快照行，不存在返回(nil, nil)
	GetParticipantByUID(ctx context.Context, raceID, uid string) (*model.WagerRaceParticipant, error)
	// GetParticipantByName 按显示名查快照行（uid未命中时的兜底匹配）
	GetParticipantByName(ctx context.Context, raceID, name string) (*model.WagerRaceParticipant, error)
}

type raceRepository struct {
	db *gorm.DB
}

// NewRaceRepository 创建RaceRepository实例
func NewRaceRepository(db *gorm.DB) RaceRepository {
	return &raceRepository{db: db}
}

func (r *raceRepository) CreateRace(ctx context.Context, race *model.WagerRace) error {
	return r.db.WithContext(ctx).Create(race).Error
}

func (r *raceRepository) GetRaceByID(ctx context.Context, id string) (*model.WagerRace, error) {
	var race model.WagerRace
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&race).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &race, nil
}

func (r *raceRepository) GetLiveRace(ctx context.Context, raceType string) (*model.WagerRace, error) {
	var race model.WagerRace
	db := r.db.WithContext(ctx).Where("status = ?", model.RaceStatusLive)
	if raceType != "" {
		db = db.Where("type = ?", raceType)
	}
	if err := db.Order("start_date DESC").First(&race).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &race, nil
}

func (r *raceRepository) GetLatestCompletedRace(ctx context.Context, raceType string) (*model.WagerRace, error) {
	var race model.WagerRace
	db := r.db.WithContext(ctx).Where("status = ?", model.RaceStatusCompleted)
	if raceType != "" {
		db = db.Where("type = ?", raceType)
	}
	if err := db.Order("end_date DESC").First(&race).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &race, nil
}

func (r *raceRepository) ListRaces(ctx context.Context, filter RaceFilter, page, pageSize int) ([]*model.WagerRace, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	db := r.db.WithContext(ctx).Model(&model.WagerRace{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		db = db.Where("type = ?", filter.Type)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var races []*model.WagerRace
	if err := db.
		Order("start_date DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&races).Error; err != nil {
		return nil, 0, err
	}
	return races, total, nil
}

func (r *raceRepository) ListLiveRaces(ctx context.Context) ([]*model.WagerRace, error) {
	var races []*model.WagerRace
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.RaceStatusLive).
		Order("start_date ASC").
		Find(&races).Error; err != nil {
		return nil, err
	}
	return races, nil
}

func (r *raceRepository) ListDueUpcomingRaces(ctx context.Context, now time.Time) ([]*model.WagerRace, error) {
	var races []*model.WagerRace
	if err := r.db.WithContext(ctx).
		Where("status = ? AND start_date <= ?", model.RaceStatusUpcoming, now).
		Order("start_date ASC").
		Find(&races).Error; err != nil {
		return nil, err
	}
	return races, nil
}

func (r *raceRepository) ListExpiredLiveRaces(ctx context.Context, now time.Time) ([]*model.WagerRace, error) {
	var races []*model.WagerRace
	if err := r.db.WithContext(ctx).
		Where("status = ? AND end_date <= ?", model.RaceStatusLive, now).
		Order("end_date ASC").
		Find(&races).Error; err != nil {
		return nil, err
	}
	return races, nil
}

func (r *raceRepository) HasOpenRace(ctx context.Context, raceType string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.WagerRace{}).
		Where("type = ? AND status IN ?", raceType, []string{model.RaceStatusUpcoming, model.RaceStatusLive}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *raceRepository) UpdateStatus(ctx context.Context, raceID, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.WagerRace{}).
		Where("id = ? AND status = ?", raceID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *raceRepository) ReplaceParticipants(ctx context.Context, raceID string, rows []*model.WagerRaceParticipant) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
		}
	}()

	if err := replaceParticipantsTx(tx, raceID, rows); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

func (r *raceRepository) CompleteWithParticipants(ctx context.Context, raceID string, rows []*model.WagerRaceParticipant) (bool, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return false, fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
		}
	}()

	if rows != nil {
		if err := replaceParticipantsTx(tx, raceID, rows); err != nil {
			tx.Rollback()
			return false, err
		}
	}

	res := tx.Model(&model.WagerRace{}).
		Where("id = ? AND status = ?", raceID, model.RaceStatusLive).
		Updates(map[string]interface{}{
			"status":     model.RaceStatusCompleted,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		tx.Rollback()
		return false, fmt.Errorf("流转比赛状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// 状态CAS未命中（已被并发完赛），终榜替换一并回滚
		tx.Rollback()
		return false, nil
	}

	if err := tx.Commit().Error; err != nil {
		return false, fmt.Errorf("提交事务失败: %w", err)
	}
	return true, nil
}

// replaceParticipantsTx 事务内整体替换快照：读旧名次 -> 带入previous_position -> 删旧 -> 批量插入
func replaceParticipantsTx(tx *gorm.DB, raceID string, rows []*model.WagerRaceParticipant) error {
	var olds []*model.WagerRaceParticipant
	if err := tx.Where("race_id = ?", raceID).Find(&olds).Error; err != nil {
		return fmt.Errorf("读取旧快照失败: %w", err)
	}
	prevByUID := make(map[string]int, len(olds))
	for _, o := range olds {
		prevByUID[o.UID] = o.Position
	}
	for _, row := range rows {
		row.RaceID = raceID
		if prev, ok := prevByUID[row.UID]; ok {
			p := prev
			row.PreviousPosition = &p
		}
	}

	if err := tx.Where("race_id = ?", raceID).Delete(&model.WagerRaceParticipant{}).Error; err != nil {
		return fmt.Errorf("清空旧快照失败: %w", err)
	}
	if len(rows) > 0 {
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("写入新快照失败: %w", err)
		}
	}
	return nil
}

func (r *raceRepository) ListParticipants(ctx context.Context, raceID string, limit int) ([]*model.WagerRaceParticipant, error) {
	db := r.db.WithContext(ctx).
		Where("race_id = ?", raceID).
		Order("position ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var rows []*model.WagerRaceParticipant
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *raceRepository) CountParticipants(ctx context.Context, raceID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.WagerRaceParticipant{}).
		Where("race_id = ?", raceID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *raceRepository) GetParticipantByUID(ctx context.Context, raceID, uid string) (*model.WagerRaceParticipant, error) {
	var row model.WagerRaceParticipant
	if err := r.db.WithContext(ctx).
		Where("race_id = ? AND uid = ?", raceID, uid).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *raceRepository) GetParticipantByName(ctx context.Context, raceID, name string) (*model.WagerRaceParticipant, error) {
	var row model.WagerRaceParticipant
	if err := r.db.WithContext(ctx).
		Where("race_id = ? AND LOWER(name) = LOWER(?)", raceID, name).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
