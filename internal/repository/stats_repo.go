package repository

import (
	"context"
	"fmt"
	"time"

	"GoatedVips/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatsRepository 联盟统计缓存表仓储（affiliate_stats，按uid+period幂等落库）
type StatsRepository interface {
	// UpsertPeriodStats 把某个窗口的榜单整体upsert进缓存表
	UpsertPeriodStats(ctx context.Context, period model.PeriodKey, entries []model.LeaderboardEntry) error
	// ListPeriodStats 按窗口读缓存表（降序）
	ListPeriodStats(ctx context.Context, period model.PeriodKey, limit int) ([]*model.AffiliateStat, error)
}

type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository 创建StatsRepository实例
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) UpsertPeriodStats(ctx context.Context, period model.PeriodKey, entries []model.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]*model.AffiliateStat, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, &model.AffiliateStat{
			UID:       e.UID,
			Name:      e.Name,
			Period:    string(period),
			Wagered:   e.Amount(period),
			UpdatedAt: now,
		})
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "wagered", "updated_at"}),
	}).CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("upsert affiliate_stats失败: %w", err)
	}
	return nil
}

func (r *statsRepository) ListPeriodStats(ctx context.Context, period model.PeriodKey, limit int) ([]*model.AffiliateStat, error) {
	db := r.db.WithContext(ctx).
		Where("period = ?", string(period)).
		Order("wagered DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var rows []*model.AffiliateStat
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
