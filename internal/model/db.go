package model

import (
	"time"

	"gorm.io/datatypes"
)

// 比赛状态枚举（单向流转：upcoming -> live -> completed）
const (
	RaceStatusUpcoming  = "upcoming"
	RaceStatusLive      = "live"
	RaceStatusCompleted = "completed"
)

// 比赛类型枚举，决定取哪个统计窗口
const (
	RaceTypeDaily   = "daily"
	RaceTypeWeekly  = "weekly"
	RaceTypeMonthly = "monthly"
)

// WagerRace 投注竞赛主表（id 为业务键，月赛用 YYYYMM）
type WagerRace struct {
	ID                string         `gorm:"column:id;type:varchar(10);primaryKey;comment:业务键，月赛为YYYYMM" json:"id"`
	Title             string         `gorm:"column:title;type:varchar(256);not null;comment:比赛标题" json:"title"`
	Type              string         `gorm:"column:type;type:varchar(16);not null;comment:比赛类型：daily/weekly/monthly" json:"type"`
	Status            string         `gorm:"column:status;type:varchar(16);not null;default:upcoming;comment:状态：upcoming/live/completed" json:"status"`
	PrizePool         float64        `gorm:"column:prize_pool;type:numeric(18,2);not null;default:0;comment:总奖池" json:"prizePool"`
	StartDate         time.Time      `gorm:"column:start_date;type:timestamp;not null;comment:开始时间" json:"startDate"`
	EndDate           time.Time      `gorm:"column:end_date;type:timestamp;not null;comment:结束时间" json:"endDate"`
	MinWager          float64        `gorm:"column:min_wager;type:numeric(18,2);default:0;comment:参赛最低投注额" json:"minWager"`
	PrizeDistribution datatypes.JSON `gorm:"column:prize_distribution;type:jsonb;not null;comment:名次->奖池百分比，如 {\"1\":50}" json:"prizeDistribution"`
	Rules             string         `gorm:"column:rules;type:text;comment:规则说明" json:"rules,omitempty"`
	Description       string         `gorm:"column:description;type:text;comment:比赛描述" json:"description,omitempty"`
	CreatedAt         time.Time      `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间" json:"updatedAt"`
}

// PeriodKey 比赛类型对应的统计窗口
func (r *WagerRace) PeriodKey() PeriodKey {
	switch r.Type {
	case RaceTypeDaily:
		return PeriodToday
	case RaceTypeWeekly:
		return PeriodWeekly
	default:
		return PeriodMonthly
	}
}

// WagerRaceParticipant 比赛榜单快照行（每次刷新整体替换）
type WagerRaceParticipant struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"-"`
	RaceID           string    `gorm:"column:race_id;type:varchar(10);not null;uniqueIndex:uk_race_uid;comment:所属比赛ID" json:"-"`
	UID              string    `gorm:"column:uid;type:varchar(64);not null;uniqueIndex:uk_race_uid;comment:外部玩家ID" json:"uid"`
	Name             string    `gorm:"column:name;type:varchar(255);not null;comment:玩家显示名" json:"name"`
	Wagered          float64   `gorm:"column:wagered;type:numeric(18,2);not null;comment:本窗口投注额" json:"wagered"`
	Position         int       `gorm:"column:position;type:int;not null;comment:名次，1起步无空洞" json:"position"`
	PreviousPosition *int      `gorm:"column:previous_position;type:int;comment:上一次快照中的名次" json:"previousPosition,omitempty"`
	SnapshotID       string    `gorm:"column:snapshot_id;type:varchar(36);not null;comment:快照批次ID" json:"-"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间" json:"-"`
	UpdatedAt        time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间" json:"-"`
}

// AffiliateStat 联盟统计缓存表（按周期落库，替代每次实时拉取）
type AffiliateStat struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	UID       string    `gorm:"column:uid;type:varchar(64);not null;uniqueIndex:uk_uid_period;comment:外部玩家ID"`
	Name      string    `gorm:"column:name;type:varchar(255);not null;comment:玩家显示名"`
	Period    string    `gorm:"column:period;type:varchar(16);not null;uniqueIndex:uk_uid_period;comment:统计窗口：today/weekly/monthly/all_time"`
	Wagered   float64   `gorm:"column:wagered;type:numeric(18,2);not null;comment:该窗口投注额"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (WagerRace) TableName() string            { return "wager_races" }
func (WagerRaceParticipant) TableName() string { return "wager_race_participants" }
func (AffiliateStat) TableName() string        { return "affiliate_stats" }
