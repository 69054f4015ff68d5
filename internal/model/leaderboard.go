package model

import "time"

// PeriodKey 统计窗口枚举
type PeriodKey string

const (
	PeriodToday   PeriodKey = "today"
	PeriodWeekly  PeriodKey = "weekly"
	PeriodMonthly PeriodKey = "monthly"
	PeriodAllTime PeriodKey = "all_time"
)

// WagerData 单个玩家四个滚动窗口的投注额
type WagerData struct {
	Today     float64 `json:"today"`
	ThisWeek  float64 `json:"this_week"`
	ThisMonth float64 `json:"this_month"`
	AllTime   float64 `json:"all_time"`
}

// LeaderboardEntry 统一的排行榜条目（抹平外部源差异后的形态）
type LeaderboardEntry struct {
	UID     string    `json:"uid"`
	Name    string    `json:"name"`
	Wagered WagerData `json:"wagered"`
}

// Amount 取指定窗口的投注额
func (e *LeaderboardEntry) Amount(key PeriodKey) float64 {
	switch key {
	case PeriodToday:
		return e.Wagered.Today
	case PeriodWeekly:
		return e.Wagered.ThisWeek
	case PeriodMonthly:
		return e.Wagered.ThisMonth
	default:
		return e.Wagered.AllTime
	}
}

// LeaderboardPayload 一次拉取产出的四窗口榜单（各自按该窗口投注额降序）
type LeaderboardPayload struct {
	TotalUsers  int                `json:"totalUsers"`
	LastUpdated time.Time          `json:"lastUpdated"`
	Stale       bool               `json:"stale"` // true 表示源不可达，返回的是过期缓存
	Today       []LeaderboardEntry `json:"today"`
	Weekly      []LeaderboardEntry `json:"weekly"`
	Monthly     []LeaderboardEntry `json:"monthly"`
	AllTime     []LeaderboardEntry `json:"all_time"`
}

// Period 取指定窗口的榜单
func (p *LeaderboardPayload) Period(key PeriodKey) []LeaderboardEntry {
	switch key {
	case PeriodToday:
		return p.Today
	case PeriodWeekly:
		return p.Weekly
	case PeriodMonthly:
		return p.Monthly
	default:
		return p.AllTime
	}
}

// RacePosition 单个用户在当前比赛中的名次视图（派生数据，不落库）
type RacePosition struct {
	Ranked            bool      `json:"ranked"`             // false 表示本窗口尚无投注记录
	Position          int       `json:"position,omitempty"` // 1起步
	TotalParticipants int       `json:"totalParticipants"`
	WagerAmount       float64   `json:"wagerAmount"`
	PreviousPosition  *int      `json:"previousPosition,omitempty"`
	RaceType          string    `json:"raceType"`
	RaceTitle         string    `json:"raceTitle"`
	EndDate           time.Time `json:"endDate"`
	Degraded          bool      `json:"degraded"` // true 表示源不可达，本结果为降级占位，前端须明确标识
}
