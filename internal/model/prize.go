package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gorm.io/datatypes"
)

// ParsePrizeDistribution 解析 prize_distribution jsonb（名次->奖池百分比）。
// 口径说明：值一律按百分比处理（{"1":50} 表示第1名拿奖池的50%），不支持按固定金额。
func ParsePrizeDistribution(raw datatypes.JSON) (map[int]float64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("prize_distribution为空")
	}
	var byRank map[string]float64
	if err := json.Unmarshal(raw, &byRank); err != nil {
		return nil, fmt.Errorf("解析prize_distribution失败: %w", err)
	}
	dist := make(map[int]float64, len(byRank))
	for k, pct := range byRank {
		rank, err := strconv.Atoi(k)
		if err != nil || rank < 1 {
			return nil, fmt.Errorf("非法名次键: %q", k)
		}
		dist[rank] = pct
	}
	return dist, nil
}

// ValidatePrizeDistribution 建赛时校验：百分比均为正且总和不超过100
func ValidatePrizeDistribution(dist map[int]float64) error {
	if len(dist) == 0 {
		return fmt.Errorf("prize_distribution至少包含一个名次")
	}
	var sum float64
	for rank, pct := range dist {
		if pct <= 0 {
			return fmt.Errorf("名次%d的百分比必须为正，当前: %v", rank, pct)
		}
		sum += pct
	}
	if sum > 100 {
		return fmt.Errorf("百分比总和%.2f超过100", sum)
	}
	return nil
}
