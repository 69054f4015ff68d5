package interfaces

import (
	"context"

	"GoatedVips/internal/model"
)

// StatsFetcher 外部投注统计源必须实现的核心接口
type StatsFetcher interface {
	GetName() string                                                       // 平台名称
	FetchLeaderboard(ctx context.Context) (*model.LeaderboardPayload, error) // 拉取并规整四窗口榜单
}
