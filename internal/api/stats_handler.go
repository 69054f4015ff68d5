package api

import (
	"errors"
	"net/http"

	"GoatedVips/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatsHandler 联盟排行榜查询接口
type StatsHandler struct {
	leaderboard *service.LeaderboardService
	logger      *logrus.Logger
}

// NewStatsHandler 创建StatsHandler
func NewStatsHandler(leaderboard *service.LeaderboardService, logger *logrus.Logger) *StatsHandler {
	return &StatsHandler{
		leaderboard: leaderboard,
		logger:      logger,
	}
}

// GetStats 四窗口榜单；带username时返回该用户的单人切片
// GET /api/affiliate/stats?username=xxx
func (h *StatsHandler) GetStats(c *gin.Context) {
	payload, err := h.leaderboard.FetchStats(c.Request.Context())
	if err != nil {
		// 重试额度用尽且无缓存：显式告知不可用，前端隐藏组件而不是报错
		if errors.Is(err, service.ErrStatsUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stats_unavailable"})
			return
		}
		h.logger.WithError(err).Error("GetStats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if username := c.Query("username"); username != "" {
		c.JSON(http.StatusOK, gin.H{
			"username": username,
			"stale":    payload.Stale,
			"periods":  service.UserStats(payload, username),
		})
		return
	}

	c.JSON(http.StatusOK, payload)
}

// Search 跨窗口按显示名搜索
// GET /api/affiliate/search?q=ann
func (h *StatsHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if len(query) < 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must be at least 3 characters"})
		return
	}

	payload, err := h.leaderboard.FetchStats(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrStatsUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stats_unavailable"})
			return
		}
		h.logger.WithError(err).Error("Search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stale":   payload.Stale,
		"results": service.Search(payload, query),
	})
}
