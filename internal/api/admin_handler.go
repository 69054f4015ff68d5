package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"GoatedVips/internal/model"
	"GoatedVips/internal/repository"
	"GoatedVips/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// AdminHandler 比赛管理接口（建赛、列表、强制完赛）
type AdminHandler struct {
	raceService *service.RaceService
	leaderboard *service.LeaderboardService
	logger      *logrus.Logger
}

// NewAdminHandler 创建AdminHandler
func NewAdminHandler(raceService *service.RaceService, leaderboard *service.LeaderboardService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		raceService: raceService,
		leaderboard: leaderboard,
		logger:      logger,
	}
}

// ListRaces 比赛列表
// GET /api/admin/wager-races?status=live&type=monthly&page=1&page_size=20
func (h *AdminHandler) ListRaces(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.RaceFilter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
	}

	races, total, err := h.raceService.ListRaces(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("ListRaces failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"items":     races,
	})
}

// createRaceRequest 建赛请求体
type createRaceRequest struct {
	ID                string             `json:"id" binding:"required"`
	Title             string             `json:"title" binding:"required"`
	Type              string             `json:"type" binding:"required"`
	Status            string             `json:"status"`
	PrizePool         float64            `json:"prizePool"`
	StartDate         time.Time          `json:"startDate" binding:"required"`
	EndDate           time.Time          `json:"endDate" binding:"required"`
	MinWager          float64            `json:"minWager"`
	PrizeDistribution map[string]float64 `json:"prizeDistribution" binding:"required"`
	Rules             string             `json:"rules"`
	Description       string             `json:"description"`
}

// CreateRace 新建比赛
// POST /api/admin/wager-races
func (h *AdminHandler) CreateRace(c *gin.Context) {
	var req createRaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	distJSON, err := json.Marshal(req.PrizeDistribution)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	race := &model.WagerRace{
		ID:                req.ID,
		Title:             req.Title,
		Type:              req.Type,
		Status:            req.Status,
		PrizePool:         req.PrizePool,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		MinWager:          req.MinWager,
		PrizeDistribution: datatypes.JSON(distJSON),
		Rules:             req.Rules,
		Description:       req.Description,
	}

	if err := h.raceService.CreateRace(c.Request.Context(), race); err != nil {
		if errors.Is(err, service.ErrOpenRaceExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("CreateRace failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, race)
}

// CompleteRace 强制完赛（管理员操作，结果显式反馈）
// POST /api/admin/wager-races/:id/complete
func (h *AdminHandler) CompleteRace(c *gin.Context) {
	raceID := c.Param("id")

	// 尽量用最新榜单做终榜；拉不到就沿用现有快照
	payload, err := h.leaderboard.FetchStats(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("强制完赛时统计源不可用，终榜沿用现有快照")
		payload = nil
	}

	result, err := h.raceService.ForceCompleteRace(c.Request.Context(), raceID, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRaceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrRaceCompleted), errors.Is(err, service.ErrRaceNotLive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("CompleteRace failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "race completed",
		"result":  result,
	})
}
