package api

import (
	"encoding/json"
	"net/http"
	"time"

	"GoatedVips/internal/model"
	"GoatedVips/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RaceHandler 比赛查询接口（前端用）
type RaceHandler struct {
	raceService     *service.RaceService
	positionService *service.PositionService
	logger          *logrus.Logger
}

// NewRaceHandler 创建RaceHandler
func NewRaceHandler(raceService *service.RaceService, positionService *service.PositionService, logger *logrus.Logger) *RaceHandler {
	return &RaceHandler{
		raceService:     raceService,
		positionService: positionService,
		logger:          logger,
	}
}

// raceView 比赛+榜单的统一响应契约（各展示组件共用，不再一个组件一种形态）
type raceView struct {
	ID                string                        `json:"id"`
	Title             string                        `json:"title"`
	Type              string                        `json:"type"`
	Status            string                        `json:"status"`
	StartDate         time.Time                     `json:"startDate"`
	EndDate           time.Time                     `json:"endDate"`
	PrizePool         float64                       `json:"prizePool"`
	MinWager          float64                       `json:"minWager,omitempty"`
	PrizeDistribution json.RawMessage               `json:"prizeDistribution"`
	Participants      []*model.WagerRaceParticipant `json:"participants"`
}

func newRaceView(race *model.WagerRace, rows []*model.WagerRaceParticipant) *raceView {
	if rows == nil {
		rows = []*model.WagerRaceParticipant{}
	}
	return &raceView{
		ID:                race.ID,
		Title:             race.Title,
		Type:              race.Type,
		Status:            race.Status,
		StartDate:         race.StartDate,
		EndDate:           race.EndDate,
		PrizePool:         race.PrizePool,
		MinWager:          race.MinWager,
		PrizeDistribution: json.RawMessage(race.PrizeDistribution),
		Participants:      rows,
	}
}

// GetCurrentRace 当前live比赛及榜单
// GET /api/wager-races/current?type=monthly
func (h *RaceHandler) GetCurrentRace(c *gin.Context) {
	raceType := c.Query("type")

	race, rows, err := h.raceService.GetCurrentRace(c.Request.Context(), raceType)
	if err != nil {
		h.logger.WithError(err).Error("GetCurrentRace failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if race == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no_active_race"})
		return
	}

	c.JSON(http.StatusOK, newRaceView(race, rows))
}

// GetPreviousRace 最近完成的比赛及终榜
// GET /api/wager-races/previous?type=monthly
func (h *RaceHandler) GetPreviousRace(c *gin.Context) {
	raceType := c.Query("type")

	race, rows, err := h.raceService.GetPreviousRace(c.Request.Context(), raceType)
	if err != nil {
		h.logger.WithError(err).Error("GetPreviousRace failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if race == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no_previous_race"})
		return
	}

	c.JSON(http.StatusOK, newRaceView(race, rows))
}

// GetPosition 单个用户的名次视图
// GET /api/wager-race/position?userId=xxx&goatedUsername=yyy
func (h *RaceHandler) GetPosition(c *gin.Context) {
	userID := c.Query("userId")
	username := c.Query("goatedUsername")
	if userID == "" && username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId or goatedUsername is required"})
		return
	}

	pos, err := h.positionService.GetPosition(c.Request.Context(), userID, username)
	if err != nil {
		h.logger.WithError(err).Error("GetPosition failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no_active_race"})
		return
	}

	c.JSON(http.StatusOK, pos)
}
