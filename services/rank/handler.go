package rank

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var HTTP = fx.Module("rank.http", fx.Invoke(RegisterRoutes))

type Handler struct {
	svc *Service
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/v1/ranks", h.listLevels)
	r.GET("/v1/operators/:operator_id/rank", h.getOperatorRank)
}

func (h *Handler) listLevels(c *gin.Context) {
	levels, err := h.svc.Levels(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": levels})
}

func (h *Handler) getOperatorRank(c *gin.Context) {
	ctx := c.Request.Context()

	levels, err := h.svc.Levels(ctx)
	if err != nil {
		c.Error(err)
		return
	}
	stats, err := h.svc.GetOperatorStats(ctx, c.Param("operator_id"))
	if err != nil {
		c.Error(err)
		return
	}

	effective := h.svc.EffectiveRank(levels, stats, time.Now())
	c.JSON(http.StatusOK, gin.H{
		"operator_id":          stats.OperatorID,
		"rank_level":           stats.RankLevel,
		"effective_rank_level": effective,
		"verified_executions":  stats.VerifiedExecutions,
		"failed_executions":    stats.FailedExecutions,
		"success_rate":         stats.SuccessRate(),
		"point_bonus_percent":  BonusPercent(levels, effective),
	})
}
