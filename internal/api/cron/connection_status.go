package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/watercoop/waterbill/internal/api/dto"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/service"
)

type ConnectionStatusCronHandler struct {
	service service.BillingService
	logger  *logger.Logger
}

func NewConnectionStatusCronHandler(service service.BillingService, logger *logger.Logger) *ConnectionStatusCronHandler {
	return &ConnectionStatusCronHandler{
		service: service,
		logger:  logger,
	}
}

// EvaluateConnectionStatuses ages every client with an open bill. The body is
// optional; an explicit "at" replays the sweep as of that instant.
func (h *ConnectionStatusCronHandler) EvaluateConnectionStatuses(c *gin.Context) {
	var req dto.EvaluateConnectionStatusesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	h.logger.Infow("starting connection status sweep", "at", req.At)

	resp, err := h.service.EvaluateConnectionStatuses(c.Request.Context(), lo.FromPtr(req.At))
	if err != nil {
		h.logger.Errorw("connection status sweep failed", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed connection status sweep",
		"evaluated", resp.Evaluated,
		"transitions", len(resp.Transitions),
		"failures", len(resp.Failures),
	)
	c.JSON(http.StatusOK, resp)
}
