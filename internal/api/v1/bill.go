package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/watercoop/waterbill/internal/api/dto"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/service"
	"github.com/watercoop/waterbill/internal/types"
)

type BillHandler struct {
	service service.BillingService
	log     *logger.Logger
}

func NewBillHandler(service service.BillingService, log *logger.Logger) *BillHandler {
	return &BillHandler{
		service: service,
		log:     log,
	}
}

// CreateBill handles POST /v1/bills
func (h *BillHandler) CreateBill(c *gin.Context) {
	var req dto.CreateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateBill(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetBill handles GET /v1/bills/:id
func (h *BillHandler) GetBill(c *gin.Context) {
	resp, err := h.service.GetBill(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListBills handles GET /v1/bills
func (h *BillHandler) ListBills(c *gin.Context) {
	filter := types.NewBillFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	if filter.GetLimit() == 0 {
		filter.Limit = lo.ToPtr(types.FILTER_DEFAULT_LIMIT)
	}

	resp, err := h.service.ListBills(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PayBill handles POST /v1/bills/:id/payments
func (h *BillHandler) PayBill(c *gin.Context) {
	var req dto.PayBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	req.BillID = c.Param("id")

	resp, err := h.service.PayBill(c.Request.Context(), req)
	if err != nil {
		h.log.Infow("payment rejected",
			"bill_id", req.BillID,
			"amount", req.Amount,
			"code", ierr.Code(err),
		)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListPartialPayments handles GET /v1/bills/:id/payments
func (h *BillHandler) ListPartialPayments(c *gin.Context) {
	resp, err := h.service.ListPartialPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
