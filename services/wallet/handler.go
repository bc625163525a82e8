package wallet

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"taskpoint/pkg/errutil"
)

var HTTP = fx.Module("wallet.http", fx.Invoke(RegisterRoutes))

type Handler struct {
	svc *Service
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &Handler{svc: svc}

	g := r.Group("/v1/wallets")
	g.GET("/:account_id/balance", h.getBalance)
	g.GET("/:account_id/transactions", h.listTransactions)
	g.GET("/:account_id/verify", h.verifyChain)
	g.POST("/:account_id/deposits", h.deposit)
	g.POST("/:account_id/payout-reversals", h.reversePayout)
}

func (h *Handler) getBalance(c *gin.Context) {
	balance, err := h.svc.GetBalance(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) listTransactions(c *gin.Context) {
	entries, err := h.svc.ListTransactions(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (h *Handler) verifyChain(c *gin.Context) {
	valid, err := h.svc.VerifyChain(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

type depositRequest struct {
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id"`
	Description string `json:"description"`
}

func (h *Handler) deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	entry, err := h.svc.Deposit(c.Request.Context(), DepositParams{
		BrandID:     c.Param("account_id"),
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
		Description: req.Description,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type reversePayoutRequest struct {
	Amount       int64  `json:"amount"`
	SubmissionID string `json:"submission_id"`
	OrderID      string `json:"order_id"`
	Reason       string `json:"reason"`
}

func (h *Handler) reversePayout(c *gin.Context) {
	var req reversePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	entry, err := h.svc.ReversePayout(c.Request.Context(), ReversePayoutParams{
		OperatorID:   c.Param("account_id"),
		Amount:       req.Amount,
		SubmissionID: req.SubmissionID,
		OrderID:      req.OrderID,
		Reason:       req.Reason,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}
