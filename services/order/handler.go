package order

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"taskpoint/pkg/db/pagination"
	"taskpoint/pkg/errutil"
)

var HTTP = fx.Module("order.http", fx.Invoke(RegisterRoutes))

type Handler struct {
	svc *Service
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &Handler{svc: svc}

	templates := r.Group("/v1/templates")
	templates.POST("", h.createTemplate)
	templates.GET("/:code", h.getTemplate)

	brands := r.Group("/v1/brands")
	brands.POST("/:brand_id/qualification", h.submitQualification)
	brands.GET("/:brand_id/qualification", h.getQualification)
	brands.POST("/:brand_id/qualification/review", h.reviewQualification)

	orders := r.Group("/v1/orders")
	orders.POST("", h.createOrder)
	orders.GET("", h.listOrders)
	orders.GET("/:id", h.getOrder)
	orders.POST("/:id/submit", h.submitForApproval)
	orders.POST("/:id/approve", h.approve)
	orders.POST("/:id/reject", h.reject)
	orders.POST("/:id/refund", h.manualRefund)
	orders.POST("/:id/pause", h.pause)
	orders.POST("/:id/resume", h.resume)
	orders.POST("/:id/complete", h.complete)
}

type createTemplateRequest struct {
	Code                    string   `json:"code"`
	Name                    string   `json:"name"`
	Category                string   `json:"category"`
	Difficulty              string   `json:"difficulty"`
	BaseCreditValue         int64    `json:"base_credit_value"`
	RequiredProofTypes      []string `json:"required_proof_types"`
	VerificationWindowHours int      `json:"verification_window_hours"`
	EstimatedMinutes        int      `json:"estimated_minutes"`
	MinRankLevel            int      `json:"min_rank_level"`
	RequiresManualReview    bool     `json:"requires_manual_review"`
	EligibilityRule         string   `json:"eligibility_rule"`
}

func (h *Handler) createTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	tpl, err := h.svc.CreateTemplate(c.Request.Context(), CreateTemplateParams{
		Code:                    req.Code,
		Name:                    req.Name,
		Category:                req.Category,
		Difficulty:              req.Difficulty,
		BaseCreditValue:         req.BaseCreditValue,
		RequiredProofTypes:      req.RequiredProofTypes,
		VerificationWindowHours: req.VerificationWindowHours,
		EstimatedMinutes:        req.EstimatedMinutes,
		MinRankLevel:            req.MinRankLevel,
		RequiresManualReview:    req.RequiresManualReview,
		EligibilityRule:         req.EligibilityRule,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (h *Handler) getTemplate(c *gin.Context) {
	tpl, err := h.svc.GetTemplate(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

type qualificationRequest struct {
	TermsAccepted        bool `json:"terms_accepted"`
	ContentPolicyAgreed  bool `json:"content_policy_agreed"`
	PaymentTermsAccepted bool `json:"payment_terms_accepted"`
	DataPolicyAgreed     bool `json:"data_policy_agreed"`
}

func (h *Handler) submitQualification(c *gin.Context) {
	var req qualificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	qual, err := h.svc.SubmitQualification(c.Request.Context(), SubmitQualificationParams{
		BrandID:              c.Param("brand_id"),
		TermsAccepted:        req.TermsAccepted,
		ContentPolicyAgreed:  req.ContentPolicyAgreed,
		PaymentTermsAccepted: req.PaymentTermsAccepted,
		DataPolicyAgreed:     req.DataPolicyAgreed,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, qual)
}

func (h *Handler) getQualification(c *gin.Context) {
	qual, err := h.svc.GetQualification(c.Request.Context(), c.Param("brand_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, qual)
}

type reviewQualificationRequest struct {
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewed_by"`
	Notes      string `json:"notes"`
}

func (h *Handler) reviewQualification(c *gin.Context) {
	var req reviewQualificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	qual, err := h.svc.ReviewQualification(c.Request.Context(), ReviewQualificationParams{
		BrandID:    c.Param("brand_id"),
		Status:     QualificationStatus(req.Status),
		ReviewedBy: req.ReviewedBy,
		Notes:      req.Notes,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, qual)
}

type createOrderRequest struct {
	BrandID        string `json:"brand_id"`
	TemplateCode   string `json:"template_code"`
	TargetQuantity int    `json:"target_quantity"`
	OperatorPayout int64  `json:"operator_payout"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	ord, err := h.svc.CreateOrder(c.Request.Context(), CreateOrderParams{
		BrandID:        req.BrandID,
		TemplateCode:   req.TemplateCode,
		TargetQuantity: req.TargetQuantity,
		OperatorPayout: req.OperatorPayout,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ord)
}

func (h *Handler) listOrders(c *gin.Context) {
	brandID := c.Query("brand_id")
	if brandID == "" {
		c.Error(errutil.BadRequest("brand_id query parameter is required"))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination parameters", errutil.WithErr(err)))
		return
	}

	orders, pageInfo, err := h.svc.ListOrders(c.Request.Context(), ListOrdersParams{
		BrandID: brandID,
		Cursor:  page.Cursor,
		Limit:   page.Limit,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders, "page_info": pageInfo})
}

func (h *Handler) getOrder(c *gin.Context) {
	ord, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) submitForApproval(c *gin.Context) {
	ord, err := h.svc.SubmitForApproval(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

type approvalRequest struct {
	AdminID string `json:"admin_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) approve(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	ord, err := h.svc.Approve(c.Request.Context(), c.Param("id"), req.AdminID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) reject(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	ord, err := h.svc.Reject(c.Request.Context(), c.Param("id"), req.AdminID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) manualRefund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	ord, err := h.svc.ManualRefund(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) pause(c *gin.Context) {
	ord, err := h.svc.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) resume(c *gin.Context) {
	ord, err := h.svc.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) complete(c *gin.Context) {
	ord, err := h.svc.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}
