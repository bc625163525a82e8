package submission

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"taskpoint/pkg/errutil"
	"taskpoint/pkg/proofstore"
)

var HTTP = fx.Module("submission.http", fx.Invoke(RegisterRoutes))

type Handler struct {
	svc    *Service
	proofs proofstore.Store
}

type RoutesParams struct {
	fx.In
	Service *Service
	Proofs  proofstore.Store `optional:"true"`
}

func RegisterRoutes(r *gin.Engine, p RoutesParams) {
	h := &Handler{svc: p.Service, proofs: p.Proofs}

	g := r.Group("/v1/submissions")
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.GET("/:id/proofs", h.listProofs)
	g.POST("/:id/verify", h.verify)
	g.POST("/:id/reject", h.reject)
	g.POST("/:id/dispute", h.dispute)
	g.POST("/:id/dispute/resolve", h.resolveDispute)

	proofs := r.Group("/v1/proofs")
	proofs.POST("/upload-url", h.uploadURL)
	proofs.POST("/:id/validation", h.recordValidation)
}

type proofRequest struct {
	ProofType   string `json:"proof_type"`
	FileURL     string `json:"file_url"`
	ExternalURL string `json:"external_url"`
}

type createRequest struct {
	OrderID          string         `json:"order_id"`
	OperatorID       string         `json:"operator_id"`
	TimeSpentMinutes *int           `json:"time_spent_minutes"`
	Proofs           []proofRequest `json:"proofs"`
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	proofs := make([]ProofInput, 0, len(req.Proofs))
	for _, p := range req.Proofs {
		proofs = append(proofs, ProofInput{
			ProofType:   p.ProofType,
			FileURL:     p.FileURL,
			ExternalURL: p.ExternalURL,
		})
	}

	sub, err := h.svc.Create(c.Request.Context(), CreateParams{
		OrderID:          req.OrderID,
		OperatorID:       req.OperatorID,
		Proofs:           proofs,
		TimeSpentMinutes: req.TimeSpentMinutes,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) get(c *gin.Context) {
	sub, err := h.svc.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) listProofs(c *gin.Context) {
	proofs, err := h.svc.ListProofs(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proofs})
}

type verifyRequest struct {
	VerifiedBy   string `json:"verified_by"`
	QualityScore *int   `json:"quality_score"`
}

func (h *Handler) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}
	if req.VerifiedBy == "" {
		c.Error(errutil.ValidationFailed("verified_by is required"))
		return
	}

	sub, err := h.svc.Verify(c.Request.Context(), c.Param("id"), req.VerifiedBy, VerifyParams{
		QualityScore: req.QualityScore,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type rejectRequest struct {
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
	Category   string `json:"category"`
}

func (h *Handler) reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	sub, err := h.svc.Reject(c.Request.Context(), c.Param("id"), req.RejectedBy, req.Reason, req.Category)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) dispute(c *gin.Context) {
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	sub, err := h.svc.Dispute(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type resolveDisputeRequest struct {
	Outcome    string `json:"outcome"`
	ResolvedBy string `json:"resolved_by"`
	Reason     string `json:"reason"`
}

func (h *Handler) resolveDispute(c *gin.Context) {
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	sub, err := h.svc.ResolveDispute(c.Request.Context(), c.Param("id"), ResolveDisputeParams{
		Outcome:    Status(req.Outcome),
		ResolvedBy: req.ResolvedBy,
		Reason:     req.Reason,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type validationRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *Handler) recordValidation(c *gin.Context) {
	var req validationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	sub, err := h.svc.RecordProofValidation(c.Request.Context(), c.Param("id"), ProofStatus(req.Status), req.Notes)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type uploadURLRequest struct {
	ObjectName string `json:"object_name"`
}

func (h *Handler) uploadURL(c *gin.Context) {
	if h.proofs == nil {
		c.Error(errutil.Internal("proof storage is not configured"))
		return
	}

	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}
	if req.ObjectName == "" {
		c.Error(errutil.ValidationFailed("object_name is required"))
		return
	}

	url, err := h.proofs.PresignUpload(c.Request.Context(), req.ObjectName, 15*time.Minute)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_url": url})
}
