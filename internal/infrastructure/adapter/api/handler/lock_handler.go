package handler

import (
	"net/http"
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	domainerr "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	lockUseCase "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/usecase/lock"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/infrastructure/adapter/api/dto"
	"github.com/gin-gonic/gin"
)

// LockHandler handles lock-related HTTP requests
type LockHandler struct {
	lockService *lockUseCase.Service
	logger      coreport.Logger
}

// NewLockHandler creates a new lock handler instance
func NewLockHandler(lockService *lockUseCase.Service, logger coreport.Logger) *LockHandler {
	return &LockHandler{
		lockService: lockService,
		logger:      logger,
	}
}

// AcquireLock handles the POST /locks endpoint
func (h *LockHandler) AcquireLock(c *gin.Context) {
	var req dto.AcquireLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid acquire request format", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(domainerr.ErrInvalidPayload),
			Message: "Invalid request format: " + err.Error(),
		})
		return
	}

	payload, err := entity.UnmarshalPayload(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(err),
			Message: err.Error(),
		})
		return
	}

	result, err := h.lockService.AcquireLock(c.Request.Context(), lockUseCase.AcquireRequest{
		ResourceID:     req.ResourceID,
		OwnerID:        req.OwnerID,
		OwnerType:      entity.OwnerType(req.OwnerType),
		Payload:        payload,
		IdempotencyKey: req.IdempotencyKey,
		Timeout:        time.Duration(req.TimeoutMs) * time.Millisecond,
		MaxRetries:     req.MaxRetries,
		Priority:       req.Priority,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Queued() {
		// Parked behind a contended resource rather than granted.
		status = http.StatusAccepted
	}
	c.JSON(status, dto.AcquireLockResponse{
		Success:        result.Success,
		LockID:         result.LockID,
		IsRetry:        result.IsRetry,
		ExistingResult: result.ExistingResult,
		QueueID:        result.QueueID,
		QueuePosition:  result.QueuePosition,
	})
}

// ReleaseLock handles the POST /locks/:lockId/release endpoint
func (h *LockHandler) ReleaseLock(c *gin.Context) {
	lockID := c.Param("lockId")

	// The body is optional: a release with no stored result is valid.
	var req dto.ReleaseLockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Code:    domainerr.ErrorCode(domainerr.ErrInvalidPayload),
				Message: "Invalid request format: " + err.Error(),
			})
			return
		}
	}

	if err := h.lockService.ReleaseLock(c.Request.Context(), lockID, req.Result, req.ErrorMessage); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReleaseLockResponse{
		LockID:   lockID,
		Released: true,
	})
}

// GetResourceStatus handles the GET /resources/:resourceId/status endpoint
func (h *LockHandler) GetResourceStatus(c *gin.Context) {
	resourceID := c.Param("resourceId")

	status, err := h.lockService.GetLockStatus(c.Request.Context(), resourceID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ResourceStatusResponse{
		ResourceID:  status.ResourceID,
		Locked:      status.Locked,
		LockCount:   status.LockCount,
		QueueLength: status.QueueLength,
		ActiveLocks: toSummaryResponses(status.ActiveLocks),
	})
}

// GetActiveLocks handles the GET /locks endpoint
func (h *LockHandler) GetActiveLocks(c *gin.Context) {
	summaries, err := h.lockService.GetActiveLocks(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"locks": toSummaryResponses(summaries),
		"count": len(summaries),
	})
}

// GetQueuePosition handles the GET /queue/position endpoint
func (h *LockHandler) GetQueuePosition(c *gin.Context) {
	idempotencyKey := c.Query("idempotencyKey")
	if idempotencyKey == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(domainerr.ErrInvalidPayload),
			Message: "Missing required query parameter: idempotencyKey",
		})
		return
	}

	position, err := h.lockService.GetQueuePosition(c.Request.Context(), idempotencyKey)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.QueuePositionResponse{
		IdempotencyKey: idempotencyKey,
		Position:       position,
	})
}

// ReleaseByResource handles the POST /resources/:resourceId/release endpoint
func (h *LockHandler) ReleaseByResource(c *gin.Context) {
	resourceID := c.Param("resourceId")

	var req dto.ReleaseByResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(domainerr.ErrOwnerIDRequired),
			Message: "Invalid request format: " + err.Error(),
		})
		return
	}

	released, err := h.lockService.ReleaseLockByResource(c.Request.Context(), resourceID, req.OwnerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReleaseByResourceResponse{
		ResourceID: resourceID,
		OwnerID:    req.OwnerID,
		Released:   released,
	})
}

// ForceReleaseOwnerLocks handles the POST /admin/owners/:ownerId/force-release endpoint
func (h *LockHandler) ForceReleaseOwnerLocks(c *gin.Context) {
	ownerID := c.Param("ownerId")

	released, err := h.lockService.ForceReleaseOwnerLocks(c.Request.Context(), ownerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ForceReleaseResponse{
		OwnerID:  ownerID,
		Released: released,
	})
}

// respondError maps a domain error onto the HTTP status and error body
func (h *LockHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case domainerr.IsValidationError(err):
		status = http.StatusBadRequest
	case domainerr.IsNotFoundError(err):
		status = http.StatusNotFound
	case domainerr.IsResourceLockedError(err), domainerr.IsDuplicateIdempotencyKeyError(err):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Lock request failed", map[string]any{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		})
	}

	c.JSON(status, dto.ErrorResponse{
		Code:    domainerr.ErrorCode(err),
		Message: err.Error(),
	})
}

func toSummaryResponses(summaries []entity.LockSummary) []dto.LockSummaryResponse {
	out := make([]dto.LockSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, dto.LockSummaryResponse{
			LockID:        s.LockID,
			ResourceID:    s.ResourceID,
			OwnerID:       s.OwnerID,
			OwnerType:     string(s.OwnerType),
			OperationType: string(s.OperationType),
			AcquiredAt:    s.AcquiredAt,
			ExpiresAt:     s.ExpiresAt,
		})
	}
	return out
}
