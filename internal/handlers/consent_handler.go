package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wso2/financial-services-consent-mgt/internal/models"
	"github.com/wso2/financial-services-consent-mgt/internal/service"
	"github.com/wso2/financial-services-consent-mgt/internal/utils"
	pkgutils "github.com/wso2/financial-services-consent-mgt/pkg/utils"
)

// maxPayloadBytes bounds the request bodies we buffer for idempotency
// comparison and file storage.
const maxPayloadBytes = 5 << 20

// ConsentHandler handles consent-related HTTP requests
type ConsentHandler struct {
	consentService *service.ConsentService
}

// NewConsentHandler creates a new consent handler instance
func NewConsentHandler(consentService *service.ConsentService) *ConsentHandler {
	return &ConsentHandler{consentService: consentService}
}

// CreateConsent handles POST /consents. The raw body bytes are kept aside
// before binding because idempotency comparison runs against the exact bytes
// the client sent, not a re-serialization.
func (h *ConsentHandler) CreateConsent(c *gin.Context) {
	rawPayload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		utils.SendBadRequestError(c, "Failed to read request body", err.Error())
		return
	}

	var request models.ConsentCreateRequest
	if err := json.Unmarshal(rawPayload, &request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	reqCtx := h.requestContext(c, rawPayload)

	response, replayed, err := h.consentService.CreateConsent(c.Request.Context(), reqCtx, &request)
	if err != nil {
		h.sendServiceError(c, err, "Failed to create consent")
		return
	}

	if replayed {
		utils.SendOKResponse(c, response)
		return
	}
	utils.SendCreatedResponse(c, response)
}

// GetConsent handles GET /consents/:consentId
func (h *ConsentHandler) GetConsent(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)

	response, err := h.consentService.GetConsent(c.Request.Context(), consentID, orgID)
	if err != nil {
		h.sendServiceError(c, err, "Failed to retrieve consent")
		return
	}

	utils.SendOKResponse(c, response)
}

// AmendConsent handles PUT /consents/:consentId
func (h *ConsentHandler) AmendConsent(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)

	var request models.ConsentAmendRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	response, err := h.consentService.AmendConsent(c.Request.Context(), consentID, orgID, &request)
	if err != nil {
		h.sendServiceError(c, err, "Failed to amend consent")
		return
	}

	utils.SendOKResponse(c, response)
}

// UpdateConsentStatus handles PUT /consents/:consentId/status
func (h *ConsentHandler) UpdateConsentStatus(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)

	var request models.ConsentStatusUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	response, err := h.consentService.UpdateConsentStatus(c.Request.Context(), consentID, orgID, &request)
	if err != nil {
		h.sendServiceError(c, err, "Failed to update consent status")
		return
	}

	utils.SendOKResponse(c, response)
}

// RevokeConsent handles DELETE /consents/:consentId
func (h *ConsentHandler) RevokeConsent(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)

	var request models.ConsentRevokeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			utils.SendBadRequestError(c, "Invalid request body", err.Error())
			return
		}
	}

	if err := h.consentService.RevokeConsent(c.Request.Context(), consentID, orgID, &request); err != nil {
		h.sendServiceError(c, err, "Failed to revoke consent")
		return
	}

	utils.SendNoContentResponse(c)
}

// SearchConsents handles GET /consents
func (h *ConsentHandler) SearchConsents(c *gin.Context) {
	var params models.ConsentSearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		utils.SendBadRequestError(c, "Invalid search parameters", err.Error())
		return
	}
	params.OrgID = utils.GetOrgIDFromContext(c)

	response, err := h.consentService.SearchConsents(c.Request.Context(), &params)
	if err != nil {
		h.sendServiceError(c, err, "Failed to search consents")
		return
	}

	utils.SendOKResponse(c, response)
}

// GetStatusAudit handles GET /consents/:consentId/status-audit
func (h *ConsentHandler) GetStatusAudit(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	response, err := h.consentService.GetStatusAudit(c.Request.Context(), consentID, orgID, limit, offset)
	if err != nil {
		h.sendServiceError(c, err, "Failed to retrieve status audit")
		return
	}

	utils.SendOKResponse(c, response)
}

// GetAmendmentHistory handles GET /consents/:consentId/history
func (h *ConsentHandler) GetAmendmentHistory(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)

	response, err := h.consentService.GetAmendmentHistory(c.Request.Context(), consentID, orgID)
	if err != nil {
		h.sendServiceError(c, err, "Failed to retrieve amendment history")
		return
	}

	utils.SendOKResponse(c, response)
}

// GetConsentStateAt handles GET /consents/:consentId/history/state?atTime=...
func (h *ConsentHandler) GetConsentStateAt(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)

	atTime, err := strconv.ParseInt(c.Query("atTime"), 10, 64)
	if err != nil {
		utils.SendBadRequestError(c, "Invalid atTime parameter", "atTime must be epoch milliseconds")
		return
	}

	response, err := h.consentService.ConsentStateAt(c.Request.Context(), consentID, orgID, atTime)
	if err != nil {
		h.sendServiceError(c, err, "Failed to reconstruct consent state")
		return
	}

	utils.SendOKResponse(c, response)
}

// UploadConsentFile handles POST /consents/:consentId/file
func (h *ConsentHandler) UploadConsentFile(c *gin.Context) {
	consentID := c.Param("consentId")

	content, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		utils.SendBadRequestError(c, "Failed to read file content", err.Error())
		return
	}

	reqCtx := h.requestContext(c, content)

	response, replayed, err := h.consentService.UploadConsentFile(c.Request.Context(), reqCtx, consentID, content)
	if err != nil {
		h.sendServiceError(c, err, "Failed to upload consent file")
		return
	}

	if replayed {
		utils.SendOKResponse(c, response)
		return
	}
	utils.SendCreatedResponse(c, response)
}

// GetConsentFile handles GET /consents/:consentId/file
func (h *ConsentHandler) GetConsentFile(c *gin.Context) {
	consentID := c.Param("consentId")
	orgID := utils.GetOrgIDFromContext(c)

	file, err := h.consentService.GetConsentFile(c.Request.Context(), consentID, orgID)
	if err != nil {
		h.sendServiceError(c, err, "Failed to retrieve consent file")
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", file.ConsentFile)
}

func (h *ConsentHandler) requestContext(c *gin.Context, rawPayload []byte) *service.RequestContext {
	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	return &service.RequestContext{
		ClientID:    utils.GetClientIDFromContext(c),
		OrgID:       utils.GetOrgIDFromContext(c),
		Headers:     headers,
		RawPayload:  rawPayload,
		ContentType: c.ContentType(),
	}
}

func (h *ConsentHandler) sendServiceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, service.ErrIdempotencyViolation):
		utils.SendIdempotencyError(c)
	case errors.Is(err, models.ErrNotFound):
		utils.SendNotFoundError(c, message)
	case errors.Is(err, service.ErrInvalidStateTransition):
		utils.SendBadRequestError(c, message, err.Error())
	case errors.Is(err, models.ErrDuplicateKey):
		utils.SendConflictError(c, message)
	case errors.Is(err, pkgutils.ErrValidation):
		utils.SendValidationError(c, err.Error())
	default:
		utils.SendInternalServerError(c, message, err.Error())
	}
}
