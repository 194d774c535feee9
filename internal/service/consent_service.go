package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/wso2/financial-services-consent-mgt/internal/dao"
	"github.com/wso2/financial-services-consent-mgt/internal/database"
	"github.com/wso2/financial-services-consent-mgt/internal/diff"
	"github.com/wso2/financial-services-consent-mgt/internal/idempotency"
	"github.com/wso2/financial-services-consent-mgt/internal/models"
	"github.com/wso2/financial-services-consent-mgt/pkg/utils"
)

// ErrIdempotencyViolation is the single error surfaced for every failed
// idempotency check. Individual failure causes are logged server-side only, so
// callers cannot tell which condition (client, window, payload) failed.
var ErrIdempotencyViolation = errors.New("idempotency key reuse violation")

// ErrInvalidStateTransition is returned when a requested status change is not
// allowed from the consent's current status.
var ErrInvalidStateTransition = errors.New("invalid consent status transition")

// RequestContext carries the transport-level request facts the service needs
// for idempotency classification: who sent the request and the exact bytes
// they sent.
type RequestContext struct {
	ClientID    string
	OrgID       string
	Headers     map[string]string
	RawPayload  []byte
	ContentType string
}

// ConsentService handles business logic for consent operations
type ConsentService struct {
	consentDAO   *dao.ConsentDAO
	attributeDAO *dao.ConsentAttributeDAO
	authDAO      *dao.AuthResourceDAO
	mappingDAO   *dao.ConsentMappingDAO
	fileDAO      *dao.ConsentFileDAO
	historyDAO   *dao.ConsentHistoryDAO
	store        *ConsentStore
	recorder     *AuditRecorder
	validator    *idempotency.Validator
	db           *database.DB
	logger       *logrus.Logger
}

// NewConsentService creates a new consent service instance
func NewConsentService(
	consentDAO *dao.ConsentDAO,
	attributeDAO *dao.ConsentAttributeDAO,
	authDAO *dao.AuthResourceDAO,
	mappingDAO *dao.ConsentMappingDAO,
	fileDAO *dao.ConsentFileDAO,
	historyDAO *dao.ConsentHistoryDAO,
	store *ConsentStore,
	recorder *AuditRecorder,
	validator *idempotency.Validator,
	db *database.DB,
	logger *logrus.Logger,
) *ConsentService {
	return &ConsentService{
		consentDAO:   consentDAO,
		attributeDAO: attributeDAO,
		authDAO:      authDAO,
		mappingDAO:   mappingDAO,
		fileDAO:      fileDAO,
		historyDAO:   historyDAO,
		store:        store,
		recorder:     recorder,
		validator:    validator,
		db:           db,
		logger:       logger,
	}
}

// CreateConsent creates a new consent. When the request carries a previously
// seen idempotency key it is answered from the stored consent without
// re-executing the creation; replayed reports that case. A key reused under
// failing conditions yields ErrIdempotencyViolation.
func (s *ConsentService) CreateConsent(ctx context.Context, reqCtx *RequestContext, request *models.ConsentCreateRequest) (response *models.ConsentResponse, replayed bool, err error) {
	if err := s.validateConsentCreateRequest(reqCtx, request); err != nil {
		return nil, false, err
	}

	result, err := s.validator.Validate(ctx, &idempotency.Request{
		ClientID:    reqCtx.ClientID,
		OrgID:       reqCtx.OrgID,
		Headers:     reqCtx.Headers,
		Payload:     string(reqCtx.RawPayload),
		ContentType: reqCtx.ContentType,
	})
	if err != nil {
		// fail closed: when the validator cannot classify the request, reject
		// instead of risking a duplicate creation
		s.logger.WithError(err).Error("Idempotency validation failed")
		return nil, false, ErrIdempotencyViolation
	}
	switch result.Status {
	case idempotency.Valid:
		s.logger.WithFields(logrus.Fields{
			"consent_id": result.ConsentID,
			"client_id":  reqCtx.ClientID,
		}).Info("Answering consent creation from idempotent replay")
		return s.buildDetailedResponse(result.Consent), true, nil
	case idempotency.Invalid:
		s.logger.WithError(result.Failure).WithField("client_id", reqCtx.ClientID).Warn("Rejecting consent creation for idempotency key reuse")
		return nil, false, ErrIdempotencyViolation
	}

	receiptJSON, err := json.Marshal(request.Receipt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal receipt: %w", err)
	}

	now := utils.GetCurrentTimeMillis()
	consent := &models.Consent{
		ConsentID:          utils.GenerateConsentID(),
		Receipt:            models.JSON(receiptJSON),
		ClientID:           reqCtx.ClientID,
		ConsentType:        request.ConsentType,
		CurrentStatus:      request.CurrentStatus,
		ExpiryTime:         request.ExpiryTime,
		RecurringIndicator: request.RecurringIndicator,
		OrgID:              reqCtx.OrgID,
		CreatedTime:        now,
		UpdatedTime:        now,
	}

	attributes := make(map[string]string, len(request.Attributes)+1)
	for k, v := range request.Attributes {
		attributes[k] = v
	}
	// Persisting the key in the same transaction as the consent is what makes
	// the dedup check race-safe: the unique index on the attribute value turns
	// a concurrent double-create into a duplicate-key failure here.
	if key := s.idempotencyKeyFromHeaders(reqCtx.Headers); key != "" {
		attributes[models.AttrIdempotencyKey] = key
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.consentDAO.CreateWithTx(ctx, tx, consent); err != nil {
		return nil, false, fmt.Errorf("failed to create consent: %w", err)
	}

	if len(attributes) > 0 {
		if err := s.attributeDAO.CreateWithTx(ctx, tx, consent.ConsentID, consent.OrgID, attributes); err != nil {
			// only a collision on a reserved idempotency key attribute is an
			// idempotency race; a duplicate on any other attribute is an
			// ordinary conflict
			var dup *dao.DuplicateAttributeError
			if errors.As(err, &dup) && models.IsIdempotencyKeyAttribute(dup.Key) {
				s.logger.WithField("client_id", reqCtx.ClientID).Warn("Concurrent consent creation raced on an idempotency key")
				return nil, false, ErrIdempotencyViolation
			}
			return nil, false, fmt.Errorf("failed to create attributes: %w", err)
		}
	}

	for _, authReq := range request.AuthResources {
		if err := s.createAuthResourceWithTx(ctx, tx, consent.ConsentID, consent.OrgID, now, &authReq); err != nil {
			return nil, false, err
		}
	}

	_, err = s.recorder.RecordStatusChange(ctx, tx, &StatusChange{
		ConsentID:     consent.ConsentID,
		OrgID:         consent.OrgID,
		CurrentStatus: consent.CurrentStatus,
		ActionTime:    now,
		Reason:        "Initial consent creation",
		ActionBy:      reqCtx.ClientID,
	})
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	detailed, err := s.store.GetDetailedConsent(ctx, consent.ConsentID, consent.OrgID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to retrieve created consent: %w", err)
	}

	return s.buildDetailedResponse(detailed), false, nil
}

// GetConsent retrieves the full consent aggregate by ID
func (s *ConsentService) GetConsent(ctx context.Context, consentID, orgID string) (*models.ConsentResponse, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, err
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, err
	}

	detailed, err := s.store.GetDetailedConsent(ctx, consentID, orgID)
	if err != nil {
		return nil, err
	}

	return s.buildDetailedResponse(detailed), nil
}

// AmendConsent applies a partial update to a consent and records the
// amendment: a status audit row plus one reverse-delta history row per changed
// facet, all correlated by the audit ID.
func (s *ConsentService) AmendConsent(ctx context.Context, consentID, orgID string, request *models.ConsentAmendRequest) (*models.ConsentResponse, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, err
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.store.GetDetailedConsentWithTx(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, err
	}

	if models.IsTerminalStatus(current.CurrentStatus) {
		return nil, fmt.Errorf("consent %s is in terminal status %s: %w", consentID, current.CurrentStatus, ErrInvalidStateTransition)
	}

	// The before image must be an isolated copy; every later mutation works on
	// the live aggregate and must not leak into the snapshot used for diffing.
	snapshot := current.Clone()

	now := utils.GetCurrentTimeMillis()
	previousStatus := current.CurrentStatus
	statusChanged := false

	updated := current.Consent
	updated.UpdatedTime = now

	if request.Receipt != nil {
		receiptJSON, err := json.Marshal(request.Receipt)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal receipt: %w", err)
		}
		updated.Receipt = models.JSON(receiptJSON)
	}
	if request.ExpiryTime != nil {
		updated.ExpiryTime = *request.ExpiryTime
	}
	if request.RecurringIndicator != nil {
		updated.RecurringIndicator = request.RecurringIndicator
	}
	if request.CurrentStatus != "" && request.CurrentStatus != previousStatus {
		if !models.IsValidStatus(request.CurrentStatus) {
			return nil, fmt.Errorf("%w: unknown consent status %q", utils.ErrValidation, request.CurrentStatus)
		}
		if !models.IsValidTransition(previousStatus, request.CurrentStatus) {
			return nil, fmt.Errorf("cannot move consent from %s to %s: %w", previousStatus, request.CurrentStatus, ErrInvalidStateTransition)
		}
		updated.CurrentStatus = request.CurrentStatus
		statusChanged = true
	}

	if err := s.consentDAO.UpdateWithTx(ctx, tx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update consent: %w", err)
	}

	if request.Attributes != nil {
		// Idempotency bookkeeping attributes survive attribute replacement;
		// dropping them would disarm replay detection for the consent.
		merged := make(map[string]string, len(request.Attributes))
		for k, v := range request.Attributes {
			merged[k] = v
		}
		for _, reserved := range []string{models.AttrIdempotencyKey, models.AttrFileUploadIdempotencyKey, models.AttrFileUploadCreatedTime} {
			if v, ok := current.Attributes[reserved]; ok {
				merged[reserved] = v
			}
		}
		if err := s.attributeDAO.ReplaceWithTx(ctx, tx, consentID, orgID, merged); err != nil {
			return nil, fmt.Errorf("failed to replace attributes: %w", err)
		}
	}

	if request.AuthResources != nil {
		for i := range current.AuthResources {
			if err := s.mappingDAO.DeleteByAuthIDWithTx(ctx, tx, current.AuthResources[i].AuthID, orgID); err != nil {
				return nil, err
			}
		}
		if err := s.authDAO.DeleteByConsentIDWithTx(ctx, tx, consentID, orgID); err != nil {
			return nil, fmt.Errorf("failed to delete authorization resources: %w", err)
		}
		for _, authReq := range request.AuthResources {
			if err := s.createAuthResourceWithTx(ctx, tx, consentID, orgID, now, &authReq); err != nil {
				return nil, err
			}
		}
	}

	for _, mappingReq := range request.Mappings {
		if mappingReq.AuthID == "" {
			return nil, fmt.Errorf("%w: mapping request requires an authId", utils.ErrValidation)
		}
		status := mappingReq.MappingStatus
		if status == "" {
			status = models.MappingStatusActive
		}
		mapping := &models.ConsentMapping{
			MappingID:     utils.GenerateMappingID(),
			AuthID:        mappingReq.AuthID,
			AccountID:     mappingReq.AccountID,
			Permission:    mappingReq.Permission,
			MappingStatus: status,
			OrgID:         orgID,
		}
		if err := s.mappingDAO.CreateWithTx(ctx, tx, mapping); err != nil {
			return nil, err
		}
	}

	amended, err := s.store.GetDetailedConsentWithTx(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload amended consent: %w", err)
	}

	reason := request.Reason
	if reason == "" {
		reason = "Consent amended"
	}
	statusForAudit := previousStatus
	if statusChanged {
		statusForAudit = updated.CurrentStatus
	}
	historyID, err := s.recorder.RecordStatusChange(ctx, tx, &StatusChange{
		ConsentID:      consentID,
		OrgID:          orgID,
		CurrentStatus:  statusForAudit,
		PreviousStatus: previousStatus,
		ActionTime:     now,
		Reason:         reason,
		ActionBy:       request.ActionBy,
	})
	if err != nil {
		return nil, err
	}

	if err := s.recorder.RecordAmendment(ctx, tx, historyID, amended, snapshot, reason, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.buildDetailedResponse(amended), nil
}

// UpdateConsentStatus moves a consent to a new lifecycle status, auditing the
// transition and recording the reverse delta of the basic facet.
func (s *ConsentService) UpdateConsentStatus(ctx context.Context, consentID, orgID string, request *models.ConsentStatusUpdateRequest) (*models.ConsentResponse, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, err
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, err
	}
	if !models.IsValidStatus(request.Status) {
		return nil, fmt.Errorf("%w: unknown consent status %q", utils.ErrValidation, request.Status)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.store.GetDetailedConsentWithTx(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, err
	}

	if current.CurrentStatus == request.Status {
		// no-op transition; nothing to audit
		return s.buildDetailedResponse(current), nil
	}
	if !models.IsValidTransition(current.CurrentStatus, request.Status) {
		return nil, fmt.Errorf("cannot move consent from %s to %s: %w", current.CurrentStatus, request.Status, ErrInvalidStateTransition)
	}

	snapshot := current.Clone()
	now := utils.GetCurrentTimeMillis()
	previousStatus := current.CurrentStatus

	if err := s.consentDAO.UpdateStatusWithTx(ctx, tx, consentID, orgID, request.Status, now); err != nil {
		return nil, fmt.Errorf("failed to update consent status: %w", err)
	}

	current.CurrentStatus = request.Status
	current.UpdatedTime = now

	historyID, err := s.recorder.RecordStatusChange(ctx, tx, &StatusChange{
		ConsentID:      consentID,
		OrgID:          orgID,
		CurrentStatus:  request.Status,
		PreviousStatus: previousStatus,
		ActionTime:     now,
		Reason:         request.Reason,
		ActionBy:       request.ActionBy,
	})
	if err != nil {
		return nil, err
	}

	if err := s.recorder.RecordAmendment(ctx, tx, historyID, current, snapshot, request.Reason, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.buildDetailedResponse(current), nil
}

// RevokeConsent moves a consent to revoked
func (s *ConsentService) RevokeConsent(ctx context.Context, consentID, orgID string, request *models.ConsentRevokeRequest) error {
	reason := request.Reason
	if reason == "" {
		reason = "Consent revoked"
	}
	_, err := s.UpdateConsentStatus(ctx, consentID, orgID, &models.ConsentStatusUpdateRequest{
		Status:   models.StatusRevoked,
		Reason:   reason,
		ActionBy: request.ActionBy,
	})
	return err
}

// SearchConsents searches for consents matching the given filters
func (s *ConsentService) SearchConsents(ctx context.Context, params *models.ConsentSearchParams) (*models.ConsentSearchResponse, error) {
	if err := utils.ValidateOrgID(params.OrgID); err != nil {
		return nil, err
	}
	params.Limit = utils.ValidateLimit(params.Limit)
	params.Offset = utils.ValidateOffset(params.Offset)

	consents, total, err := s.consentDAO.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search consents: %w", err)
	}

	data := make([]models.ConsentResponse, 0, len(consents))
	for i := range consents {
		detailed, err := s.store.GetDetailedConsent(ctx, consents[i].ConsentID, consents[i].OrgID)
		if err != nil {
			return nil, fmt.Errorf("failed to load consent %s: %w", consents[i].ConsentID, err)
		}
		data = append(data, *s.buildDetailedResponse(detailed))
	}

	return &models.ConsentSearchResponse{
		Data: data,
		Metadata: models.ConsentSearchMetadata{
			Total:  total,
			Limit:  params.Limit,
			Offset: params.Offset,
		},
	}, nil
}

// GetStatusAudit retrieves the status audit trail of a consent, newest first
func (s *ConsentService) GetStatusAudit(ctx context.Context, consentID, orgID string, limit, offset int) (*models.ConsentStatusAuditListResponse, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, err
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, err
	}
	limit = utils.ValidateLimit(limit)
	offset = utils.ValidateOffset(offset)

	exists, err := s.consentDAO.Exists(ctx, consentID, orgID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("consent %s: %w", consentID, models.ErrNotFound)
	}

	audits, err := s.recorder.statusAuditDAO.GetByConsentID(ctx, consentID, orgID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &models.ConsentStatusAuditListResponse{Data: audits}, nil
}

// GetAmendmentHistory retrieves the amendment history of a consent grouped by
// amendment, newest first. Rows are correlated by their shared history ID.
func (s *ConsentService) GetAmendmentHistory(ctx context.Context, consentID, orgID string) (*models.ConsentHistoryResponse, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, err
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, err
	}

	detailed, err := s.store.GetDetailedConsent(ctx, consentID, orgID)
	if err != nil {
		return nil, err
	}

	records, err := s.historyDAO.GetByRecordIDs(ctx, diff.RecordIDsForHistory(detailed), orgID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]*models.ConsentHistoryEntry)
	order := make([]string, 0)
	for _, record := range records {
		entry, ok := grouped[record.HistoryID]
		if !ok {
			entry = &models.ConsentHistoryEntry{
				HistoryID: record.HistoryID,
				Timestamp: record.Timestamp,
			}
			if record.Reason != nil {
				entry.Reason = *record.Reason
			}
			grouped[record.HistoryID] = entry
			order = append(order, record.HistoryID)
		}
		entry.Records = append(entry.Records, record)
	}

	amendments := make([]models.ConsentHistoryEntry, 0, len(order))
	for _, historyID := range order {
		amendments = append(amendments, *grouped[historyID])
	}
	sort.SliceStable(amendments, func(i, j int) bool {
		return amendments[i].Timestamp > amendments[j].Timestamp
	})

	return &models.ConsentHistoryResponse{
		ConsentID:  consentID,
		Amendments: amendments,
	}, nil
}

// ConsentStateAt reconstructs the consent aggregate as it was at the given
// time by applying reverse patches backward from current state, newest
// amendment first, until the remaining amendments predate the target time.
func (s *ConsentService) ConsentStateAt(ctx context.Context, consentID, orgID string, atTime int64) (*models.ConsentResponse, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, err
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, err
	}

	detailed, err := s.store.GetDetailedConsent(ctx, consentID, orgID)
	if err != nil {
		return nil, err
	}
	if atTime < detailed.CreatedTime {
		return nil, fmt.Errorf("consent %s did not exist at %d: %w", consentID, atTime, models.ErrNotFound)
	}

	records, err := s.historyDAO.GetByRecordIDs(ctx, diff.RecordIDsForHistory(detailed), orgID)
	if err != nil {
		return nil, err
	}

	state := detailed.Clone()
	for _, record := range records {
		if record.Timestamp <= atTime {
			break
		}
		switch record.RecordType {
		case models.HistoryRecordTypeBasic:
			if err := diff.ApplyBasic(state, record.ChangedValues); err != nil {
				return nil, fmt.Errorf("failed to apply history record %s: %w", record.HistoryID, err)
			}
		case models.HistoryRecordTypeAttributes:
			var patch map[string]string
			if err := json.Unmarshal(record.ChangedValues, &patch); err != nil {
				return nil, fmt.Errorf("failed to decode history record %s: %w", record.HistoryID, err)
			}
			state.Attributes = diff.ApplyAttributes(state.Attributes, patch)
		case models.HistoryRecordTypeMapping:
			patch, err := decodeSubResourcePatch(record.ChangedValues)
			if err != nil {
				return nil, fmt.Errorf("failed to decode history record %s: %w", record.HistoryID, err)
			}
			state.Mappings = diff.ApplyMappings(state.Mappings, map[string]map[string]string{record.RecordID: patch})
		case models.HistoryRecordTypeAuthResource:
			patch, err := decodeSubResourcePatch(record.ChangedValues)
			if err != nil {
				return nil, fmt.Errorf("failed to decode history record %s: %w", record.HistoryID, err)
			}
			state.AuthResources = diff.ApplyAuthResources(state.AuthResources, map[string]map[string]string{record.RecordID: patch})
		}
	}

	return s.buildDetailedResponse(state), nil
}

// UploadConsentFile stores a file against a consent, with its own idempotency
// namespace so a replayed upload does not collide with the consent creation
// key.
func (s *ConsentService) UploadConsentFile(ctx context.Context, reqCtx *RequestContext, consentID string, content []byte) (response *models.ConsentFileResponse, replayed bool, err error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, false, err
	}
	if err := utils.ValidateOrgID(reqCtx.OrgID); err != nil {
		return nil, false, err
	}
	if len(content) == 0 {
		return nil, false, fmt.Errorf("%w: file content is required", utils.ErrValidation)
	}

	result, err := s.validator.Validate(ctx, &idempotency.Request{
		ClientID:    reqCtx.ClientID,
		OrgID:       reqCtx.OrgID,
		Headers:     reqCtx.Headers,
		Payload:     string(content),
		ContentType: reqCtx.ContentType,
		FileUpload:  true,
	})
	if err != nil {
		s.logger.WithError(err).Error("Idempotency validation failed for file upload")
		return nil, false, ErrIdempotencyViolation
	}
	switch result.Status {
	case idempotency.Valid:
		if result.ConsentID != consentID {
			// same key, different target consent: not a replay
			return nil, false, ErrIdempotencyViolation
		}
		file, err := s.fileDAO.GetByConsentID(ctx, consentID, reqCtx.OrgID)
		if err != nil {
			return nil, false, err
		}
		return &models.ConsentFileResponse{
			ConsentID: consentID,
			FileSize:  len(file.ConsentFile),
			OrgID:     reqCtx.OrgID,
			Message:   "File already uploaded",
		}, true, nil
	case idempotency.Invalid:
		s.logger.WithError(result.Failure).WithField("consent_id", consentID).Warn("Rejecting file upload for idempotency key reuse")
		return nil, false, ErrIdempotencyViolation
	}

	exists, err := s.consentDAO.Exists(ctx, consentID, reqCtx.OrgID)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, fmt.Errorf("consent %s: %w", consentID, models.ErrNotFound)
	}

	now := utils.GetCurrentTimeMillis()

	err = s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		if err := s.fileDAO.CreateWithTx(ctx, tx, &models.ConsentFile{
			ConsentID:   consentID,
			ConsentFile: content,
			OrgID:       reqCtx.OrgID,
		}); err != nil {
			return err
		}

		if key := s.idempotencyKeyFromHeaders(reqCtx.Headers); key != "" {
			fileAttrs := map[string]string{
				models.AttrFileUploadIdempotencyKey: key,
				models.AttrFileUploadCreatedTime:    strconv.FormatInt(now, 10),
			}
			if err := s.attributeDAO.CreateWithTx(ctx, tx, consentID, reqCtx.OrgID, fileAttrs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var dup *dao.DuplicateAttributeError
		if errors.As(err, &dup) && models.IsIdempotencyKeyAttribute(dup.Key) {
			return nil, false, ErrIdempotencyViolation
		}
		return nil, false, err
	}

	return &models.ConsentFileResponse{
		ConsentID: consentID,
		FileSize:  len(content),
		OrgID:     reqCtx.OrgID,
		Message:   "File uploaded successfully",
	}, false, nil
}

// GetConsentFile retrieves the file stored for a consent
func (s *ConsentService) GetConsentFile(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, err
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, err
	}
	return s.fileDAO.GetByConsentID(ctx, consentID, orgID)
}

// ExpireOverdueConsents moves every non-terminal consent whose expiry time has
// passed into expired, auditing each transition. An empty orgID sweeps all
// organizations. It returns the number of consents expired. Each batch is the
// first page of the remaining candidates: expiring a consent removes it from
// the candidate set, so the sweep never skips rows the way offset paging over
// a shrinking result would.
func (s *ConsentService) ExpireOverdueConsents(ctx context.Context, orgID string) (int, error) {
	const batchSize = 100

	expired := 0
	for {
		candidates, err := s.consentDAO.FindExpiredOverdue(ctx, orgID, utils.GetCurrentTimeMillis(), batchSize)
		if err != nil {
			return expired, err
		}
		if len(candidates) == 0 {
			return expired, nil
		}

		progressed := false
		for i := range candidates {
			if !utils.IsExpired(candidates[i].ExpiryTime) {
				continue
			}
			_, err := s.UpdateConsentStatus(ctx, candidates[i].ConsentID, candidates[i].OrgID, &models.ConsentStatusUpdateRequest{
				Status: models.StatusExpired,
				Reason: "Consent validity period elapsed",
			})
			if err != nil {
				s.logger.WithError(err).WithField("consent_id", candidates[i].ConsentID).Error("Failed to expire consent")
				continue
			}
			expired++
			progressed = true
		}

		// a consent that failed to expire would come straight back in the next
		// batch; stop instead of spinning when a pass made no progress
		if !progressed {
			return expired, nil
		}
	}
}

func (s *ConsentService) validateConsentCreateRequest(reqCtx *RequestContext, request *models.ConsentCreateRequest) error {
	if err := utils.ValidateClientID(reqCtx.ClientID); err != nil {
		return err
	}
	if err := utils.ValidateOrgID(reqCtx.OrgID); err != nil {
		return err
	}
	if err := utils.ValidateConsentType(request.ConsentType); err != nil {
		return err
	}
	if request.Receipt == nil {
		return fmt.Errorf("%w: receipt is required", utils.ErrValidation)
	}
	if !models.IsValidStatus(request.CurrentStatus) {
		return fmt.Errorf("%w: unknown consent status %q", utils.ErrValidation, request.CurrentStatus)
	}
	if request.ExpiryTime != 0 && utils.IsExpired(request.ExpiryTime) {
		return fmt.Errorf("%w: expiryTime must be in the future", utils.ErrValidation)
	}
	return nil
}

func (s *ConsentService) createAuthResourceWithTx(ctx context.Context, tx *database.Transaction, consentID, orgID string, now int64, authReq *models.ConsentAuthResourceCreateRequest) error {
	auth := &models.ConsentAuthResource{
		AuthID:      utils.GenerateAuthID(),
		ConsentID:   consentID,
		AuthType:    authReq.AuthType,
		UserID:      authReq.UserID,
		AuthStatus:  authReq.AuthStatus,
		UpdatedTime: now,
		OrgID:       orgID,
	}
	if err := s.authDAO.CreateWithTx(ctx, tx, auth); err != nil {
		return err
	}

	for _, mappingReq := range authReq.Mappings {
		status := mappingReq.MappingStatus
		if status == "" {
			status = models.MappingStatusActive
		}
		mapping := &models.ConsentMapping{
			MappingID:     utils.GenerateMappingID(),
			AuthID:        auth.AuthID,
			AccountID:     mappingReq.AccountID,
			Permission:    mappingReq.Permission,
			MappingStatus: status,
			OrgID:         orgID,
		}
		if err := s.mappingDAO.CreateWithTx(ctx, tx, mapping); err != nil {
			return err
		}
	}

	return nil
}

func (s *ConsentService) idempotencyKeyFromHeaders(headers map[string]string) string {
	return s.validator.KeyFromHeaders(headers)
}

func (s *ConsentService) buildDetailedResponse(detailed *models.DetailedConsent) *models.ConsentResponse {
	return &models.ConsentResponse{
		ConsentID:          detailed.ConsentID,
		Receipt:            detailed.Receipt,
		CreatedTime:        detailed.CreatedTime,
		UpdatedTime:        detailed.UpdatedTime,
		ClientID:           detailed.ClientID,
		ConsentType:        detailed.ConsentType,
		CurrentStatus:      detailed.CurrentStatus,
		ExpiryTime:         detailed.ExpiryTime,
		RecurringIndicator: detailed.RecurringIndicator,
		OrgID:              detailed.OrgID,
		Attributes:         detailed.Attributes,
		AuthResources:      detailed.AuthResources,
		Mappings:           detailed.Mappings,
	}
}

func decodeSubResourcePatch(raw models.JSON) (map[string]string, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var patch map[string]string
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, err
	}
	return patch, nil
}
