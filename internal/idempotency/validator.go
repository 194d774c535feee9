// Package idempotency decides whether an inbound consent mutation is a
// duplicate of an earlier request. The validator classifies each request as
// not idempotent (first occurrence, proceed), a valid replay (answer from the
// stored consent, do not re-execute), or an invalid reuse of a key (reject as
// a conflict). Rejection is the double-submission defense: the caller must
// never re-run the mutation on an Invalid outcome.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/financial-services-consent-mgt/internal/models"
	"github.com/wso2/financial-services-consent-mgt/pkg/utils"
)

// Status classifies the outcome of a validation
type Status int

const (
	// NotIdempotent means the key was never seen (or validation is not
	// applicable); the caller proceeds with a normal creation
	NotIdempotent Status = iota
	// Valid means the request is a safe replay of an earlier one; the caller
	// answers from the matched consent without re-executing the mutation
	Valid
	// Invalid means the key was reused under failing conditions; the caller
	// rejects the request as a conflict
	Invalid
)

// Named validation failures. They are logged individually but collapsed into
// a single conflict error at the API boundary so callers cannot tell which
// check failed.
var (
	ErrClientMismatch  = errors.New("idempotency key reused by a different client")
	ErrWindowExceeded  = errors.New("idempotency key reused outside the allowed time window")
	ErrPayloadMismatch = errors.New("payload does not match the originally submitted payload")
	ErrNoStoredConsent = errors.New("idempotency key matched but the stored consent no longer exists")
)

// Result is the validator's three-way outcome. Consent and ConsentID are set
// only for Valid; Failure names the failed check only for Invalid.
type Result struct {
	Status    Status
	ConsentID string
	Consent   *models.DetailedConsent
	Failure   error
}

// IsIdempotent reports whether the request carried a previously seen key,
// regardless of whether the replay conditions held.
func (r *Result) IsIdempotent() bool {
	return r.Status != NotIdempotent
}

// Store is the narrow slice of consent storage the validator needs
type Store interface {
	FindConsentIDsByAttribute(ctx context.Context, key, value, orgID string) ([]string, error)
	GetDetailedConsent(ctx context.Context, consentID, orgID string) (*models.DetailedConsent, error)
	GetConsentFile(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error)
}

// Config carries the administrator-driven validator settings
type Config struct {
	Enabled             bool
	AllowedWindow       time.Duration
	HeaderName          string
	AllowedConsentTypes []string
}

// Request is the inbound mutation request shape the validator consumes
type Request struct {
	ClientID     string
	OrgID        string
	Path         string
	Headers      map[string]string
	Payload      string
	ContentType  string
	ReceivedTime int64 // millis since epoch; zero means "now"
	FileUpload   bool
}

// Validator detects and classifies duplicate mutation requests. Construct one
// per process and share it; it holds no per-request state.
type Validator struct {
	store  Store
	config Config
	logger *logrus.Logger
}

// NewValidator creates a new Validator instance
func NewValidator(store Store, config Config, logger *logrus.Logger) *Validator {
	return &Validator{
		store:  store,
		config: config,
		logger: logger,
	}
}

// KeyFromHeaders extracts the idempotency key from a request header map. The
// configured header name is matched both as written and in its net/http
// canonical form, since the HTTP stack canonicalizes header keys regardless of
// how the client (or the configuration) spells them. The value is trimmed so
// the same key always stores and matches identically.
func (v *Validator) KeyFromHeaders(headers map[string]string) string {
	if value, ok := headers[v.config.HeaderName]; ok {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(headers[textproto.CanonicalMIMEHeaderKey(v.config.HeaderName)])
}

// Validate runs the idempotency state machine for one request. A returned
// error is an infrastructure failure (store unreachable); the caller must
// treat it as "not a valid replay" and reject rather than create a possible
// duplicate. Inability to validate for configuration reasons is not an error:
// it resolves to NotIdempotent and the request proceeds without replay
// protection.
func (v *Validator) Validate(ctx context.Context, req *Request) (*Result, error) {
	if !v.config.Enabled || strings.TrimSpace(req.ClientID) == "" {
		return &Result{Status: NotIdempotent}, nil
	}

	keyValue := v.KeyFromHeaders(req.Headers)
	if keyValue == "" {
		return &Result{Status: NotIdempotent}, nil
	}

	attributeName := models.AttrIdempotencyKey
	if req.FileUpload {
		attributeName = models.AttrFileUploadIdempotencyKey
	}

	consentIDs, err := v.store.FindConsentIDsByAttribute(ctx, attributeName, keyValue, req.OrgID)
	if err != nil {
		// fail closed: an unreadable key index must not let a duplicate
		// mutation through
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if len(consentIDs) == 0 {
		return &Result{Status: NotIdempotent}, nil
	}

	consentID := consentIDs[0]
	log := v.logger.WithFields(logrus.Fields{
		"consent_id":      consentID,
		"client_id":       req.ClientID,
		"idempotency_key": utils.SanitizeLogValue(keyValue),
	})

	consent, err := v.store.GetDetailedConsent(ctx, consentID, req.OrgID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("Idempotency key matched a consent that no longer exists")
			return &Result{Status: Invalid, Failure: ErrNoStoredConsent}, nil
		}
		return nil, fmt.Errorf("failed to fetch consent for idempotency check: %w", err)
	}

	if !v.isEligibleConsentType(consent.ConsentType) {
		return &Result{Status: NotIdempotent}, nil
	}

	if consent.ClientID != req.ClientID {
		log.Warn("Idempotency key reused by a different client")
		return &Result{Status: Invalid, Failure: ErrClientMismatch}, nil
	}

	if !v.withinAllowedWindow(req, consent) {
		log.Warn("Idempotency key reused outside the allowed time window")
		return &Result{Status: Invalid, Failure: ErrWindowExceeded}, nil
	}

	storedPayload, err := v.storedPayload(ctx, req, consent)
	if err != nil {
		return nil, err
	}
	equal, err := payloadsEqual(req.ContentType, req.Payload, storedPayload)
	if err != nil {
		// a payload we cannot parse is never a valid replay
		log.WithError(err).Warn("Failed to compare payloads for idempotency check")
		return &Result{Status: Invalid, Failure: ErrPayloadMismatch}, nil
	}
	if !equal {
		log.Warn("Idempotency key reused with a different payload")
		return &Result{Status: Invalid, Failure: ErrPayloadMismatch}, nil
	}

	log.Debug("Request validated as an idempotent replay")
	return &Result{
		Status:    Valid,
		ConsentID: consentID,
		Consent:   consent,
	}, nil
}

func (v *Validator) isEligibleConsentType(consentType string) bool {
	for _, allowed := range v.config.AllowedConsentTypes {
		if allowed == consentType {
			return true
		}
	}
	return false
}

// withinAllowedWindow checks the dedup window against the stored creation
// time: the consent's own created time for ordinary requests, or the
// dedicated file-upload timestamp attribute for file uploads (defaulting to
// zero, which is always outside the window).
func (v *Validator) withinAllowedWindow(req *Request, consent *models.DetailedConsent) bool {
	storedCreationTime := consent.CreatedTime
	if req.FileUpload {
		storedCreationTime = 0
		if raw, ok := consent.Attributes[models.AttrFileUploadCreatedTime]; ok {
			if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
				storedCreationTime = parsed
			}
		}
	}

	now := req.ReceivedTime
	if now == 0 {
		now = utils.GetCurrentTimeMillis()
	}

	elapsed := now - storedCreationTime
	if elapsed < 0 {
		elapsed = -elapsed
	}

	return elapsed <= v.config.AllowedWindow.Milliseconds()
}

func (v *Validator) storedPayload(ctx context.Context, req *Request, consent *models.DetailedConsent) (string, error) {
	if !req.FileUpload {
		return string(consent.Receipt), nil
	}

	file, err := v.store.GetConsentFile(ctx, consent.ConsentID, req.OrgID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch stored consent file for idempotency check: %w", err)
	}
	return string(file.ConsentFile), nil
}
