package usecases

import (
	"crypto/subtle"
	"errors"
	"log/slog"

	"neowhatai/internal/entities"
)

const SignatureHeader = "X-Webhook-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignatureMode names where the expected secret came from.
type SignatureMode string

const (
	SignatureTenant   SignatureMode = "tenant"
	SignatureGlobal   SignatureMode = "global"
	SignatureDisabled SignatureMode = "disabled"
)

// SignatureVerifier checks the signature header of webhook deliveries.
type SignatureVerifier struct {
	defaultSecret string
	required      bool
	logger        *slog.Logger
}

// NewSignatureVerifier builds a verifier. With required set, a delivery for a tenant
// without any secret is rejected instead of accepted unsigned.
func NewSignatureVerifier(defaultSecret string, required bool, logger *slog.Logger) *SignatureVerifier {
	return &SignatureVerifier{
		defaultSecret: defaultSecret,
		required:      required,
		logger:        logger.With("component", "signature"),
	}
}

// Mode reports which secret applies to tenant.
func (v *SignatureVerifier) Mode(tenant *entities.Tenant) SignatureMode {
	switch {
	case tenant.WebhookSecret != "":
		return SignatureTenant
	case v.defaultSecret != "":
		return SignatureGlobal
	}
	return SignatureDisabled
}

// Verify compares signature against the tenant secret, then the default secret.
func (v *SignatureVerifier) Verify(tenant *entities.Tenant, signature string) (SignatureMode, error) {
	mode := v.Mode(tenant)
	secret, ok := entities.Resolve(tenant.WebhookSecret, v.defaultSecret).Get()
	if !ok {
		if v.required {
			v.logger.Error("signature required but no secret configured", "tenant_id", tenant.ID)
			return mode, ErrInvalidSignature
		}
		v.logger.Warn("signature verification disabled, accepting unsigned delivery", "tenant_id", tenant.ID)
		return mode, nil
	}

	if subtle.ConstantTimeCompare([]byte(signature), []byte(secret)) != 1 {
		v.logger.Warn("signature mismatch", "tenant_id", tenant.ID, "mode", mode, "has_header", signature != "")
		return mode, ErrInvalidSignature
	}
	return mode, nil
}
