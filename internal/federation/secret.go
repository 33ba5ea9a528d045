package federation

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	apperrors "github.com/quillsign/federate/pkg/errors"
)

// SecretValidator gates every partner-facing federation operation behind the
// shared secret agreed with the partner platform.
type SecretValidator struct {
	expected string
}

// NewSecretValidator builds a validator for the configured shared secret.
// An empty expected secret is allowed at construction time; validation then
// fails closed with ErrSecretUnconfigured.
func NewSecretValidator(expected string) *SecretValidator {
	return &SecretValidator{expected: strings.TrimSpace(expected)}
}

// Validate compares the supplied secret against the configured value.
// The comparison runs over fixed-length digests so neither the length nor a
// prefix of the secret is recoverable through timing.
func (v *SecretValidator) Validate(supplied string) error {
	if v == nil || v.expected == "" {
		return apperrors.ErrSecretUnconfigured
	}

	suppliedDigest := sha256.Sum256([]byte(supplied))
	expectedDigest := sha256.Sum256([]byte(v.expected))

	if subtle.ConstantTimeCompare(suppliedDigest[:], expectedDigest[:]) != 1 {
		return apperrors.ErrInvalidSecret
	}

	return nil
}
