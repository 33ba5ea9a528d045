package app

import (
	"fmt"
	"strings"

	"github.com/quillsign/federate/pkg/crypto"
)

const jwtSecretBytes = 32

// ApplyRuntimeDefaults fills secrets that can safely be generated at start-up
// and reports which keys were generated. Sessions issued under a generated
// JWT secret do not survive a restart; the federation external secret is
// deliberately never generated, since the partner must hold the same value.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	return generated, nil
}
