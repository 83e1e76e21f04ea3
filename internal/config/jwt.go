// Package config provides JWT configuration functionality.
package config

import (
	"fmt"
	"os"
)

// JWTConfig holds configuration for validating caller identity tokens. Tokens
// are issued by the external identity provider; this service only verifies
// them, so no expiration knob is needed here.
type JWTConfig struct {
	Secret string
}

// NewJWTConfig creates a new JWT configuration from environment variables.
// It reads JWT_SECRET (required).
func NewJWTConfig() (*JWTConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}
	return &JWTConfig{Secret: secret}, nil
}
