package testutil

import (
	"phofmit/internal/encryption"
	"phofmit/internal/phofmit"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() phofmit.Encryptor {
	return encryption.NewTestEncryptor()
}
