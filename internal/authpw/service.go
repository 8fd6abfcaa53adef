// Package authpw verifies the owner's passphrase. There is exactly one
// owner per deployment; collaborators join through a share link and
// never carry a passphrase.
package authpw

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid owner name or passphrase")

type Service struct {
	ownerName      string
	passphraseHash []byte
}

// NewService hashes the configured passphrase once at startup. The
// plaintext is never retained.
func NewService(ownerName, passphrase string) (*Service, error) {
	if ownerName == "" || passphrase == "" {
		return nil, errors.New("owner name and passphrase are required")
	}
	if len(passphrase) < 8 {
		return nil, errors.New("owner passphrase must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash passphrase: %w", err)
	}
	return &Service{ownerName: ownerName, passphraseHash: hash}, nil
}

// VerifyOwner checks a login attempt against the configured owner.
// Both failure modes return the same error so names cannot be probed.
func (s *Service) VerifyOwner(name, passphrase string) error {
	if name != s.ownerName {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passphraseHash, []byte(passphrase)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// OwnerName returns the configured owner display name.
func (s *Service) OwnerName() string {
	return s.ownerName
}
