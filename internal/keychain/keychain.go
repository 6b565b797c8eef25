// Package keychain stores the master password in the OS credential store
// (Windows Credential Manager, macOS Keychain, Linux Secret Service) so
// the CLI can unlock without prompting. Strictly opt-in.
package keychain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName is the identifier used for keychain storage.
	ServiceName = "toolbox-vault"
	// AccountName is the base account identifier for the master password;
	// vault-specific entries append a sanitized vault id.
	AccountName = "master-password"
)

var (
	// ErrUnavailable indicates the system keychain is not accessible.
	ErrUnavailable = errors.New("system keychain is not available")
	// ErrNotFound indicates no password is stored for this vault.
	ErrNotFound = errors.New("password not found in keychain")
)

// Service provides cross-platform system keychain integration scoped to
// one vault file.
type Service struct {
	available bool
	vaultID   string
}

// New creates a keychain service for a specific vault. vaultID is usually
// the vault directory name; empty selects the global account.
func New(vaultID string) *Service {
	return &Service{vaultID: sanitizeVaultID(vaultID)}
}

// sanitizeVaultID keeps alphanumerics, dash, and underscore so the id is
// safe as a keychain account name.
func sanitizeVaultID(vaultID string) string {
	if vaultID == "" || vaultID == "." {
		return ""
	}
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, vaultID)
	return safe
}

func (s *Service) accountName() string {
	if s.vaultID == "" {
		return AccountName
	}
	return fmt.Sprintf("%s-%s", AccountName, s.vaultID)
}

// Ping tests keychain accessibility by writing and deleting a probe entry.
func (s *Service) Ping() error {
	if s.available {
		return nil
	}

	probe := "toolbox-vault-availability-test"
	if err := keyring.Set(ServiceName, probe, "test"); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_ = keyring.Delete(ServiceName, probe)

	s.available = true
	return nil
}

// IsAvailable reports whether the keychain answered a Ping.
func (s *Service) IsAvailable() bool {
	if !s.available {
		_ = s.Ping()
	}
	return s.available
}

// Store saves the master password for this vault.
func (s *Service) Store(password string) error {
	if err := keyring.Set(ServiceName, s.accountName(), password); err != nil {
		return fmt.Errorf("failed to store password in keychain: %w", err)
	}
	return nil
}

// Retrieve loads the stored master password.
func (s *Service) Retrieve() (string, error) {
	password, err := keyring.Get(ServiceName, s.accountName())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read password from keychain: %w", err)
	}
	return password, nil
}

// Delete removes the stored master password. Missing entries are not an
// error.
func (s *Service) Delete() error {
	err := keyring.Delete(ServiceName, s.accountName())
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete password from keychain: %w", err)
	}
	return nil
}

// Has reports whether a password is stored for this vault.
func (s *Service) Has() bool {
	_, err := s.Retrieve()
	return err == nil
}
