package keychain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeVaultID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{".", ""},
		{"my-vault", "my-vault"},
		{"my_vault2", "my_vault2"},
		{"path/to/vault", "path_to_vault"},
		{"spaces here", "spaces_here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeVaultID(tt.in), "input %q", tt.in)
	}
}

func TestAccountName(t *testing.T) {
	assert.Equal(t, "master-password", New("").accountName())
	assert.Equal(t, "master-password-work", New("work").accountName())
}
