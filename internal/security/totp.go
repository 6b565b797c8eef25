package security

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrNoTOTPSecret indicates the entry's notes carry no usable secret.
var ErrNoTOTPSecret = errors.New("no TOTP secret found")

const totpNoteTag = "totp:"

// ExtractTOTPSecret pulls a TOTP secret out of free-form notes: either a
// full otpauth:// URI or a line tagged "totp:" followed by a base32
// secret.
func ExtractTOTPSecret(notes string) (string, error) {
	for _, line := range strings.Split(notes, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "otpauth://") {
			return trimmed, nil
		}
		if strings.HasPrefix(lower, totpNoteTag) {
			secret := strings.TrimSpace(trimmed[len(totpNoteTag):])
			if secret != "" {
				return secret, nil
			}
		}
	}
	return "", ErrNoTOTPSecret
}

func validateBase32Secret(secret string) error {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	padded := normalized
	if rem := len(padded) % 8; rem != 0 {
		padded += strings.Repeat("=", 8-rem)
	}
	if _, err := base32.StdEncoding.DecodeString(padded); err != nil {
		return fmt.Errorf("invalid base32 secret: %w", err)
	}
	return nil
}

// TOTPCode generates the current code plus its remaining validity in
// seconds from an otpauth:// URI or bare base32 secret.
func TOTPCode(secretOrURI string, now time.Time) (code string, secondsLeft int, err error) {
	secretOrURI = strings.TrimSpace(secretOrURI)

	period := uint64(30)
	digits := otp.DigitsSix
	algorithm := otp.AlgorithmSHA1
	secret := secretOrURI

	if strings.HasPrefix(strings.ToLower(secretOrURI), "otpauth://") {
		key, err := otp.NewKeyFromURL(secretOrURI)
		if err != nil {
			return "", 0, fmt.Errorf("invalid otpauth URI: %w", err)
		}
		if key.Type() != "totp" {
			return "", 0, fmt.Errorf("unsupported OTP type %q", key.Type())
		}
		secret = key.Secret()
		if p := key.Period(); p > 0 && p <= 300 {
			period = p
		}
		digits = key.Digits()
		algorithm = key.Algorithm()
	} else if err := validateBase32Secret(secret); err != nil {
		return "", 0, err
	}

	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	code, err = totp.GenerateCodeCustom(secret, now, totp.ValidateOpts{
		Period:    uint(period),
		Digits:    digits,
		Algorithm: algorithm,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate code: %w", err)
	}

	elapsed := now.Unix() % int64(period)
	return code, int(int64(period) - elapsed), nil
}
