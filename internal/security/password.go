package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/nbutton23/zxcvbn-go"
)

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{};:,.?/\\|~"

	// ambiguousChars are look-alikes dropped when ExcludeAmbiguous is set.
	ambiguousChars = "O0oIl1"
)

var (
	ErrInvalidLength   = errors.New("password length must be positive")
	ErrNoCharacterSets = errors.New("at least one character type must be selected")
	ErrLengthTooShort  = errors.New("length must cover every selected character type")
)

// GeneratorOptions configures password generation.
type GeneratorOptions struct {
	Length                  int
	UseUpper                bool
	UseLower                bool
	UseDigits               bool
	UseSymbols              bool
	ExcludeAmbiguous        bool
	RequireEachSelectedType bool
}

// DefaultGeneratorOptions mirrors the defaults offered by the entry dialog.
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Length:                  16,
		UseUpper:                true,
		UseLower:                true,
		UseDigits:               true,
		UseSymbols:              true,
		ExcludeAmbiguous:        true,
		RequireEachSelectedType: true,
	}
}

func filterAmbiguous(chars string, exclude bool) string {
	if !exclude {
		return chars
	}
	var b strings.Builder
	b.Grow(len(chars))
	for _, r := range chars {
		if !strings.ContainsRune(ambiguousChars, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func randomIndex(n int) (int, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random number: %w", err)
	}
	return int(idx.Int64()), nil
}

func randomChar(pool string) (byte, error) {
	i, err := randomIndex(len(pool))
	if err != nil {
		return 0, err
	}
	return pool[i], nil
}

// Generate creates a random password from the selected character pools.
// With RequireEachSelectedType the output contains at least one character
// from every selected pool; positions are shuffled so required characters
// do not cluster at the front.
func Generate(opts GeneratorOptions) (string, error) {
	if opts.Length <= 0 {
		return "", ErrInvalidLength
	}

	var pools []string
	if opts.UseUpper {
		pools = append(pools, filterAmbiguous(upperChars, opts.ExcludeAmbiguous))
	}
	if opts.UseLower {
		pools = append(pools, filterAmbiguous(lowerChars, opts.ExcludeAmbiguous))
	}
	if opts.UseDigits {
		pools = append(pools, filterAmbiguous(digitChars, opts.ExcludeAmbiguous))
	}
	if opts.UseSymbols {
		pools = append(pools, filterAmbiguous(symbolChars, opts.ExcludeAmbiguous))
	}

	kept := pools[:0]
	for _, pool := range pools {
		if pool != "" {
			kept = append(kept, pool)
		}
	}
	pools = kept

	if len(pools) == 0 {
		return "", ErrNoCharacterSets
	}
	if opts.RequireEachSelectedType && opts.Length < len(pools) {
		return "", ErrLengthTooShort
	}

	all := strings.Join(pools, "")

	out := make([]byte, 0, opts.Length)
	if opts.RequireEachSelectedType {
		for _, pool := range pools {
			c, err := randomChar(pool)
			if err != nil {
				return "", err
			}
			out = append(out, c)
		}
	}
	for len(out) < opts.Length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates shuffle.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

// MasterPolicy gates new master passwords. It never gates unlock.
type MasterPolicy struct {
	MinLength int
	MinScore  int // zxcvbn score 0..4
}

// DefaultMasterPolicy returns the standard policy for create and
// change-master.
func DefaultMasterPolicy() MasterPolicy {
	return MasterPolicy{MinLength: 12, MinScore: 3}
}

// Validate checks a candidate master password against the policy.
func (p MasterPolicy) Validate(password string) error {
	if len([]rune(password)) < p.MinLength {
		return fmt.Errorf("master password must be at least %d characters long", p.MinLength)
	}
	result := zxcvbn.PasswordStrength(password, nil)
	if result.Score < p.MinScore {
		return errors.New("master password is too guessable, choose a stronger one")
	}
	return nil
}
