package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" // #nosec G505 -- breach-prefix lookups only, never for integrity
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeyLength  = 32 // derived master key length
	SaltLength = 16 // KDF salt length
	NonceSize  = 16 // envelope nonce length
	TagSize    = 16 // leftmost bytes of the HMAC-SHA256 tag

	// DefaultIterations is the PBKDF2 iteration count for new vaults.
	// MinIterations is the floor enforced when a configured value is lower.
	DefaultIterations = 120000
	MinIterations     = 120000

	keystreamBlockSize = 32
)

var (
	envelopeMagic = []byte("TBX1")

	subkeyEncContext = []byte("ToolboxPM/enc")
	subkeyMacContext = []byte("ToolboxPM/mac")
)

const (
	envelopeVersion    = byte(0x01)
	envelopeHeaderSize = 4 + 1 + NonceSize + TagSize
)

var (
	ErrInvalidKeyLength = errors.New("invalid key length")
	// ErrIntegrity is returned for every Open failure: short blob, wrong
	// magic, unsupported version, or tag mismatch. Callers must not be able
	// to tell tampering apart from a wrong key.
	ErrIntegrity = errors.New("invalid or tampered data")
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("invalid length")
	}
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return out, nil
}

// GenerateSalt returns a fresh random KDF salt.
func GenerateSalt() ([]byte, error) {
	salt, err := RandomBytes(SaltLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte key from a password with PBKDF2-HMAC-SHA256.
// The iteration count is taken as given: stored vaults carry their own
// cost and must keep opening after the default changes. The MinIterations
// floor is enforced where new parameters are chosen.
func DeriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeyLength, sha256.New)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SHA1HexUpper returns the uppercase hex SHA-1 of data. Used only to build
// k-anonymity breach-lookup prefixes.
func SHA1HexUpper(data []byte) string {
	sum := sha1.Sum(data) // #nosec G401
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func hmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

func deriveSubkey(key, context []byte) []byte {
	return hmacSHA256(key, context)
}

// xorKeystream XORs input against the counter-mode keystream
// HMAC-SHA256(encKey, nonce || be32(block)) and returns the result.
func xorKeystream(encKey, nonce, input []byte) []byte {
	out := make([]byte, len(input))
	var counter [4]byte

	blocks := (len(input) + keystreamBlockSize - 1) / keystreamBlockSize
	for block := 0; block < blocks; block++ {
		binary.BigEndian.PutUint32(counter[:], uint32(block))

		msg := make([]byte, 0, len(nonce)+4)
		msg = append(msg, nonce...)
		msg = append(msg, counter[:]...)
		stream := hmacSHA256(encKey, msg)

		offset := block * keystreamBlockSize
		chunk := len(input) - offset
		if chunk > keystreamBlockSize {
			chunk = keystreamBlockSize
		}
		for i := 0; i < chunk; i++ {
			out[offset+i] = input[offset+i] ^ stream[i]
		}
	}
	return out
}

// Seal encrypts plaintext under key and returns the envelope
// magic || version || nonce || tag || ciphertext. The tag is computed
// encrypt-then-MAC over nonce || ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	encKey := deriveSubkey(key, subkeyEncContext)
	macKey := deriveSubkey(key, subkeyMacContext)
	defer ClearBytes(encKey)
	defer ClearBytes(macKey)

	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, err
	}

	ciphertext := xorKeystream(encKey, nonce, plaintext)

	macInput := make([]byte, 0, NonceSize+len(ciphertext))
	macInput = append(macInput, nonce...)
	macInput = append(macInput, ciphertext...)
	tag := hmacSHA256(macKey, macInput)[:TagSize]

	out := make([]byte, 0, envelopeHeaderSize+len(ciphertext))
	out = append(out, envelopeMagic...)
	out = append(out, envelopeVersion)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open verifies and decrypts an envelope produced by Seal. The tag is
// checked in constant time before any decryption happens.
func Open(key, blob []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(blob) < envelopeHeaderSize {
		return nil, ErrIntegrity
	}
	if !hmac.Equal(blob[:4], envelopeMagic) {
		return nil, ErrIntegrity
	}
	if blob[4] != envelopeVersion {
		return nil, ErrIntegrity
	}

	nonce := blob[5 : 5+NonceSize]
	tag := blob[5+NonceSize : envelopeHeaderSize]
	ciphertext := blob[envelopeHeaderSize:]

	macKey := deriveSubkey(key, subkeyMacContext)
	defer ClearBytes(macKey)

	macInput := make([]byte, 0, NonceSize+len(ciphertext))
	macInput = append(macInput, nonce...)
	macInput = append(macInput, ciphertext...)
	expected := hmacSHA256(macKey, macInput)[:TagSize]

	if subtle.ConstantTimeCompare(tag, expected) != 1 {
		return nil, ErrIntegrity
	}

	encKey := deriveSubkey(key, subkeyEncContext)
	defer ClearBytes(encKey)
	return xorKeystream(encKey, nonce, ciphertext), nil
}

// ClearBytes securely zeros a byte slice. The ConstantTimeCompare call acts
// as a compiler barrier so the zeroing cannot be optimized away.
func ClearBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
	dummy := make([]byte, len(data))
	subtle.ConstantTimeCompare(data, dummy)
}
