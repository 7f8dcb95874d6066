package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	saltLength = 16
	keyLength  = 32
)

var ErrInvalidHash = errors.New("invalid hash format")

// HashParams are the argon2id cost parameters. They are encoded into every
// hash, so raising them later does not invalidate stored passwords.
type HashParams struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
}

var DefaultHashParams = HashParams{Memory: 64 * 1024, Time: 3, Threads: 2}

// PasswordHasher hashes with argon2id and verifies both argon2id and legacy
// bcrypt hashes.
type PasswordHasher struct {
	params HashParams
}

func NewPasswordHasher(params HashParams) *PasswordHasher {
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 {
		params = DefaultHashParams
	}
	return &PasswordHasher{params: params}
}

// Hash returns format: $argon2id$v=19$m=65536,t=3,p=2$salt$hash
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify reports whether password matches hashedPassword. A mismatch is not
// an error; an unparseable hash is.
func (h *PasswordHasher) Verify(password, hashedPassword string) (bool, error) {
	if isBcrypt(hashedPassword) {
		err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, ErrInvalidHash
		}
		return true, nil
	}

	params, salt, expected, err := decodeArgon2(hashedPassword)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsRehash reports whether hashedPassword was produced by bcrypt or by
// weaker argon2id parameters than the hasher's current ones.
func (h *PasswordHasher) NeedsRehash(hashedPassword string) bool {
	if isBcrypt(hashedPassword) {
		return true
	}
	params, _, _, err := decodeArgon2(hashedPassword)
	if err != nil {
		return true
	}
	return params.Memory < h.params.Memory || params.Time < h.params.Time || params.Threads < h.params.Threads
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func decodeArgon2(hashedPassword string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return HashParams{}, nil, nil, ErrInvalidHash
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return HashParams{}, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashParams{}, nil, nil, ErrInvalidHash
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return HashParams{}, nil, nil, ErrInvalidHash
	}
	return params, salt, hash, nil
}

func parseParams(value string) (HashParams, error) {
	fields := strings.Split(value, ",")
	if len(fields) != 3 {
		return HashParams{}, ErrInvalidHash
	}
	var out [3]uint64
	for i, prefix := range []string{"m=", "t=", "p="} {
		if !strings.HasPrefix(fields[i], prefix) {
			return HashParams{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(fields[i], prefix), 10, 32)
		if err != nil {
			return HashParams{}, ErrInvalidHash
		}
		out[i] = n
	}
	if out[2] > 255 {
		return HashParams{}, ErrInvalidHash
	}
	return HashParams{Memory: uint32(out[0]), Time: uint32(out[1]), Threads: uint8(out[2])}, nil
}
