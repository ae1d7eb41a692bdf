package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// encodedHash mirrors the PHC-style string format passlib/argon2-cffi
// produce, so the parameters travel with the hash instead of living only in
// DefaultArgon2Params — a rotation of the global params never invalidates
// hashes minted under the old ones.
const hashFormat = "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"

// HashPassword argon2id-hashes plaintext with params, returning the encoded
// string persisted as User.PasswordHash. Fails the minimum-length check
// spec.md requires (12 chars) before touching the KDF.
func HashPassword(plaintext string, params Argon2Params) (string, error) {
	if len(plaintext) < MinPasswordLength {
		return "", apperr.FieldError("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", apperr.Wrap(apperr.Internal, "generate salt", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, params.TimeCost, params.MemoryKiB, params.Parallelism, params.KeyLen)
	encoded := fmt.Sprintf(hashFormat, argon2.Version, params.MemoryKiB, params.TimeCost, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key))
	return encoded, nil
}

// VerifyPassword reports whether plaintext matches encoded, re-deriving the
// key with the parameters embedded in encoded (not DefaultArgon2Params) so
// verification survives a future parameter bump.
func VerifyPassword(plaintext, encoded string) (bool, error) {
	var version int
	var memoryKiB, timeCost uint32
	var parallelism uint8
	var saltB64, keyB64 string

	if _, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$", &version, &memoryKiB, &timeCost, &parallelism); err != nil {
		return false, apperr.Wrap(apperr.Internal, "parse password hash", err)
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, apperr.New(apperr.Internal, "malformed password hash")
	}
	saltB64, keyB64 = parts[4], parts[5]

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "decode salt", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(keyB64)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "decode key", err)
	}

	got := argon2.IDKey([]byte(plaintext), salt, timeCost, memoryKiB, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
