package services

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// PasswordHasher is the pluggable credential scheme the ledger consumes.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Matches(plaintext, encoded string) bool
}

// Argon2Hasher implements PasswordHasher with argon2id. Parameters come from
// viper ("argon2.*") with working defaults, and the encoded form is
// base64(salt) + "$" + base64(hash).
type Argon2Hasher struct{}

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{}
}

func (Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonInt("argon2.salt_length", 16))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(argonInt("argon2.time", 1)),
		uint32(argonInt("argon2.memory", 64*1024)),
		uint8(argonInt("argon2.threads", 4)),
		uint32(argonInt("argon2.key_length", 32)))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (Argon2Hasher) Matches(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt,
		uint32(argonInt("argon2.time", 1)),
		uint32(argonInt("argon2.memory", 64*1024)),
		uint8(argonInt("argon2.threads", 4)),
		uint32(argonInt("argon2.key_length", 32)))
	return string(hash) == string(computed)
}

func argonInt(key string, def int) int {
	if v := viper.GetInt(key); v > 0 {
		return v
	}
	return def
}
