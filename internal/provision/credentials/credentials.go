package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Credentials is everything a new instance needs to come up behind basic
// auth. Generated once; never regenerated unless the instance is recreated.
type Credentials struct {
	Slug              string
	BasicAuthUser     string
	BasicAuthPassword string
	EncryptionKey     string
}

// Generator produces per-instance credentials from a cryptographically
// secure random source. It has no side effects.
type Generator struct{}

func NewGenerator() *Generator { return &Generator{} }

// Generate builds a credential set for the given tenant. The slug embeds
// the tenant id, a base36 timestamp and random bytes; a collision is a
// hard creation failure upstream, never a silent retry.
func (g *Generator) Generate(tenantID int64) (*Credentials, error) {
	suffix, err := randomHex(4)
	if err != nil {
		return nil, fmt.Errorf("failed to generate slug suffix: %w", err)
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	if len(ts) > 4 {
		ts = ts[len(ts)-4:]
	}
	slug := fmt.Sprintf("cli%d-%s%s", tenantID, ts, suffix)

	userSuffix, err := randomHex(4)
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth user: %w", err)
	}

	pass, err := randomPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}

	key, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	return &Credentials{
		Slug:              slug,
		BasicAuthUser:     "user_" + userSuffix,
		BasicAuthPassword: pass,
		EncryptionKey:     key,
	}, nil
}

// randomPassword returns 16 characters of base64 entropy plus a fixed
// "A1!" tail so the result always satisfies the remote system's
// upper/digit/symbol complexity rules by construction.
func randomPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:16] + "A1!", nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
