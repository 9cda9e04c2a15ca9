// Package cursor mints and resolves the opaque continuation tokens the
// gateway hands to callers. Tokens are HMAC-signed so position state never
// round-trips in cleartext, and a companion TTL cache holds the resume state
// a token points at.
package cursor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
)

const signatureSize = sha256.Size

// HMACCodec signs JSON cursor payloads with HMAC-SHA256. A token is
// signature followed by payload, base64url encoded; any bit flip fails the
// constant-time signature check.
type HMACCodec struct {
	key []byte
	ttl time.Duration
	Now func() time.Time
}

func NewHMACCodec(signingKey string, ttl time.Duration) (*HMACCodec, error) {
	signingKey = strings.TrimSpace(signingKey)
	if len(signingKey) < 16 {
		return nil, fmt.Errorf("cursor: signing key must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &HMACCodec{
		key: []byte(signingKey),
		ttl: ttl,
		Now: time.Now,
	}, nil
}

func (c *HMACCodec) Encode(state core.CursorState) (string, error) {
	if c == nil {
		return "", fmt.Errorf("cursor: codec is nil")
	}
	if state.IssuedAt.IsZero() {
		state.IssuedAt = c.now()
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("cursor: encode state: %w", err)
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	signed := append(mac.Sum(nil), payload...)
	return base64.RawURLEncoding.EncodeToString(signed), nil
}

func (c *HMACCodec) Decode(token string) (core.CursorState, error) {
	if c == nil {
		return core.CursorState{}, fmt.Errorf("cursor: codec is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return core.CursorState{}, fmt.Errorf("cursor: %w: empty token", core.ErrCursorInvalid)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return core.CursorState{}, fmt.Errorf("cursor: %w: malformed token", core.ErrCursorInvalid)
	}
	if len(raw) <= signatureSize {
		return core.CursorState{}, fmt.Errorf("cursor: %w: truncated token", core.ErrCursorInvalid)
	}

	signature := raw[:signatureSize]
	payload := raw[signatureSize:]
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return core.CursorState{}, fmt.Errorf("cursor: %w: signature mismatch", core.ErrCursorInvalid)
	}

	var state core.CursorState
	if err := json.Unmarshal(payload, &state); err != nil {
		return core.CursorState{}, fmt.Errorf("cursor: %w: payload decode failed", core.ErrCursorInvalid)
	}
	if state.IssuedAt.IsZero() {
		return core.CursorState{}, fmt.Errorf("cursor: %w: missing issue time", core.ErrCursorInvalid)
	}
	if c.now().After(state.IssuedAt.Add(c.ttl)) {
		return core.CursorState{}, fmt.Errorf("cursor: %w: token expired", core.ErrCursorInvalid)
	}
	return state, nil
}

func (c *HMACCodec) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.CursorCodec = (*HMACCodec)(nil)
