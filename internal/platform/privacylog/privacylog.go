// Package privacylog wraps a slog handler so nothing person-identifying from
// an emergency intake reaches the logs in the clear. Flow tokens, member ids
// and phone numbers are replaced by salted fingerprints that stay stable
// within one process lifetime for correlation; secrets are redacted outright.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const redacted = "[REDACTED]"

var (
	fingerprintSalt = bootSalt()

	fingerprintKeys = map[string]struct{}{
		"flow_token": {},
		"member_id":  {},
		"phone":      {},
		"nok_phone":  {},
	}
	secretKeyParts = []string{"secret", "token", "password", "passphrase", "key", "authorization"}
)

type Handler struct {
	next slog.Handler
}

func Wrap(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(sanitize(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, sanitize(attr))
	}
	return &Handler{next: h.next.WithAttrs(out)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

func sanitize(attr slog.Attr) slog.Attr {
	key := strings.ToLower(strings.TrimSpace(attr.Key))
	if _, ok := fingerprintKeys[key]; ok {
		return slog.String(attr.Key+"_fp", Fingerprint(attr.Value.String()))
	}
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return slog.String(attr.Key, redacted)
		}
	}
	return attr
}

// Fingerprint maps an identifier to a short salted digest. The salt is
// random per boot, so fingerprints correlate within one run but cannot be
// joined across runs or reversed offline.
func Fingerprint(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	sum := sha256.Sum256(append(append([]byte{}, fingerprintSalt...), value...))
	return hex.EncodeToString(sum[:8])
}

func bootSalt() []byte {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		seed = []byte("lifetap/privacylog/fallback")
	}
	salt := make([]byte, 32)
	r := hkdf.New(sha256.New, seed, nil, []byte("lifetap/privacylog/salt/v1"))
	if _, err := io.ReadFull(r, salt); err != nil {
		return seed
	}
	return salt
}

// Args sanitizes loose key/value pairs for code paths that log through
// helpers instead of a wrapped handler.
func Args(args ...any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			out = append(out, args[i])
			break
		}
		k, ok := args[i].(string)
		if !ok {
			out = append(out, args[i], args[i+1])
			continue
		}
		attr := sanitize(slog.Any(k, args[i+1]))
		out = append(out, attr.Key, attr.Value.Any())
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
