package payfast

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMissingSignature is returned when the body carries no signature field.
var ErrMissingSignature = errors.New("payfast: missing signature")

// ErrSignatureMismatch is returned when the recomputed digest differs
// from the supplied one.
var ErrSignatureMismatch = errors.New("payfast: signature mismatch")

// VerifySignature は ITN のシグネチャを生のボディバイト列に対して検証する。
//
// The gateway does not sign a canonicalized representation. It signs
// the exact parameter string it transmitted, so the base string is
// rebuilt from the raw body (field order and percent-encoding
// preserved) rather than from re-serialized parsed fields. The digest
// is MD5 because that is what the gateway's own signature uses.
func VerifySignature(raw []byte, passphrase string) error {
	fragments := strings.Split(string(raw), "&")
	base := make([]string, 0, len(fragments))
	supplied := ""
	for _, f := range fragments {
		if v, ok := strings.CutPrefix(f, "signature="); ok {
			supplied = v
			continue
		}
		base = append(base, f)
	}
	if supplied == "" {
		return ErrMissingSignature
	}

	signed := strings.Join(base, "&")
	if passphrase != "" {
		signed += "&passphrase=" + encode(passphrase)
	}

	sum := md5.Sum([]byte(signed))
	want := hex.EncodeToString(sum[:])

	// case-insensitive, constant-time compare
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(supplied))) {
		return ErrSignatureMismatch
	}
	return nil
}

// encode percent-encodes a value with the gateway's rules: space as
// '+', uppercase hex escapes, only [A-Za-z0-9-_.] left bare. Note '~'
// is escaped, unlike RFC 3986.
func encode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0F])
		}
	}
	return b.String()
}
