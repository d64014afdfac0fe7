package wowza

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// digestChallenge holds the fields of a WWW-Authenticate: Digest header as
// issued by the Wowza REST API (RFC 2617, MD5 with optional qop=auth).
type digestChallenge struct {
	realm     string
	nonce     string
	opaque    string
	qop       string
	algorithm string
}

func parseDigestChallenge(header string) (digestChallenge, error) {
	const prefix = "Digest "
	if !strings.HasPrefix(header, prefix) {
		return digestChallenge{}, fmt.Errorf("not a digest challenge: %q", header)
	}
	challenge := digestChallenge{algorithm: "MD5"}
	for _, part := range splitChallengeParams(header[len(prefix):]) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "realm":
			challenge.realm = value
		case "nonce":
			challenge.nonce = value
		case "opaque":
			challenge.opaque = value
		case "qop":
			challenge.qop = value
		case "algorithm":
			challenge.algorithm = value
		}
	}
	if challenge.nonce == "" {
		return digestChallenge{}, fmt.Errorf("digest challenge missing nonce")
	}
	return challenge, nil
}

// splitChallengeParams splits on commas outside quoted strings.
func splitChallengeParams(input string) []string {
	var parts []string
	var builder strings.Builder
	quoted := false
	for _, r := range input {
		switch {
		case r == '"':
			quoted = !quoted
			builder.WriteRune(r)
		case r == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(builder.String()))
			builder.Reset()
		default:
			builder.WriteRune(r)
		}
	}
	if builder.Len() > 0 {
		parts = append(parts, strings.TrimSpace(builder.String()))
	}
	return parts
}

// authorization computes the Authorization header value for the given request
// line. nc is fixed at 1 because every request performs a fresh handshake.
func (c digestChallenge) authorization(username, password, method, uri string) (string, error) {
	cnonce, err := generateCnonce()
	if err != nil {
		return "", err
	}

	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", username, c.realm, password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))

	var response string
	qop := selectQop(c.qop)
	if qop == "auth" {
		response = md5Hex(fmt.Sprintf("%s:%s:%08x:%s:%s:%s", ha1, c.nonce, 1, cnonce, qop, ha2))
	} else {
		response = md5Hex(fmt.Sprintf("%s:%s:%s", ha1, c.nonce, ha2))
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, `Digest username=%q, realm=%q, nonce=%q, uri=%q, response=%q`,
		username, c.realm, c.nonce, uri, response)
	if qop == "auth" {
		fmt.Fprintf(&builder, `, qop=auth, nc=%08x, cnonce=%q`, 1, cnonce)
	}
	if c.opaque != "" {
		fmt.Fprintf(&builder, `, opaque=%q`, c.opaque)
	}
	if c.algorithm != "" {
		fmt.Fprintf(&builder, `, algorithm=%s`, c.algorithm)
	}
	return builder.String(), nil
}

func selectQop(offered string) string {
	for _, qop := range strings.Split(offered, ",") {
		if strings.TrimSpace(qop) == "auth" {
			return "auth"
		}
	}
	return ""
}

func md5Hex(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

func generateCnonce() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate cnonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
