package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by authenticated gateway requests.
const (
	HeaderAPIKey     = "X-FHE-API-KEY"
	HeaderTimestamp  = "X-FHE-TIMESTAMP"
	HeaderPassphrase = "X-FHE-PASSPHRASE"
	HeaderSignature  = "X-FHE-SIGNATURE"
)

// GatewayAuth holds the API credentials of an FHE gateway that requires
// HMAC-authenticated requests.
type GatewayAuth struct {
	Key        string
	Secret     string // base64; raw bytes are used if it does not decode
	Passphrase string
}

// Enabled reports whether credentials are configured.
func (g *GatewayAuth) Enabled() bool {
	return g != nil && g.Key != "" && g.Secret != ""
}

// Headers returns the authentication headers for one request. The signature
// is base64(HMAC-SHA256(secret, timestamp+method+path+body)).
func (g *GatewayAuth) Headers(method, path, body string) map[string]string {
	return g.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is Headers with a caller-supplied Unix timestamp.
func (g *GatewayAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secret, err := base64.StdEncoding.DecodeString(g.Secret)
	if err != nil {
		secret = []byte(g.Secret)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))

	return map[string]string{
		HeaderAPIKey:     g.Key,
		HeaderTimestamp:  ts,
		HeaderPassphrase: g.Passphrase,
		HeaderSignature:  base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}
}

// String returns a redacted representation suitable for logging.
func (g *GatewayAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("GatewayAuth{key=%s, secret=%s}", redact(g.Key), redact(g.Secret))
}
