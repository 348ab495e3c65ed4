package auth

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/rhuss/vaultgate/pkg/backend"
)

// Sentinel errors. Each maps to exactly one HTTP status.
var (
	// ErrCredentialsMissingOrInvalid maps to 401.
	ErrCredentialsMissingOrInvalid = errors.New("missing credentials: provide an Authorization: Bearer <token> header or an apiKey query parameter")

	// ErrBackendInitRejected maps to 401. It is deliberately indistinguishable
	// from ErrCredentialsMissingOrInvalid to the caller.
	ErrBackendInitRejected = errors.New("credentials rejected")

	// ErrRateLimitExceeded maps to 429.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// CredentialKind identifies the active variant of Credentials.
type CredentialKind int

const (
	// KindBearerToken is a JWT-shaped bearer token.
	KindBearerToken CredentialKind = iota + 1

	// KindAPIKey is an opaque API key.
	KindAPIKey
)

func (k CredentialKind) String() string {
	switch k {
	case KindBearerToken:
		return "bearer_token"
	case KindAPIKey:
		return "api_key"
	default:
		return "unknown"
	}
}

// Credentials is a tagged union: exactly one variant is active. Build it
// with BearerToken or APIKey.
type Credentials struct {
	kind  CredentialKind
	value string
}

// BearerToken returns bearer-token credentials.
func BearerToken(token string) Credentials {
	return Credentials{kind: KindBearerToken, value: token}
}

// APIKey returns API-key credentials.
func APIKey(key string) Credentials {
	return Credentials{kind: KindAPIKey, value: key}
}

// Kind returns the active variant.
func (c Credentials) Kind() CredentialKind { return c.kind }

// Token returns the bearer token, if that is the active variant.
func (c Credentials) Token() (string, bool) {
	return c.value, c.kind == KindBearerToken
}

// APIKeyValue returns the API key, if that is the active variant.
func (c Credentials) APIKeyValue() (string, bool) {
	return c.value, c.kind == KindAPIKey
}

// Backend converts c into the shape the backend client expects.
func (c Credentials) Backend() backend.Credentials {
	if c.kind == KindBearerToken {
		return backend.Credentials{Token: c.value}
	}
	return backend.Credentials{APIKey: c.value}
}

// String never prints the secret.
func (c Credentials) String() string {
	return c.kind.String()
}

// AuthOutcome is the result of Resolve, discriminated by Present.
type AuthOutcome struct {
	Present     bool
	Credentials *Credentials // set only when Present
	Err         error        // set only when !Present
}

const bearerPrefix = "Bearer "

var base64URLSegment = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// IsJWTShaped reports whether s splits on "." into exactly three non-empty
// base64url segments. This is a format heuristic, not a signature check.
func IsJWTShaped(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if !base64URLSegment.MatchString(p) {
			return false
		}
	}
	return true
}

// Resolve maps the raw Authorization header and apiKey query parameter to
// credentials. A header that yields any non-empty value wins over the
// query parameter.
func Resolve(authHeader, apiKeyParam string) AuthOutcome {
	if strings.HasPrefix(authHeader, bearerPrefix) {
		if value := strings.TrimSpace(authHeader[len(bearerPrefix):]); value != "" {
			creds := APIKey(value)
			if IsJWTShaped(value) {
				creds = BearerToken(value)
			}
			return AuthOutcome{Present: true, Credentials: &creds}
		}
	}

	if key := strings.TrimSpace(apiKeyParam); key != "" {
		creds := APIKey(key)
		return AuthOutcome{Present: true, Credentials: &creds}
	}

	return AuthOutcome{Err: ErrCredentialsMissingOrInvalid}
}

// ResolveRequest runs Resolve on the credential channels of r.
func ResolveRequest(r *http.Request) AuthOutcome {
	return Resolve(r.Header.Get("Authorization"), r.URL.Query().Get("apiKey"))
}
