package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rhuss/vaultgate/pkg/auth/jwt"
	"github.com/rhuss/vaultgate/pkg/backend"
	"github.com/rhuss/vaultgate/pkg/debug"
	"github.com/rhuss/vaultgate/pkg/observability"
	"github.com/rhuss/vaultgate/pkg/transport"
	"github.com/rhuss/vaultgate/pkg/vault"
)

// DefaultHelpURL is linked from 429 responses.
const DefaultHelpURL = "https://docs.skyflow.com/"

// AnonymousConfig is the operator-provisioned credential and vault set used
// when a caller brings no credentials of their own.
type AnonymousConfig struct {
	APIKey string
	Vault  vault.Params
}

// Enabled reports whether the set is complete enough to serve requests.
func (a *AnonymousConfig) Enabled() bool {
	return a != nil && a.APIKey != "" && a.Vault.VaultID != "" && a.Vault.VaultURL != ""
}

// BackendFactory builds the per-request backend client. An error means the
// credentials could not be used at all.
type BackendFactory func(creds backend.Credentials, cfg *vault.Config) (backend.Handle, error)

// Gateway composes credential resolution, anonymous throttling, vault
// validation and request context binding into HTTP middleware.
type Gateway struct {
	// Anonymous enables anonymous mode when non-nil and Enabled.
	Anonymous *AnonymousConfig

	// Limiter gates anonymous requests. Required when anonymous mode is enabled.
	Limiter *FixedWindowLimiter

	// VaultDefaults fill vault parameters missing from the query.
	VaultDefaults vault.Params

	// NewBackend builds the per-request backend client.
	NewBackend BackendFactory

	// HelpURL is returned in 429 bodies. Default: DefaultHelpURL.
	HelpURL string

	Logger *slog.Logger
}

// NewGateway checks the wiring and returns a Gateway.
func NewGateway(g Gateway) (*Gateway, error) {
	if g.NewBackend == nil {
		return nil, fmt.Errorf("gateway: backend factory is required")
	}
	if g.Anonymous.Enabled() && g.Limiter == nil {
		return nil, fmt.Errorf("gateway: a rate limiter is required in anonymous mode")
	}
	if g.HelpURL == "" {
		g.HelpURL = DefaultHelpURL
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
	return &g, nil
}

// rateLimitBody is the 429 response body.
type rateLimitBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
	HelpURL           string `json:"helpUrl"`
}

// Middleware returns HTTP middleware that admits a request only once it has
// credentials, a valid vault and (in anonymous mode) rate-limit budget. The
// downstream handler runs with a bound RequestContext, released when it
// returns.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := g.Logger.With("request_id", transport.RequestIDFromContext(r.Context()))
		anonEnabled := g.Anonymous.Enabled()

		// Credentials.
		var creds Credentials
		anonymous := false
		outcome := ResolveRequest(r)
		switch {
		case outcome.Present:
			creds = *outcome.Credentials
			g.logCredentials(logger, creds)
		case anonEnabled:
			creds = APIKey(g.Anonymous.APIKey)
			anonymous = true
			observability.AnonymousFallbackTotal.WithLabelValues("credentials").Inc()
		default:
			logger.Warn("authentication failed",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"error", outcome.Err,
			)
			observability.AuthFailuresTotal.WithLabelValues("credentials").Inc()
			transport.WriteError(w, http.StatusUnauthorized, outcome.Err.Error())
			return
		}

		// Vault parameters. Un-rendered template placeholders switch the whole
		// request to the anonymous set when one is available.
		q := r.URL.Query()
		params := vault.Params{
			VaultID:     q.Get("vaultId"),
			VaultURL:    q.Get("vaultUrl"),
			AccountID:   q.Get("accountId"),
			WorkspaceID: q.Get("workspaceId"),
		}.Merge(g.VaultDefaults)

		if !anonymous && anonEnabled && params.IsPlaceholder() {
			logger.Info("vault parameters are unrendered placeholders, using anonymous mode",
				"vault_id", params.VaultID,
			)
			creds = APIKey(g.Anonymous.APIKey)
			anonymous = true
			observability.AnonymousFallbackTotal.WithLabelValues("placeholder").Inc()
		}
		if anonymous {
			params = g.Anonymous.Vault
		}

		// Throttle anonymous traffic only.
		if anonymous {
			w.Header().Set(observability.ModeHeader, "anonymous")
			if !g.checkRateLimit(w, r, logger) {
				return
			}
		}

		res := vault.Validate(params)
		if !res.Valid {
			logger.Warn("invalid vault configuration", "error", res.Err, "anonymous", anonymous)
			observability.AuthFailuresTotal.WithLabelValues("vault_config").Inc()
			transport.WriteError(w, http.StatusBadRequest, res.Err.Error())
			return
		}

		handle, err := g.NewBackend(creds.Backend(), res.Config)
		if err != nil {
			logger.Warn("backend client rejected credentials",
				"credential_kind", creds.Kind().String(),
				"anonymous", anonymous,
				"error", fmt.Errorf("%w: %w", ErrBackendInitRejected, err),
			)
			observability.AuthFailuresTotal.WithLabelValues("backend_init").Inc()
			transport.WriteError(w, http.StatusUnauthorized, ErrCredentialsMissingOrInvalid.Error())
			return
		}

		rc := newRequestContext(uuid.NewString(), handle, res.Config.VaultID, anonymous)
		defer func() {
			if err := rc.Release(); err != nil {
				logger.Warn("releasing request context", "context_id", rc.ID, "error", err)
			}
		}()

		debug.Log("auth", "request context bound",
			"context_id", rc.ID,
			"vault_id", rc.VaultID,
			"cluster_id", res.Config.ClusterID,
			"anonymous", anonymous,
		)

		next.ServeHTTP(w, r.WithContext(Bind(r.Context(), rc)))
	})
}

// checkRateLimit writes the X-RateLimit-* headers and, when the client is
// over budget, the 429 response. It reports whether the request may proceed.
func (g *Gateway) checkRateLimit(w http.ResponseWriter, r *http.Request, logger *slog.Logger) bool {
	clientID := ClientIdentity(r)
	d := g.Limiter.Check(clientID)

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(d.ResetSeconds))

	if d.Allowed {
		return true
	}

	logger.Warn("anonymous rate limit exceeded",
		"client", clientID,
		"limit", d.Limit,
		"reset_seconds", d.ResetSeconds,
	)
	observability.RateLimitRejectedTotal.Inc()
	observability.AuthFailuresTotal.WithLabelValues("rate_limit").Inc()

	h.Set("Retry-After", strconv.Itoa(d.ResetSeconds))
	transport.WriteJSON(w, http.StatusTooManyRequests, rateLimitBody{
		Error: ErrRateLimitExceeded.Error(),
		Message: fmt.Sprintf("Anonymous mode allows %d requests per %s. Provide your own credentials to remove this limit.",
			d.Limit, g.Limiter.Config().Window),
		RetryAfterSeconds: d.ResetSeconds,
		HelpURL:           g.HelpURL,
	})
	return false
}

// logCredentials records which credential variant a request carries. For
// bearer tokens it peeks at unverified claims; nothing here is trusted.
func (g *Gateway) logCredentials(logger *slog.Logger, creds Credentials) {
	if !debug.Enabled("auth") {
		return
	}
	token, ok := creds.Token()
	if !ok {
		debug.Log("auth", "credentials resolved", "kind", creds.Kind().String())
		return
	}
	claims, err := jwt.Peek(token)
	if err != nil {
		debug.Log("auth", "credentials resolved", "kind", creds.Kind().String(), "claims", "unreadable")
		return
	}
	debug.Log("auth", "credentials resolved",
		"kind", creds.Kind().String(),
		"subject", claims.Subject,
		"expired", claims.Expired(),
	)
	if claims.Expired() {
		logger.Info("bearer token appears expired, forwarding to backend anyway", "subject", claims.Subject)
	}
}
