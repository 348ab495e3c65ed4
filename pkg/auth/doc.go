// Package auth is the request gateway in front of the vault tools.
//
// For each inbound request the gateway:
//
//  1. Resolves caller credentials from the Authorization header or the
//     apiKey query parameter (Resolve). A Bearer value shaped like a JWT is
//     treated as a bearer token; anything else is treated as an API key.
//  2. Falls back to the operator-provisioned anonymous credential set when
//     no credentials are present and anonymous mode is configured.
//  3. Throttles anonymous requests per client with a fixed-window limiter
//     (FixedWindowLimiter). Authenticated requests are never throttled.
//  4. Validates the target vault configuration (see package vault).
//  5. Builds a fresh backend client and binds a RequestContext to the
//     request's context.Context for the whole of its handling. The context
//     is released when the handler returns, on every exit path.
//
// No authenticity check happens here. Credentials are forwarded to the
// backend, which accepts or rejects them.
package auth
