// Package transport holds the HTTP plumbing shared by the gateway: JSON
// error responses, request IDs, panic recovery and access logging.
//
// Middleware here has the standard func(http.Handler) http.Handler shape so
// it composes with chi and with the auth gateway. Chain(a, b, c) produces
// a(b(c(handler))).
//
// The server itself lives in the http subpackage.
package transport
