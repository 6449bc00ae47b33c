// Package middleware holds the gin middleware and response helpers shared by
// the control server: rate limiting, CORS and request IDs.
package middleware
