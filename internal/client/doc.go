// Package client is a resty-based client for the control server. Each
// method maps to one route and returns the server's status code and body
// unchanged.
package client
