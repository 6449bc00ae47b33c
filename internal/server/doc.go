// Package server wires the control server together.
//
// It builds the lifecycle manager over the JavaScript loader and the on-disk
// code store, then serves it through a gin engine whose only handler is a
// catch-all dispatcher:
//
//  1. Buffer the request body to end-of-body (gzip accepted, size capped)
//  2. Tokenize the path and route the request
//  3. Write the Result as status code plus text/html body
//
// Middleware adds panic recovery, request IDs, Prometheus metrics and,
// when configured, rate limiting and CORS. Metrics are served on their own
// listener so the control path space stays exactly the routing table.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.Run(ctx)
package server
