// Command server is pantin's entry point: it loads configuration from CLI
// flags and PANTIN_-prefixed environment variables, starts the browser
// fleet pool and the HTTP server described in spec.md §6, and drains both
// on SIGINT/SIGTERM.
//
// Usage:
//
//	./server --server-port 4242 --browser-program firefox --log-level info
//
// Every flag has a PANTIN_-prefixed environment variable equivalent
// (spec.md §6); a flag set on the command line takes precedence over its
// environment variable.
package main
