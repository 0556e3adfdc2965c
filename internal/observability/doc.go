// Package observability builds the process logger and the Prometheus
// collectors recorded around every forwarded request.
//
// Loggers write to stderr or a file, never stdout, so the stdio transport
// keeps its stream clean.
package observability
