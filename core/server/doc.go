// Package server holds the HTTP server configuration and the JSON error
// responses shared by every feature handler.
//
// The Config struct defines the HTTP port, the API key protecting every route and the
// request body limit applied to the Fiber application. Error maps the error taxonomy
// of core/errs onto status codes.
package server
