// Package auth authenticates nodes and REST clients to meshd.
//
// APIKeyInterceptor guards the gRPC receiver, Middleware guards HTTP routes
// with the same header and key, and ServerCredentials builds the mTLS
// transport when nodes present client certificates.
package auth
