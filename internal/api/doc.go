// Package api serves the roster HTTP API.
//
// Handlers are thin. Reads call Store.Load; every mutation runs inside a
// single Store.Update so validation and the write share one critical section.
// Domain errors are translated to status codes in one place (statusFor).
package api
