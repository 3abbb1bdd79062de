// Package auth authenticates roster users.
//
// Passwords are stored as bcrypt hashes. A successful login issues an opaque
// token of the form tok_<user_id>_<16 hex chars> that is recorded in the
// document's token collection. Tokens carry no claims; every request looks
// the token up, checks its age against the configured TTL, and resolves the
// owning user, who must be neither soft-deleted nor inactive.
//
// HTTPAuthMiddleware puts an AuthContext on the request context and
// RequireAdminHTTP gates admin-only routes on it.
package auth
