// Package client is a small HTTP client for the roster API.
//
// It is used by the roster CLI for seeding, backups, restores and health
// checks. Requests carry a bearer token, either given up front with
// WithToken or obtained by Login:
//
//	c := client.New("http://localhost:8000")
//	if _, err := c.Login(ctx, "admin", password); err != nil {
//		return err
//	}
//	data, filename, err := c.Backup(ctx)
//
// Non-2xx responses are returned as *Error, carrying the status code and the
// server's {"error": ...} message. IsStatus tests for a specific code.
package client
