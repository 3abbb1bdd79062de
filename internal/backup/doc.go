// Package backup converts the roster document to and from a versioned
// envelope and archives envelopes to a filesystem directory or an S3 bucket.
//
// Import supports two modes. Wipe makes the document exactly the payload,
// tokens included. Merge upserts users, missions and assignments by id and
// leaves the token collection untouched unless ResetTokensOnMerge is given.
package backup
