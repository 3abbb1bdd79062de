// Package rules holds the invariants of the roster document as pure
// functions. Callers run them inside store.Update before mutating so that a
// rejected request never reaches the medium.
package rules
