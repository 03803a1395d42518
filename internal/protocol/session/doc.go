// Package session moves codec messages over a byte stream.
//
// Ownership boundary:
// - frame <-> message conversion with envelope reconciliation
// - serve loop with per-message skip policy
// - codec metrics and logs (the codec itself never logs)
package session
