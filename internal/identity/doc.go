// Package identity resolves the scope that owns a request's cart and orders.
//
// An authenticated user id always wins. Otherwise the request's session key
// is checked against the sessions table; a missing or unknown key gets a
// fresh one, which is persisted and flagged so the caller can hand it back
// to the client. This is the only place that decides between the two scope
// kinds.
package identity
