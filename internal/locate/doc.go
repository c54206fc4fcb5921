// Package locate keeps one map session's current location consistent across
// its three sources: the page URL, user selections, and device geolocation.
//
// A Session is a small state machine (idle, awaiting_first_fix, tracking).
// Every resolution it starts takes a sequence number and only the newest
// one is applied, so a slow provider never overwrites a newer location.
// Presentation changes go to a View; URL writes are recorded so that the
// navigation event they cause in the browser is recognized and ignored.
//
// A Registry owns the live sessions and expires idle ones.
package locate
