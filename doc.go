// Package etdi holds the shared error classification for the Enhanced Tool
// Definition Interface verification engine. The engine itself is split over
// the tooldef, signature, oauth, approval, drift, callstack, events, and
// pipeline packages, with audit and metrics observers riding the event bus;
// this root package carries only the vocabulary they all speak when a check
// fails.
package etdi
