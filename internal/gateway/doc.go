// Package gateway is the request/response side of moonterm.
//
// Every submission gets a monotonically increasing sequence number, a UUID
// correlation token and a timeout chosen from its kind: long-running G-code
// such as G28 or M109, other G-code, or structured queries. Submit returns a
// *Record immediately; the call runs in its own goroutine and the caller
// decides how long to wait with Await.
//
// A script record can be resolved by its direct reply or by an asynchronous
// console line seen through ObserveConsole, but only while it is the sole
// pending script. Whichever arrives first wins and later resolutions are
// ignored. A timed out record says nothing about whether
// the printer ran the command, and nothing is ever retried.
package gateway
