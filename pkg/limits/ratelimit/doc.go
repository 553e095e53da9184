// Package ratelimit provides a per-user sliding window rate limiter.
//
// Each user gets an hourly window of request timestamps. A check prunes
// entries older than one hour, then either records the request or rejects
// it with the number of seconds until the oldest surviving entry expires.
//
// All operations are safe for concurrent use.
package ratelimit
