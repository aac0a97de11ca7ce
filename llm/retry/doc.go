// Package retry provides a bounded-attempt retryer with linearly increasing
// backoff for transient provider failures. Retryability is decided by the
// types.Error Retryable flag; anything else fails fast.
package retry
