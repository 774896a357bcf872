// Package limiters implements the brute-force login guard: failure counting
// inside a rolling attempt window, a captcha threshold, exponential backoff,
// and a hard lockout.
//
// Counters are persisted as plain JSON in the local key-value store — they
// carry no secret content, and keeping them readable lets the lockout survive
// a lost encryption secret.
package limiters
