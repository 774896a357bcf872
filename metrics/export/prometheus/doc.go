// Package prometheus renders quizgate metrics in Prometheus text
// exposition format.
//
// [NewExporter] accepts a [quizgate.Engine] and exposes an [net/http.Handler]
// that renders every engine counter and histogram. Counter names are
// prefixed quizgate_*_total; the single histogram is
// quizgate_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the
//     Handler.
//   - Mutate engine state.
package prometheus
