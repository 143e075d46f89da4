// Package observability builds the service logger and the prometheus
// metrics shared by the auth managers and the HTTP layer.
//
//   - NewLogger: zap logger from LOG_LEVEL / LOG_FORMAT, optionally teeing
//     into a daily rotating file
//   - Metrics: counters for token issuance, verification, redemption and
//     revocation, registered on a dedicated registry
//   - Instrument: HTTP request counter, latency histogram and in-flight gauge
package observability
