// Package observability provides structured logging and in-process
// counters for the question-answering service.
//
// Loggers are zap loggers built from config.ObservabilityConfig. Request
// scoped loggers carry a request_id field. Prediction counters are
// aggregated per failure mode and exposed through the /metrics endpoint.
package observability
