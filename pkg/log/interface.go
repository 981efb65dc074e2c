// Package log provides structured logging for detector operations.
//
// The package defines a minimal Logger interface with variadic key-value
// fields, backed by zerolog. Detectors obtain a contextual logger once and
// attach standard attributes (model name, operation, data shape) so that fit
// and scoring activity can be filtered and analyzed downstream:
//
//	logger := log.GetLogger().With(
//	    log.ModelNameKey, "MiniBatchKMeans",
//	)
//	logger.Info("fit completed",
//	    log.OperationKey, "fit",
//	    log.SamplesKey, 1000,
//	    log.FeaturesKey, 5,
//	)
//
// Scoring paths stay silent by default; only Fit and warning routes log.
package log

// Logger is a structured logging interface with key-value fields.
//
// Fields are alternating key-value pairs; keys must be strings. Odd trailing
// values are dropped. With returns a child logger carrying the given fields
// on every subsequent message.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs potentially problematic situations that do not stop
	// execution, such as convergence warnings.
	Warn(msg string, fields ...any)

	// Error logs error conditions. If a field value is an error that
	// implements zerolog.LogObjectMarshaler, its structured form is used.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger
}
