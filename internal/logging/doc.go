// Package logging provides structured, context-aware logging built on Zap.
//
// Loggers carry correlation data (trace ID, request ID, agent ID) extracted
// from the context on every call, and redact sensitive fields such as API
// keys before they reach the encoder.
//
// Usage:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.Info(ctx, "bug contributed",
//	    zap.String("bug_id", bug.ID),
//	    zap.String("error_type", bug.ErrorType),
//	)
package logging
