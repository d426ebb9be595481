// Package logging is the logging facade of the cb-mpc bridge.
//
// Logger is a small, context-aware subset of log/slog. The library logs
// session lifecycle at Debug and engine failures at Warn, each line carrying
// the job's trace id. Nothing is logged unless a Logger or a level is
// configured.
//
// # Backends
//
//	// slog
//	logger := logging.New(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
//
//	// zerolog
//	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	logger := logging.NewZerolog(zl)
//
//	lib, err := cbmpc.Open(cbmpc.Config{Logger: logger})
//
// # Redaction
//
// Never log private keys, key shares or PVE plaintexts. Mark the attribute
// instead:
//
//	logger.Info(ctx, "key loaded", logging.Redacted("share"))
//	// share="[redacted]"
package logging
