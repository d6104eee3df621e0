// Package logging provides structured logging for actiond.
//
// # Overview
//
// The package wraps Zap with:
//   - Context-aware methods that attach run and trace correlation fields
//   - Output to stderr, keeping stdout free for the extracted document
//   - An optional OpenTelemetry log bridge
//   - Redaction of sensitive keys and value patterns
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithSource(ctx, "standup.txt")
//	logger.Info(ctx, "map stage complete", zap.Int("candidates", 7))
//
// Output:
//
//	{"level":"info","ts":"2025-11-24T10:15:30.000Z","msg":"map stage complete",
//	 "run.id":"5f0c...","run.source":"standup.txt","candidates":7}
//
// # Testing
//
// NewTestLogger records entries in memory for assertions:
//
//	tl := logging.NewTestLogger()
//	svc := validation.New(0.4, tl.Logger)
//	...
//	tl.AssertLogged(t, zapcore.WarnLevel, "ambiguous owner")
package logging
