// Package logging builds the structured loggers used across the engine.
//
// Loggers are plain *slog.Logger values so that every component can take
// one as an option. New wraps the JSON or text handler with two layers:
//
//   - a context layer that adds the execution id, realm, caller and policy
//     stored in the context by WithExecution to every record logged with
//     a *Context method
//   - an optional redaction layer that shortens DIDs and hides secrets
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "debug", Format: "console"})
//	ctx := logging.WithExecution(ctx, logging.Execution{ID: "exec-1", Realm: "finance"})
//	logger.InfoContext(ctx, "policy evaluated", "allowed", true)
//	// ... execution_id=exec-1 realm=finance allowed=true
//
// # Redaction
//
// With RedactDIDs enabled, DID values keep their method and the first
// characters of the identifier:
//
//	did:erynoa:7f3a9c21b0 -> did:erynoa:7f3a***
package logging
