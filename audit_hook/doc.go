// Package audithook is a chrono extension that bridges lifecycle events to
// an append-only audit trail.
//
// Every job and trigger hook emits a structured audit event through the
// [Recorder] interface. Severity is info for normal operations, warning for
// failed attempts and retries, and critical for dead letters. Metadata
// carries the correlation id, trigger source, attempt and elapsed time.
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return auditLog.Append(ctx, evt)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobDeadLettered,
//	    ),
//	)
package audithook
