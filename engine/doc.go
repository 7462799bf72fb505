// Package engine wires all chrono subsystems together and provides the
// application-level API for registering and submitting work.
//
// The engine sits above every subsystem package and below the application
// layer. The subsystems only know each other through small interfaces
// (scheduler.Dispatcher, chain.Dispatcher, queue.Notifier, ...); the engine
// is where the concrete types meet.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithConfig(cfg),
//	    engine.WithStore(pgStore),
//	    engine.WithLocks(pglock.New(pool)),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.CircuitBreaker(middleware.BreakerConfig{}, logger)),
//	)
//
// # Registering Work
//
//	eng.Register(job.New("daily-report", GenerateReport,
//	    job.WithTrigger(trigger.MustCron("0 9 * * *")),
//	))
//
// # Submitting Work
//
//	eng.Enqueue(ctx, "send-email", EmailInput{To: "user@example.com"},
//	    engine.WithUserID("u-42"),
//	)
//
//	// Synchronous, bypassing the queue.
//	res, err := eng.Dispatch(ctx, job.Request{JobID: "send-email", Input: in})
//
// # Options
//
//   - [WithConfig]: engine-wide settings, see chrono.Config
//   - [WithStore]: persistence backend (memory by default)
//   - [WithLocks]: lock provider (process-local by default)
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add middleware to the execution chain
//   - [WithJobRateLimit]: per-job queue drain limits
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
