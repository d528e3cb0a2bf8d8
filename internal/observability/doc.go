// Package observability provides the logging and health tooling shared by the
// reconciler, the telemetry consumer and the aggregator.
//
// # Logging
//
// Build the logger once at startup from configuration:
//
//	logger, err := observability.NewLogger(cfg.Observability.Logging)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
// Components receive a named child logger through their constructor:
//
//	rec, err := reconciler.New(reconciler.Params{Logger: logger.Named("reconciler"), ...})
//
// Per-message fields travel with the context:
//
//	ctx = observability.ContextWithLogger(ctx, logger.With(zap.String("ns_id", id)))
//	observability.LoggerFromContext(ctx, logger).Info("ns activated")
//
// # Health
//
// Register checks for each remote dependency; the ops server exposes them on
// /healthz and /readyz:
//
//	hc := observability.NewHealthChecker(version)
//	hc.RegisterHealthCheck("database", store.Ping)
//	hc.RegisterReadinessCheck("billing", observability.PingCheck("billing", ledger.Ping))
//
// Prometheus collectors live next to the code they measure (events, billing,
// aggregator, telemetry, reconciler) and are registered with promauto.
package observability
