// Package bootstrap wires the engine components from configuration.
//
// # Overview
//
// New opens the configured store (memory or PostgreSQL), the request
// limiter (process memory or Redis), the audit sinks and the hook
// pipeline, then builds the table handlers, the cascade engine and the
// organization manager on top of them. The API server and the janitor
// share this wiring so both see the same table definitions and cascade
// graph.
//
// # Usage Example
//
//	tables, err := bootstrap.Tables(cfg)
//	if err != nil {
//		return err
//	}
//	engine, err := bootstrap.New(ctx, cfg, tables, logger, metrics)
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	server := api.NewServer(engine.Orgs, engine.Factory)
//
// # Related Packages
//
//   - pkg/config: environment and table configuration
//   - pkg/api: HTTP surface over the wired engine
package bootstrap
