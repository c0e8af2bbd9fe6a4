// Package temporal adapts engine.Engine onto the Temporal SDK, so a single
// inference dispatch (one sequence-kind invoke call) can durably replay
// after a process crash instead of being re-run from scratch. It is the
// production-grade alternative to core/engine/inmem; the orchestrator
// itself is unaware of which one is wired in, since both satisfy
// engine.Engine.
package temporal
