// Package reconcile compares two keyed collections of the same model, a
// local side and a remote side, and plans the mutations that bring them
// back in step.
//
// # Engine
//
// Compare builds the union of keys from both sides and places each key in
// exactly one partition: local only, remote only, identical, conflict,
// needs local update or needs remote update. Keys present on both sides
// whose compared fields differ are ordered by last-update time; when the
// two timestamps are closer than the conflict window the pair is reported
// as a conflict instead of being auto-resolved.
//
// # Adapter
//
// Adapters supply the key, the field comparison and the update timestamp
// for a model. They carry no I/O; Snapshot loads both sides concurrently
// from plain Source functions.
//
// # Plans
//
// BuildPlan turns a report into actions and ApplyPlan executes them against
// a Mutator, preferring batch interfaces when the mutator provides them.
//
//	spec := &reconcile.Spec[models.Record]{Adapter: adapter, ConflictWindow: time.Second}
//	local, remote, err := reconcile.Snapshot(ctx, spec, loadLocal, loadRemote)
//	plan := reconcile.BuildPlan(spec, local, remote, reconcile.DefaultPlanOptions())
//	executed, err := reconcile.ApplyPlan(ctx, mutator, plan, reconcile.PlanOptions{})
package reconcile
