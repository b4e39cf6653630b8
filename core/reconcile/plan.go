package reconcile

import (
	"context"
	"fmt"
	"time"
)

// BuildPlan compares both sides and turns the report into actions.
// It does NOT execute actions; use ApplyPlan for that.
func BuildPlan[T any](spec *Spec[T], local, remote map[string]T, opts PlanOptions) *Plan[T] {
	report := Compare(spec, local, remote)

	summary := PlanSummary{
		TotalItems:    report.Total(),
		LocalOnly:     len(report.LocalOnly),
		RemoteOnly:    len(report.RemoteOnly),
		Identical:     len(report.Identical),
		Conflicts:     len(report.Conflict),
		LocalUpdates:  len(report.NeedsLocalUpdate),
		RemoteUpdates: len(report.NeedsRemoteUpdate),
	}

	var actions []Action[T]
	for _, result := range report.Results {
		l, r := local[result.Key], remote[result.Key]

		switch result.Partition {
		case PartitionRemoteOnly:
			if opts.PullRemoteOnly {
				actions = append(actions, Action[T]{Type: ActionCreateLocal, Key: result.Key, Reason: "missing locally", Remote: r})
			}
		case PartitionLocalOnly:
			if opts.PushLocalOnly {
				actions = append(actions, Action[T]{Type: ActionPushRemote, Key: result.Key, Reason: "missing remotely", Local: l})
			}
		case PartitionNeedsLocalUpdate:
			actions = append(actions, Action[T]{
				Type:   ActionUpdateLocal,
				Key:    result.Key,
				Reason: fmt.Sprintf("remote newer by %s: %v", -result.Skew, result.Mismatch),
				Local:  l,
				Remote: r,
			})
		case PartitionNeedsRemoteUpdate:
			actions = append(actions, Action[T]{
				Type:   ActionPushRemote,
				Key:    result.Key,
				Reason: fmt.Sprintf("local newer by %s: %v", result.Skew, result.Mismatch),
				Local:  l,
				Remote: r,
			})
		case PartitionConflict:
			if opts.ResolveConflicts {
				actions = append(actions, Action[T]{
					Type:   ActionResolveConflict,
					Key:    result.Key,
					Reason: fmt.Sprintf("edited on both sides within %s: %v", spec.window().Round(time.Millisecond), result.Mismatch),
					Local:  l,
					Remote: r,
				})
			}
		}
	}

	return &Plan[T]{Report: report, Actions: actions, Summary: summary}
}

// ApplyPlan executes the actions in a plan and returns how many ran.
// Local writes run first, then conflict resolution, then remote pushes.
// Batch interfaces are used when the mutator implements them.
func ApplyPlan[T any](ctx context.Context, mutator Mutator[T], plan *Plan[T], opts PlanOptions) (executed int, err error) {
	if opts.DryRun || plan == nil {
		return 0, nil
	}

	var (
		creates   []Action[T]
		updates   []Action[T]
		pushes    []Action[T]
		conflicts []Action[T]
	)

	for _, action := range plan.Actions {
		switch action.Type {
		case ActionCreateLocal:
			creates = append(creates, action)
		case ActionUpdateLocal:
			updates = append(updates, action)
		case ActionPushRemote:
			pushes = append(pushes, action)
		case ActionResolveConflict:
			conflicts = append(conflicts, action)
		}
	}

	// Local writes
	if len(creates)+len(updates) > 0 {
		if writer, ok := mutator.(LocalBatchWriter[T]); ok {
			items := make([]T, 0, len(creates)+len(updates))
			for _, action := range creates {
				items = append(items, action.Remote)
			}
			for _, action := range updates {
				items = append(items, action.Remote)
			}
			if err := writer.WriteLocalBatch(ctx, items); err != nil {
				return executed, fmt.Errorf("failed to batch write local items: %w", err)
			}
			executed += len(items)
		} else {
			for _, action := range creates {
				if err := mutator.CreateLocal(ctx, action.Remote); err != nil {
					return executed, fmt.Errorf("failed to create local key %s: %w", action.Key, err)
				}
				executed++
			}
			for _, action := range updates {
				if err := mutator.UpdateLocal(ctx, action.Remote); err != nil {
					return executed, fmt.Errorf("failed to update local key %s: %w", action.Key, err)
				}
				executed++
			}
		}
	}

	for _, action := range conflicts {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		if err := mutator.ResolveConflict(ctx, action.Local, action.Remote); err != nil {
			return executed, fmt.Errorf("failed to resolve conflict for key %s: %w", action.Key, err)
		}
		executed++
	}

	// Remote pushes
	if len(pushes) > 0 {
		if pusher, ok := mutator.(RemoteBatchPusher[T]); ok {
			items := make([]T, 0, len(pushes))
			for _, action := range pushes {
				items = append(items, action.Local)
			}
			if err := pusher.PushRemoteBatch(ctx, items); err != nil {
				return executed, fmt.Errorf("failed to batch push remote items: %w", err)
			}
			executed += len(items)
		} else {
			for _, action := range pushes {
				if err := mutator.PushRemote(ctx, action.Local); err != nil {
					return executed, fmt.Errorf("failed to push remote key %s: %w", action.Key, err)
				}
				executed++
			}
		}
	}

	return executed, nil
}
