package reconcile

import (
	"context"
	"fmt"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/models"
)

// lifecycleState is the delete/recreate state machine's current step.
type lifecycleState string

const (
	lifecyclePending      lifecycleState = "pending"
	lifecycleSnapshotting lifecycleState = "snapshotting"
	lifecycleShuttingDown lifecycleState = "shutting-down"
	lifecycleDestroying   lifecycleState = "destroying"
	lifecycleRecreating   lifecycleState = "recreating"
	lifecycleDone         lifecycleState = "done"
	lifecycleFailed       lifecycleState = "failed"
)

// statefulResourceTypes require a final snapshot before destroy.
var statefulResourceTypes = map[models.ResourceType]bool{
	models.ResourceDatabase: true,
	models.ResourceStorage:  true,
	models.ResourceStream:   true,
	models.ResourceCache:    true,
}

// Snapshotter takes a final backup of a stateful resource before it is
// destroyed. Required for delete/recreate actions against stateful resource
// types; optional for everything else.
type Snapshotter interface {
	Snapshot(ctx context.Context, nativeID string, resourceType models.ResourceType) error
}

// runDeleteRecreate drives the ordered shutdown -> destroy -> (optional
// recreate) sequence spec.md §4.G requires for delete/recreate actions,
// guarded by a mandatory final snapshot for stateful resource types.
// recreateProps is nil for a plain delete.
func runDeleteRecreate(ctx context.Context, adapter cloud.Adapter, snapshotter Snapshotter, nativeID string, resourceType models.ResourceType, recreateProps map[string]any) (lifecycleState, error) {
	state := lifecyclePending

	if statefulResourceTypes[resourceType] {
		state = lifecycleSnapshotting
		if snapshotter == nil {
			return lifecycleFailed, fmt.Errorf("reconcile: stateful resource %s (%s) requires a snapshot guard before delete/recreate", nativeID, resourceType)
		}
		if err := snapshotter.Snapshot(ctx, nativeID, resourceType); err != nil {
			return lifecycleFailed, fmt.Errorf("reconcile: final snapshot failed for %s: %w", nativeID, err)
		}
	}

	state = lifecycleShuttingDown
	if err := adapter.Mutate(ctx, models.ActionUpdate, nativeID, resourceType, map[string]any{"status": "stopped"}); err != nil {
		// Not every adapter models a distinct stop step; proceed to destroy
		// regardless, since the destroy call must be idempotent on an
		// already-stopped or already-gone resource.
		_ = err
	}

	state = lifecycleDestroying
	if err := adapter.Mutate(ctx, models.ActionDelete, nativeID, resourceType, nil); err != nil {
		return lifecycleFailed, fmt.Errorf("reconcile: destroy failed for %s: %w", nativeID, err)
	}

	if recreateProps != nil {
		state = lifecycleRecreating
		if err := adapter.Mutate(ctx, models.ActionCreate, nativeID, resourceType, recreateProps); err != nil {
			return lifecycleFailed, fmt.Errorf("reconcile: recreate failed for %s: %w", nativeID, err)
		}
	}

	return lifecycleDone, nil
}
