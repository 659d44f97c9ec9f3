package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/models"
)

// AdapterExecutor is the built-in ActionExecutor for one resource-type
// family (database, function, service, bucket, ...). It maps update actions
// to a modify-in-place Adapter.Mutate call and delete/recreate actions to
// the ordered shutdown->destroy lifecycle.
type AdapterExecutor struct {
	resourceType models.ResourceType
	adapter      cloud.Adapter
	snapshotter  Snapshotter
}

// NewAdapterExecutor returns an AdapterExecutor bound to one resource type
// and the adapter that owns it. snapshotter may be nil for resource types
// that are never stateful.
func NewAdapterExecutor(resourceType models.ResourceType, adapter cloud.Adapter, snapshotter Snapshotter) *AdapterExecutor {
	return &AdapterExecutor{resourceType: resourceType, adapter: adapter, snapshotter: snapshotter}
}

func (e *AdapterExecutor) GetType() string { return string(e.resourceType) }

func (e *AdapterExecutor) Validate(action RemediationAction) error {
	if action.ResourceType != e.resourceType {
		return fmt.Errorf("reconcile: executor for %s cannot handle resource type %s", e.resourceType, action.ResourceType)
	}
	switch action.Type {
	case ActionTypeUpdate, ActionTypeDelete, ActionTypeRecreate:
		return nil
	default:
		return fmt.Errorf("reconcile: executor for %s cannot handle action type %s", e.resourceType, action.Type)
	}
}

func (e *AdapterExecutor) Execute(ctx context.Context, action RemediationAction) (ActionResult, error) {
	if err := e.Validate(action); err != nil {
		return ActionResult{}, err
	}

	result := ActionResult{ActionID: action.ID, ExecutedAt: time.Now()}

	switch action.Type {
	case ActionTypeUpdate:
		if err := e.adapter.Mutate(ctx, models.ActionUpdate, action.NativeID, action.ResourceType, action.Properties); err != nil {
			result.Error = err.Error()
			return result, err
		}
	case ActionTypeDelete, ActionTypeRecreate:
		var recreateProps map[string]any
		if action.Type == ActionTypeRecreate {
			recreateProps = action.Properties
		}
		if _, err := runDeleteRecreate(ctx, e.adapter, e.snapshotter, action.NativeID, action.ResourceType, recreateProps); err != nil {
			result.Error = err.Error()
			return result, err
		}
	default:
		err := fmt.Errorf("reconcile: executor for %s cannot execute action type %s", e.resourceType, action.Type)
		result.Error = err.Error()
		return result, err
	}

	result.Success = true
	return result, nil
}

var _ ActionExecutor = (*AdapterExecutor)(nil)
