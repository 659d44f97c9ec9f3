package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

// DriftSeverity classifies how consequential a drifted field is.
type DriftSeverity string

const (
	DriftCritical DriftSeverity = "critical"
	DriftMedium   DriftSeverity = "medium"
)

// criticalDriftFields are the metadata keys whose drift is always critical
// regardless of value, per spec §4.E.
var criticalDriftFields = map[string]bool{
	"encryption":         true,
	"publicAccess":       true,
	"deletionProtection": true,
}

// FieldDrift is one changed metadata field on a drifted node.
type FieldDrift struct {
	Field    string
	Previous any
	Current  any
	Severity DriftSeverity
}

// DriftedNode pairs a node with its detected field-level drift.
type DriftedNode struct {
	Node    models.Node
	Changes []FieldDrift
}

// DriftReport is the detectDrift result shape.
type DriftReport struct {
	DriftedNodes     []DriftedNode
	DisappearedNodes []models.Node
}

// DetectDrift calls adapter.Describe for every known node of provider (all
// providers with a registered adapter if empty) and compares the live
// properties against stored metadata, categorizing diffs by severity.
func (e *Engine) DetectDrift(ctx context.Context, provider models.Provider) (DriftReport, error) {
	e.mu.Lock()
	byProvider := map[models.Provider]*registeredAdapter{}
	for _, ra := range e.adapters {
		if _, ok := byProvider[ra.adapter.Provider()]; !ok {
			byProvider[ra.adapter.Provider()] = ra
		}
	}
	e.mu.Unlock()

	filter := store.NodeFilter{}
	if provider != "" {
		filter.Provider = provider
	}
	nodes, err := e.store.QueryNodes(ctx, filter)
	if err != nil {
		return DriftReport{}, err
	}

	var report DriftReport
	for _, n := range nodes {
		ra, ok := byProvider[n.Provider]
		if !ok {
			continue
		}

		live, err := ra.adapter.Describe(ctx, n.NativeID, n.ResourceType)
		if err != nil {
			return DriftReport{}, fmt.Errorf("engine: describe %s: %w", n.ID, err)
		}
		if live == nil {
			report.DisappearedNodes = append(report.DisappearedNodes, n)
			continue
		}

		changes := diffMetadata(n.Metadata, live)
		if len(changes) == 0 {
			continue
		}
		report.DriftedNodes = append(report.DriftedNodes, DriftedNode{Node: n, Changes: changes})

		if err := e.appendDriftChanges(ctx, n.ID, changes); err != nil {
			return DriftReport{}, err
		}
	}

	sort.Slice(report.DriftedNodes, func(i, j int) bool {
		return report.DriftedNodes[i].Node.ID < report.DriftedNodes[j].Node.ID
	})
	sort.Slice(report.DisappearedNodes, func(i, j int) bool {
		return report.DisappearedNodes[i].ID < report.DisappearedNodes[j].ID
	})
	return report, nil
}

func diffMetadata(stored, live map[string]any) []FieldDrift {
	keys := map[string]bool{}
	for k := range stored {
		keys[k] = true
	}
	for k := range live {
		keys[k] = true
	}

	var out []FieldDrift
	for k := range keys {
		sv, sok := stored[k]
		lv, lok := live[k]
		if sok && lok && fmt.Sprintf("%v", sv) == fmt.Sprintf("%v", lv) {
			continue
		}
		if !sok && !lok {
			continue
		}
		sev := DriftMedium
		if criticalDriftFields[k] {
			sev = DriftCritical
		}
		out = append(out, FieldDrift{Field: k, Previous: sv, Current: lv, Severity: sev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func (e *Engine) appendDriftChanges(ctx context.Context, nodeID string, changes []FieldDrift) error {
	now := time.Now()
	recs := make([]models.Change, 0, len(changes))
	for _, c := range changes {
		recs = append(recs, models.Change{
			TargetID:      nodeID,
			ChangeType:    models.ChangeNodeDrifted,
			Field:         c.Field,
			PreviousValue: c.Previous,
			NewValue:      c.Current,
			DetectedAt:    now,
			DetectedVia:   models.DetectedFullScan,
			InitiatorType: models.InitiatorSystem,
			Metadata:      map[string]any{"severity": string(c.Severity)},
		})
	}
	return e.store.AppendChanges(ctx, recs)
}
