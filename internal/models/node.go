// Package models defines the core graph domain types: nodes, edges, changes,
// groups, snapshots, sync records, and the intent/governance side types used
// by the reconciliation engine and change governor.
package models

import "time"

// Provider identifies a cloud or platform source for a discovered resource.
type Provider string

const (
	ProviderAWS        Provider = "aws"
	ProviderAzure      Provider = "azure"
	ProviderGCP        Provider = "gcp"
	ProviderKubernetes Provider = "kubernetes"
	ProviderCustom     Provider = "custom"
)

// ResourceType is a closed enum of discoverable resource kinds.
type ResourceType string

const (
	ResourceCompute           ResourceType = "compute"
	ResourceDatabase          ResourceType = "database"
	ResourceStorage           ResourceType = "storage"
	ResourceCache             ResourceType = "cache"
	ResourceNetwork           ResourceType = "network"
	ResourceQueue             ResourceType = "queue"
	ResourceStream            ResourceType = "stream"
	ResourceServerless        ResourceType = "serverless"
	ResourceContainer         ResourceType = "container"
	ResourceEdgeSite          ResourceType = "edge-site"
	ResourceConnectedCluster  ResourceType = "connected-cluster"
	ResourceFleet             ResourceType = "fleet"
)

// NodeStatus is the closed enum of resource lifecycle states.
type NodeStatus string

const (
	StatusRunning NodeStatus = "running"
	StatusStopped NodeStatus = "stopped"
	StatusError   NodeStatus = "error"
	StatusUnknown NodeStatus = "unknown"
)

// Node is a discovered cloud resource. Its Id is deterministic and derived
// from (Provider, Region, ResourceType, NativeId); re-upserting merges fields
// and never changes the id.
type Node struct {
	ID           string            `json:"id" db:"id"`
	Provider     Provider          `json:"provider" db:"provider"`
	Account      string            `json:"account" db:"account"`
	Region       string            `json:"region" db:"region"`
	ResourceType ResourceType      `json:"resourceType" db:"resource_type"`
	NativeID     string            `json:"nativeId" db:"native_id"`
	Name         string            `json:"name" db:"name"`
	Status       NodeStatus        `json:"status" db:"status"`
	Tags         map[string]string `json:"tags" db:"tags"`
	Metadata     map[string]any    `json:"metadata" db:"metadata"`
	CostMonthly  *float64          `json:"costMonthly,omitempty" db:"cost_monthly"`
	Owner        string            `json:"owner" db:"owner"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
	LastSyncedAt time.Time         `json:"lastSyncedAt" db:"last_synced_at"`

	// MissCount is neither persisted nor set by the engine, which counts
	// consecutive missed sync passes per node in its own map.
	MissCount int `json:"-" db:"-"`
}

// NodeID computes the deterministic id for a node from its identity fields.
func NodeID(provider Provider, region string, rtype ResourceType, nativeID string) string {
	return string(provider) + "::" + region + ":" + string(rtype) + ":" + nativeID
}

// NodeInput is the shape an adapter's discover() call produces before the
// engine assigns bookkeeping fields and upserts it into the store.
type NodeInput struct {
	Provider     Provider
	Account      string
	Region       string
	ResourceType ResourceType
	NativeID     string
	Name         string
	Status       NodeStatus
	Tags         map[string]string
	Metadata     map[string]any
	CostMonthly  *float64
	Owner        string
}

// ToNode materializes a NodeInput into a Node with a computed id and
// bookkeeping timestamps.
func (in NodeInput) ToNode(now time.Time) Node {
	return Node{
		ID:           NodeID(in.Provider, in.Region, in.ResourceType, in.NativeID),
		Provider:     in.Provider,
		Account:      in.Account,
		Region:       in.Region,
		ResourceType: in.ResourceType,
		NativeID:     in.NativeID,
		Name:         in.Name,
		Status:       in.Status,
		Tags:         in.Tags,
		Metadata:     in.Metadata,
		CostMonthly:  in.CostMonthly,
		Owner:        in.Owner,
		CreatedAt:    now,
		LastSyncedAt: now,
	}
}
