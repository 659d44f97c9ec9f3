package models

// RelationshipType is a closed enum of edge semantics between two nodes.
type RelationshipType string

const (
	RelDependsOn      RelationshipType = "depends-on"
	RelConnectedTo    RelationshipType = "connected-to"
	RelRunsIn         RelationshipType = "runs-in"
	RelMemberOfFleet  RelationshipType = "member-of-fleet"
	RelDeployedAt     RelationshipType = "deployed-at"
	RelReadsFrom      RelationshipType = "reads-from"
	RelWritesTo       RelationshipType = "writes-to"
	RelUses           RelationshipType = "uses"
)

// DiscoveredVia records how an edge's existence was established.
type DiscoveredVia string

const (
	DiscoveredAPIField   DiscoveredVia = "api-field"
	DiscoveredConfigScan DiscoveredVia = "config-scan"
	DiscoveredInference  DiscoveredVia = "inference"
	DiscoveredEventStream DiscoveredVia = "event-stream"
)

// Edge is a typed, directed relationship between two nodes. Deleting either
// endpoint node cascades the deletion of the edge.
type Edge struct {
	ID               string            `json:"id" db:"id"`
	SourceNodeID     string            `json:"sourceNodeId" db:"source_id"`
	TargetNodeID     string            `json:"targetNodeId" db:"target_id"`
	RelationshipType RelationshipType  `json:"relationshipType" db:"relationship_type"`
	Confidence       float64           `json:"confidence" db:"confidence"`
	DiscoveredVia    DiscoveredVia     `json:"discoveredVia" db:"discovered_via"`
	Metadata         map[string]any    `json:"metadata" db:"metadata"`
}

// EdgeID computes the deterministic id for an edge.
func EdgeID(sourceID string, rtype RelationshipType, targetID string) string {
	return sourceID + "--" + string(rtype) + "--" + targetID
}

// EdgeInput is the shape an adapter's discover() call produces for an edge
// before the engine assigns its id and upserts it.
type EdgeInput struct {
	SourceNodeID     string
	TargetNodeID     string
	RelationshipType RelationshipType
	Confidence       float64
	DiscoveredVia    DiscoveredVia
	Metadata         map[string]any
}

// ToEdge materializes an EdgeInput into an Edge with a computed id.
func (in EdgeInput) ToEdge() Edge {
	return Edge{
		ID:               EdgeID(in.SourceNodeID, in.RelationshipType, in.TargetNodeID),
		SourceNodeID:     in.SourceNodeID,
		TargetNodeID:     in.TargetNodeID,
		RelationshipType: in.RelationshipType,
		Confidence:       in.Confidence,
		DiscoveredVia:    in.DiscoveredVia,
		Metadata:         in.Metadata,
	}
}
