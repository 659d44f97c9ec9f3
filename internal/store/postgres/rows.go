package postgres

import (
	"encoding/json"
	"time"

	"github.com/topolane/topolane/internal/models"
)

// nodeRow mirrors the nodes table layout for sqlx scanning; JSONB columns
// come back as raw bytes and are decoded explicitly in toModel.
type nodeRow struct {
	ID           string    `db:"id"`
	Provider     string    `db:"provider"`
	Account      string    `db:"account"`
	Region       string    `db:"region"`
	ResourceType string    `db:"resource_type"`
	NativeID     string    `db:"native_id"`
	Name         string    `db:"name"`
	Status       string    `db:"status"`
	Tags         []byte    `db:"tags"`
	Metadata     []byte    `db:"metadata"`
	CostMonthly  *float64  `db:"cost_monthly"`
	Owner        string    `db:"owner"`
	CreatedAt    time.Time `db:"created_at"`
	LastSyncedAt time.Time `db:"last_synced_at"`
}

func (r nodeRow) toModel() models.Node {
	n := models.Node{
		ID:           r.ID,
		Provider:     models.Provider(r.Provider),
		Account:      r.Account,
		Region:       r.Region,
		ResourceType: models.ResourceType(r.ResourceType),
		NativeID:     r.NativeID,
		Name:         r.Name,
		Status:       models.NodeStatus(r.Status),
		CostMonthly:  r.CostMonthly,
		Owner:        r.Owner,
		CreatedAt:    r.CreatedAt,
		LastSyncedAt: r.LastSyncedAt,
	}
	_ = json.Unmarshal(r.Tags, &n.Tags)
	_ = json.Unmarshal(r.Metadata, &n.Metadata)
	return n
}

type edgeRow struct {
	ID               string  `db:"id"`
	SourceNodeID     string  `db:"source_id"`
	TargetNodeID     string  `db:"target_id"`
	RelationshipType string  `db:"relationship_type"`
	Confidence       float64 `db:"confidence"`
	DiscoveredVia    string  `db:"discovered_via"`
	Metadata         []byte  `db:"metadata"`
}

func (r edgeRow) toModel() models.Edge {
	e := models.Edge{
		ID:               r.ID,
		SourceNodeID:     r.SourceNodeID,
		TargetNodeID:     r.TargetNodeID,
		RelationshipType: models.RelationshipType(r.RelationshipType),
		Confidence:       r.Confidence,
		DiscoveredVia:    models.DiscoveredVia(r.DiscoveredVia),
	}
	_ = json.Unmarshal(r.Metadata, &e.Metadata)
	return e
}

type changeRow struct {
	ID            string     `db:"id"`
	TargetID      string     `db:"target_id"`
	ChangeType    string     `db:"change_type"`
	Field         string     `db:"field"`
	PreviousValue []byte     `db:"previous_value"`
	NewValue      []byte     `db:"new_value"`
	DetectedAt    time.Time  `db:"detected_at"`
	DetectedVia   string     `db:"detected_via"`
	CorrelationID string     `db:"correlation_id"`
	Initiator     string     `db:"initiator"`
	InitiatorType string     `db:"initiator_type"`
	Metadata      []byte     `db:"metadata"`
}

func (r changeRow) toModel() models.Change {
	c := models.Change{
		ID:            r.ID,
		TargetID:      r.TargetID,
		ChangeType:    models.ChangeType(r.ChangeType),
		Field:         r.Field,
		DetectedAt:    r.DetectedAt,
		DetectedVia:   models.DetectedVia(r.DetectedVia),
		CorrelationID: r.CorrelationID,
		Initiator:     r.Initiator,
		InitiatorType: models.InitiatorType(r.InitiatorType),
	}
	_ = json.Unmarshal(r.PreviousValue, &c.PreviousValue)
	_ = json.Unmarshal(r.NewValue, &c.NewValue)
	_ = json.Unmarshal(r.Metadata, &c.Metadata)
	return c
}
