// Package falkordb implements store.Store on top of FalkorDB, a Redis-module
// graph database queried with openCypher. Nodes, edges, changes, and groups
// are all modeled as native graph entities so the bonus "graph-native"
// backend can eventually push traversal work (getNeighbors, getBlastRadius)
// down into the database instead of walking edges in Go.
package falkordb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/FalkorDB/falkordb-go/v2"
	"github.com/topolane/topolane/internal/apierr"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

const (
	labelResource = "Resource"
	labelChange   = "Change"
	labelGroup    = "Group"
	relEdge       = "EDGE"
	relMember     = "MEMBER_OF"
)

// Config holds the connection parameters for a FalkorDB server.
type Config struct {
	Host      string
	Port      int
	Password  string
	GraphName string
}

// DefaultConfig returns sane local-dev defaults.
func DefaultConfig() Config {
	return Config{Host: "localhost", Port: 6379, GraphName: "topolane"}
}

// Store implements store.Store against a single FalkorDB graph.
type Store struct {
	db     *falkordb.FalkorDB
	graph  *falkordb.Graph
	logger *logging.Logger
}

// Open connects to FalkorDB, selects the configured graph, and installs
// range indices used by the filter queries below.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := logging.GetLogger("store.falkordb")
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	db, err := falkordb.FalkorDBNew(&falkordb.ConnectionOption{
		Addr:     addr,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("falkordb: connect: %w", err)
	}
	graph := db.SelectGraph(cfg.GraphName)

	s := &Store{db: db, graph: graph, logger: logger}
	if err := s.createIndices(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createIndices(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.id)", labelResource),
		fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.provider)", labelResource),
		fmt.Sprintf("CREATE INDEX FOR (c:%s) ON (c.targetId)", labelChange),
		fmt.Sprintf("CREATE INDEX FOR (g:%s) ON (g.id)", labelGroup),
	}
	for _, stmt := range stmts {
		if _, err := s.graph.Query(stmt, nil, nil); err != nil {
			// FalkorDB returns an error when an identical index already exists;
			// that is not fatal on reconnect.
			s.logger.DebugWithFields("index create skipped", logging.Field("stmt", stmt), logging.Field("err", err.Error()))
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil && s.db.Conn != nil {
		return s.db.Conn.Close()
	}
	return nil
}

func jsonStr(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func parseJSONMap(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal([]byte(s), &m)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func parseTagMap(s string) map[string]string {
	if s == "" {
		return map[string]string{}
	}
	var m map[string]string
	_ = json.Unmarshal([]byte(s), &m)
	if m == nil {
		m = map[string]string{}
	}
	return m
}

func nodeProps(n models.Node) map[string]any {
	cost := 0.0
	hasCost := false
	if n.CostMonthly != nil {
		cost = *n.CostMonthly
		hasCost = true
	}
	return map[string]any{
		"id":             n.ID,
		"provider":       string(n.Provider),
		"account":        n.Account,
		"region":         n.Region,
		"resourceType":   string(n.ResourceType),
		"nativeId":       n.NativeID,
		"name":           n.Name,
		"status":         string(n.Status),
		"tags":           jsonStr(n.Tags),
		"metadata":       jsonStr(n.Metadata),
		"costMonthly":    cost,
		"hasCost":        hasCost,
		"owner":          n.Owner,
		"createdAt":      n.CreatedAt.UnixNano(),
		"lastSyncedAt":   n.LastSyncedAt.UnixNano(),
	}
}

func nodeFromRecord(rec map[string]any) models.Node {
	n := models.Node{
		ID:           asString(rec["id"]),
		Provider:     models.Provider(asString(rec["provider"])),
		Account:      asString(rec["account"]),
		Region:       asString(rec["region"]),
		ResourceType: models.ResourceType(asString(rec["resourceType"])),
		NativeID:     asString(rec["nativeId"]),
		Name:         asString(rec["name"]),
		Status:       models.NodeStatus(asString(rec["status"])),
		Tags:         parseTagMap(asString(rec["tags"])),
		Metadata:     parseJSONMap(asString(rec["metadata"])),
		Owner:        asString(rec["owner"]),
		CreatedAt:    time.Unix(0, asInt64(rec["createdAt"])),
		LastSyncedAt: time.Unix(0, asInt64(rec["lastSyncedAt"])),
	}
	if hasCost, _ := rec["hasCost"].(bool); hasCost {
		cost := asFloat64(rec["costMonthly"])
		n.CostMonthly = &cost
	}
	return n
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

func asFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

// recordValues zips a result record's Keys()/Values() into a map, since
// that is the only accessor the FalkorDB client exposes on a Record.
func recordValues(rec *falkordb.Record) map[string]any {
	keys := rec.Keys()
	vals := rec.Values()
	out := make(map[string]any, len(keys))
	for i, k := range keys {
		if i < len(vals) {
			out[k] = vals[i]
		}
	}
	return out
}

// UpsertNodes merges each node by id, emitting a change record for new
// nodes and for any field that actually differs from the stored value.
func (s *Store) UpsertNodes(ctx context.Context, inputs []models.NodeInput) error {
	now := time.Now().UTC()
	for _, in := range inputs {
		candidate := in.ToNode(now)
		existing, err := s.GetNode(ctx, candidate.ID)
		if err != nil {
			return err
		}

		var changes []models.Change
		if existing == nil {
			changes = append(changes, newChange(candidate.ID, models.ChangeNodeCreated, "", nil, nil, now))
		} else {
			candidate.CreatedAt = existing.CreatedAt
			changes = fieldChanges(*existing, candidate, now)
		}

		props := nodeProps(candidate)
		if _, err := s.graph.Query(
			fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", labelResource),
			map[string]any{"id": candidate.ID, "props": props}, nil,
		); err != nil {
			return fmt.Errorf("falkordb: upsert node: %w", err)
		}

		if len(changes) > 0 {
			if err := s.AppendChanges(ctx, changes); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpsertEdges merges each edge by id after checking both endpoints exist.
func (s *Store) UpsertEdges(ctx context.Context, inputs []models.EdgeInput) error {
	for _, in := range inputs {
		edge := in.ToEdge()
		src, err := s.GetNode(ctx, edge.SourceNodeID)
		if err != nil {
			return err
		}
		if src == nil {
			return apierr.New(apierr.KindDanglingEdge, "source node not found: "+edge.SourceNodeID)
		}
		dst, err := s.GetNode(ctx, edge.TargetNodeID)
		if err != nil {
			return err
		}
		if dst == nil {
			return apierr.New(apierr.KindDanglingEdge, "target node not found: "+edge.TargetNodeID)
		}

		q := fmt.Sprintf(`
			MATCH (a:%s {id: $source}), (b:%s {id: $target})
			MERGE (a)-[r:%s {id: $id}]->(b)
			SET r.relationshipType = $rtype, r.confidence = $confidence,
			    r.discoveredVia = $via, r.metadata = $meta`,
			labelResource, labelResource, relEdge)
		_, err := s.graph.Query(q, map[string]any{
			"source":     edge.SourceNodeID,
			"target":     edge.TargetNodeID,
			"id":         edge.ID,
			"rtype":      string(edge.RelationshipType),
			"confidence": edge.Confidence,
			"via":        string(edge.DiscoveredVia),
			"meta":       jsonStr(edge.Metadata),
		}, nil)
		if err != nil {
			return fmt.Errorf("falkordb: upsert edge: %w", err)
		}
	}
	return nil
}

// GetNode fetches a single node by id, returning (nil, nil) when absent.
func (s *Store) GetNode(ctx context.Context, id string) (*models.Node, error) {
	res, err := s.graph.Query(
		fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n", labelResource),
		map[string]any{"id": id}, nil)
	if err != nil {
		return nil, fmt.Errorf("falkordb: get node: %w", err)
	}
	if !res.Next() {
		return nil, nil
	}
	n := recordToNode(res.Record())
	return &n, nil
}

func recordToNode(rec *falkordb.Record) models.Node {
	vals := recordValues(rec)
	keys := rec.Keys()
	if len(keys) == 0 {
		return models.Node{}
	}
	entity, ok := vals[keys[0]].(*falkordb.Node)
	if !ok {
		return models.Node{}
	}
	return nodeFromRecord(entity.Properties)
}

// GetEdge fetches a single edge by id, returning (nil, nil) when absent.
func (s *Store) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	res, err := s.graph.Query(
		fmt.Sprintf("MATCH ()-[r:%s {id: $id}]->() RETURN r", relEdge),
		map[string]any{"id": id}, nil)
	if err != nil {
		return nil, fmt.Errorf("falkordb: get edge: %w", err)
	}
	if !res.Next() {
		return nil, nil
	}
	rec := res.Record()
	vals := recordValues(rec)
	keys := rec.Keys()
	if len(keys) == 0 {
		return nil, nil
	}
	rel, ok := vals[keys[0]].(*falkordb.Edge)
	if !ok {
		return nil, nil
	}
	e := edgeFromRelProps(rel.Properties)
	return &e, nil
}

func edgeFromRelProps(props map[string]any) models.Edge {
	return models.Edge{
		ID:               asString(props["id"]),
		RelationshipType: models.RelationshipType(asString(props["relationshipType"])),
		Confidence:       asFloat64(props["confidence"]),
		DiscoveredVia:    models.DiscoveredVia(asString(props["discoveredVia"])),
		Metadata:         parseJSONMap(asString(props["metadata"])),
	}
}

// DeleteNode removes a node, its incident edges, and its group memberships,
// relying on FalkorDB's DETACH DELETE to cascade the relationships.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	existing, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apierr.New(apierr.KindNotFound, "node not found: "+id)
	}
	if _, err := s.graph.Query(
		fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", labelResource),
		map[string]any{"id": id}, nil); err != nil {
		return fmt.Errorf("falkordb: delete node: %w", err)
	}
	return s.AppendChanges(ctx, []models.Change{newChange(id, models.ChangeNodeDeleted, "", nil, nil, time.Now().UTC())})
}

// QueryNodes fetches all resource nodes and applies filter in Go. FalkorDB's
// property indices speed up the provider/id lookups above; composite filters
// like TagMatch are cheaper to evaluate client-side than to compile to Cypher.
func (s *Store) QueryNodes(ctx context.Context, filter store.NodeFilter) ([]models.Node, error) {
	res, err := s.graph.Query(fmt.Sprintf("MATCH (n:%s) RETURN n", labelResource), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("falkordb: query nodes: %w", err)
	}
	var out []models.Node
	for res.Next() {
		n := recordToNode(res.Record())
		if matchesNode(filter, n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchesNode(f store.NodeFilter, n models.Node) bool {
	if f.Provider != "" && n.Provider != f.Provider {
		return false
	}
	if f.Account != "" && n.Account != f.Account {
		return false
	}
	if f.Region != "" && n.Region != f.Region {
		return false
	}
	if len(f.ResourceTypes) > 0 {
		found := false
		for _, rt := range f.ResourceTypes {
			if rt == n.ResourceType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st == n.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, v := range f.TagMatch {
		if n.Tags[k] != v {
			return false
		}
	}
	if f.NamePrefix != "" && (len(n.Name) < len(f.NamePrefix) || n.Name[:len(f.NamePrefix)] != f.NamePrefix) {
		return false
	}
	if f.OwnerContains != "" && !containsSubstr(n.Owner, f.OwnerContains) {
		return false
	}
	return true
}

func containsSubstr(s, sub string) bool {
	if sub == "" {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// QueryNodesPaginated applies QueryNodes then slices the result per the
// shared cursor convention used by every backend.
func (s *Store) QueryNodesPaginated(ctx context.Context, filter store.NodeFilter, page store.PageRequest) (store.PageResult[models.Node], error) {
	matched, err := s.QueryNodes(ctx, filter)
	if err != nil {
		return store.PageResult[models.Node]{}, err
	}
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Node]{}, err
	}
	return paginateSlice(matched, hash, offset, store.ClampLimit(page.Limit)), nil
}

func paginateSlice[T any](matched []T, hash string, offset, limit int) store.PageResult[T] {
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	items := append([]T{}, matched[offset:end]...)
	hasMore := end < total
	next := ""
	if hasMore {
		next = store.EncodeCursor(hash, end)
	}
	return store.PageResult[T]{Items: items, TotalCount: total, HasMore: hasMore, NextCursor: next}
}

// QueryEdgesPaginated fetches all edges and applies the filter/pagination
// in Go, mirroring QueryNodesPaginated.
func (s *Store) QueryEdgesPaginated(ctx context.Context, filter store.EdgeFilter, page store.PageRequest) (store.PageResult[models.Edge], error) {
	all, err := s.allEdges(ctx)
	if err != nil {
		return store.PageResult[models.Edge]{}, err
	}
	var matched []models.Edge
	for _, e := range all {
		if filter.SourceNodeID != "" && e.SourceNodeID != filter.SourceNodeID {
			continue
		}
		if filter.TargetNodeID != "" && e.TargetNodeID != filter.TargetNodeID {
			continue
		}
		if len(filter.RelationshipTypes) > 0 {
			found := false
			for _, rt := range filter.RelationshipTypes {
				if rt == e.RelationshipType {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Edge]{}, err
	}
	return paginateSlice(matched, hash, offset, store.ClampLimit(page.Limit)), nil
}

func (s *Store) allEdges(ctx context.Context) ([]models.Edge, error) {
	res, err := s.graph.Query(
		fmt.Sprintf("MATCH (a:%s)-[r:%s]->(b:%s) RETURN r, a.id AS src, b.id AS dst", labelResource, relEdge, labelResource),
		nil, nil)
	if err != nil {
		return nil, fmt.Errorf("falkordb: query edges: %w", err)
	}
	var out []models.Edge
	for res.Next() {
		vals := recordValues(res.Record())
		rel, ok := vals["r"].(*falkordb.Edge)
		if !ok {
			continue
		}
		e := edgeFromRelProps(rel.Properties)
		e.SourceNodeID = asString(vals["src"])
		e.TargetNodeID = asString(vals["dst"])
		out = append(out, e)
	}
	return out, nil
}

// GetEdgesForNode returns all edges touching id in the given direction.
func (s *Store) GetEdgesForNode(ctx context.Context, id string, dir store.Direction) ([]models.Edge, error) {
	all, err := s.allEdges(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Edge
	for _, e := range all {
		switch dir {
		case store.DirectionUpstream:
			if e.TargetNodeID == id {
				out = append(out, e)
			}
		case store.DirectionDownstream:
			if e.SourceNodeID == id {
				out = append(out, e)
			}
		default:
			if e.SourceNodeID == id || e.TargetNodeID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// GetNeighbors runs a deterministic breadth-first walk up to maxDepth,
// matching the semantics shared by every other Store backend. FalkorDB can
// express variable-length paths natively, but the visited-set/tie-break
// rules (lexicographic ordering among equal-depth neighbors) are easier to
// keep identical across backends by walking edges fetched once in Go.
func (s *Store) GetNeighbors(ctx context.Context, id string, maxDepth int, dir store.Direction) (store.Neighborhood, error) {
	all, err := s.allEdges(ctx)
	if err != nil {
		return store.Neighborhood{}, err
	}
	visited := map[string]bool{id: true}
	nodeIDs := []string{id}
	var edges []models.Edge
	frontier := []string{id}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		var candidates []string
		for _, cur := range frontier {
			for _, e := range all {
				var other string
				matches := false
				if (dir == store.DirectionDownstream || dir == store.DirectionBoth) && e.SourceNodeID == cur {
					other = e.TargetNodeID
					matches = true
				} else if (dir == store.DirectionUpstream || dir == store.DirectionBoth) && e.TargetNodeID == cur {
					other = e.SourceNodeID
					matches = true
				}
				if !matches {
					continue
				}
				edges = append(edges, e)
				if !visited[other] {
					candidates = append(candidates, other)
				}
			}
		}
		sort.Strings(candidates)
		for _, c := range candidates {
			if !visited[c] {
				visited[c] = true
				nodeIDs = append(nodeIDs, c)
				next = append(next, c)
			}
		}
		frontier = next
	}

	var nodes []models.Node
	for _, nid := range nodeIDs {
		n, err := s.GetNode(ctx, nid)
		if err != nil {
			return store.Neighborhood{}, err
		}
		if n != nil {
			nodes = append(nodes, *n)
		}
	}
	edges = dedupeEdges(edges)
	return store.Neighborhood{Nodes: nodes, Edges: edges}, nil
}

func dedupeEdges(edges []models.Edge) []models.Edge {
	seen := map[string]bool{}
	var out []models.Edge
	for _, e := range edges {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AppendChanges writes each change as a Change node carrying its target's id,
// enforcing the per-target monotonic detectedAt ordering every backend
// guarantees.
func (s *Store) AppendChanges(ctx context.Context, changes []models.Change) error {
	for _, c := range changes {
		last, err := s.lastChangeAt(ctx, c.TargetID)
		if err != nil {
			return err
		}
		if !last.IsZero() && !c.DetectedAt.After(last) {
			c.DetectedAt = last.Add(time.Nanosecond)
		}
		props := map[string]any{
			"id":            c.ID,
			"targetId":      c.TargetID,
			"changeType":    string(c.ChangeType),
			"field":         c.Field,
			"previousValue": jsonStr(c.PreviousValue),
			"newValue":      jsonStr(c.NewValue),
			"detectedAt":    c.DetectedAt.UnixNano(),
			"detectedVia":   string(c.DetectedVia),
			"correlationId": c.CorrelationID,
			"initiator":     c.Initiator,
			"initiatorType": string(c.InitiatorType),
			"metadata":      jsonStr(c.Metadata),
		}
		if _, err := s.graph.Query(
			fmt.Sprintf("CREATE (c:%s $props)", labelChange),
			map[string]any{"props": props}, nil,
		); err != nil {
			return fmt.Errorf("falkordb: append change: %w", err)
		}
	}
	return nil
}

func (s *Store) lastChangeAt(ctx context.Context, targetID string) (time.Time, error) {
	res, err := s.graph.Query(
		fmt.Sprintf("MATCH (c:%s {targetId: $id}) RETURN max(c.detectedAt) AS m", labelChange),
		map[string]any{"id": targetID}, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("falkordb: last change: %w", err)
	}
	if !res.Next() {
		return time.Time{}, nil
	}
	v := recordValues(res.Record())["m"]
	if v == nil {
		return time.Time{}, nil
	}
	return time.Unix(0, asInt64(v)), nil
}

func changeFromRecord(rec map[string]any) models.Change {
	return models.Change{
		ID:            asString(rec["id"]),
		TargetID:      asString(rec["targetId"]),
		ChangeType:    models.ChangeType(asString(rec["changeType"])),
		Field:         asString(rec["field"]),
		PreviousValue: parseJSONMap(asString(rec["previousValue"])),
		NewValue:      parseJSONMap(asString(rec["newValue"])),
		DetectedAt:    time.Unix(0, asInt64(rec["detectedAt"])),
		DetectedVia:   models.DetectedVia(asString(rec["detectedVia"])),
		CorrelationID: asString(rec["correlationId"]),
		Initiator:     asString(rec["initiator"]),
		InitiatorType: models.InitiatorType(asString(rec["initiatorType"])),
		Metadata:      parseJSONMap(asString(rec["metadata"])),
	}
}

func (s *Store) allChanges(ctx context.Context) ([]models.Change, error) {
	res, err := s.graph.Query(fmt.Sprintf("MATCH (c:%s) RETURN c", labelChange), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("falkordb: query changes: %w", err)
	}
	var out []models.Change
	for res.Next() {
		rec := res.Record()
		keys := rec.Keys()
		if len(keys) == 0 {
			continue
		}
		n, ok := recordValues(rec)[keys[0]].(*falkordb.Node)
		if !ok {
			continue
		}
		out = append(out, changeFromRecord(n.Properties))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out, nil
}

// GetChanges returns every change matching filter, oldest first.
func (s *Store) GetChanges(ctx context.Context, filter models.ChangeFilter) ([]models.Change, error) {
	all, err := s.allChanges(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Change
	for _, c := range all {
		if matchesChange(filter, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matchesChange(f models.ChangeFilter, c models.Change) bool {
	if f.TargetID != "" && c.TargetID != f.TargetID {
		return false
	}
	if len(f.ChangeTypes) > 0 {
		found := false
		for _, ct := range f.ChangeTypes {
			if ct == c.ChangeType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CorrelationID != "" && c.CorrelationID != f.CorrelationID {
		return false
	}
	if !f.Since.IsZero() && c.DetectedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && c.DetectedAt.After(f.Until) {
		return false
	}
	return true
}

// GetChangesPaginated applies GetChanges, newest first, then paginates.
func (s *Store) GetChangesPaginated(ctx context.Context, filter models.ChangeFilter, page store.PageRequest) (store.PageResult[models.Change], error) {
	matched, err := s.GetChanges(ctx, filter)
	if err != nil {
		return store.PageResult[models.Change]{}, err
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].DetectedAt.After(matched[j].DetectedAt) })
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Change]{}, err
	}
	return paginateSlice(matched, hash, offset, store.ClampLimit(page.Limit)), nil
}

// GetNodeTimeline returns the most recent limit changes for id, newest first.
func (s *Store) GetNodeTimeline(ctx context.Context, id string, limit int) ([]models.Change, error) {
	matched, err := s.GetChanges(ctx, models.ChangeFilter{TargetID: id})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].DetectedAt.After(matched[j].DetectedAt) })
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// UpsertGroup creates or updates a group node by id.
func (s *Store) UpsertGroup(ctx context.Context, group models.Group) error {
	props := map[string]any{
		"id":        group.ID,
		"name":      group.Name,
		"groupType": group.GroupType,
		"provider":  string(group.Provider),
		"createdAt": group.CreatedAt.UnixNano(),
		"updatedAt": group.UpdatedAt.UnixNano(),
	}
	_, err := s.graph.Query(
		fmt.Sprintf("MERGE (g:%s {id: $id}) SET g += $props", labelGroup),
		map[string]any{"id": group.ID, "props": props}, nil)
	if err != nil {
		return fmt.Errorf("falkordb: upsert group: %w", err)
	}
	return nil
}

// AddGroupMember links nodeID to groupID via a MEMBER_OF relationship.
func (s *Store) AddGroupMember(ctx context.Context, groupID, nodeID string) error {
	q := fmt.Sprintf(`
		MATCH (g:%s {id: $gid}), (n:%s {id: $nid})
		MERGE (n)-[:%s]->(g)`, labelGroup, labelResource, relMember)
	_, err := s.graph.Query(q, map[string]any{"gid": groupID, "nid": nodeID}, nil)
	if err != nil {
		return fmt.Errorf("falkordb: add group member: %w", err)
	}
	return nil
}

// RemoveGroupMember deletes the MEMBER_OF relationship between nodeID and
// groupID, leaving both entities intact.
func (s *Store) RemoveGroupMember(ctx context.Context, groupID, nodeID string) error {
	q := fmt.Sprintf(`
		MATCH (n:%s {id: $nid})-[r:%s]->(g:%s {id: $gid})
		DELETE r`, labelResource, relMember, labelGroup)
	_, err := s.graph.Query(q, map[string]any{"gid": groupID, "nid": nodeID}, nil)
	if err != nil {
		return fmt.Errorf("falkordb: remove group member: %w", err)
	}
	return nil
}

// GetGroupMembers returns the ids of every node linked to groupID.
func (s *Store) GetGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	q := fmt.Sprintf(`
		MATCH (n:%s)-[:%s]->(g:%s {id: $gid})
		RETURN n.id AS id ORDER BY n.id`, labelResource, relMember, labelGroup)
	res, err := s.graph.Query(q, map[string]any{"gid": groupID}, nil)
	if err != nil {
		return nil, fmt.Errorf("falkordb: group members: %w", err)
	}
	var out []string
	for res.Next() {
		out = append(out, asString(recordValues(res.Record())["id"]))
	}
	return out, nil
}

// GetStats aggregates node/edge counts and cost across the whole graph.
func (s *Store) GetStats(ctx context.Context) (store.Stats, error) {
	nodes, err := s.QueryNodes(ctx, store.NodeFilter{})
	if err != nil {
		return store.Stats{}, err
	}
	edges, err := s.allEdges(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	stats := store.Stats{
		TotalNodes:          len(nodes),
		TotalEdges:          len(edges),
		NodesByProvider:     map[models.Provider]int{},
		NodesByResourceType: map[models.ResourceType]int{},
		NodesByStatus:       map[models.NodeStatus]int{},
	}
	for _, n := range nodes {
		stats.NodesByProvider[n.Provider]++
		stats.NodesByResourceType[n.ResourceType]++
		stats.NodesByStatus[n.Status]++
		if n.CostMonthly != nil {
			stats.TotalCostMonthly += *n.CostMonthly
		}
		if n.LastSyncedAt.After(stats.LastSyncAt) {
			stats.LastSyncAt = n.LastSyncedAt
		}
	}
	return stats, nil
}

func fieldChanges(old, next models.Node, now time.Time) []models.Change {
	var out []models.Change
	if old.Status != next.Status {
		out = append(out, newChange(next.ID, models.ChangeNodeUpdated, "status", old.Status, next.Status, now))
	}
	if old.Name != next.Name {
		out = append(out, newChange(next.ID, models.ChangeNodeUpdated, "name", old.Name, next.Name, now))
	}
	if !costEqual(old.CostMonthly, next.CostMonthly) {
		out = append(out, newChange(next.ID, models.ChangeCostChanged, "costMonthly", old.CostMonthly, next.CostMonthly, now))
	}
	return out
}

func costEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func newChange(targetID string, ct models.ChangeType, field string, prev, next any, at time.Time) models.Change {
	return models.Change{
		ID:            targetID + ":" + string(ct) + ":" + field + ":" + at.Format(time.RFC3339Nano),
		TargetID:      targetID,
		ChangeType:    ct,
		Field:         field,
		PreviousValue: prev,
		NewValue:      next,
		DetectedAt:    at,
		DetectedVia:   models.DetectedSync,
		InitiatorType: models.InitiatorSystem,
	}
}

var _ store.Store = (*Store)(nil)
