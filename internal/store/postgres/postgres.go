// Package postgres implements the Graph Store contract on top of
// PostgreSQL via pgx/sqlx, with schema-isolation support for multiple
// tenants sharing one database. Migrations are embedded and applied with
// goose.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/topolane/topolane/internal/apierr"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

var logger = logging.GetLogger("store.postgres")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a PostgreSQL-backed Graph Store. Schema is a search_path
// namespace, allowing several tenants to share one database.
type Store struct {
	db     *sqlx.DB
	schema string
}

// Open connects to dsn, applies pending migrations within the given schema,
// and returns a ready Store. schema defaults to "public" when empty.
func Open(ctx context.Context, dsn, schema string) (*Store, error) {
	if schema == "" {
		schema = "public"
	}

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	// Every pooled connection starts with the schema on its search_path.
	connCfg.RuntimeParams["search_path"] = fmt.Sprintf("%q", schema)
	sqlDB := stdlib.OpenDB(*connCfg)
	// sqlx only uses the driver name to pick a bind-type (dollar vs
	// question); "postgres" gets DOLLAR placeholders for pgx's stdlib shim.
	db := sqlx.NewDb(sqlDB, "postgres")
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schema)); err != nil {
		return nil, fmt.Errorf("postgres: create schema %q: %w", schema, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %q", schema)); err != nil {
		return nil, fmt.Errorf("postgres: set search_path: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("postgres: set dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	logger.InfoWithFields("postgres store ready", logging.Field("schema", schema))
	return &Store{db: db, schema: schema}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) UpsertNodes(ctx context.Context, inputs []models.NodeInput) error {
	if len(inputs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var changes []models.Change
	for _, in := range inputs {
		next := in.ToNode(now)

		var existing models.Node
		var tagsRaw []byte
		err := tx.QueryRowxContext(ctx, `SELECT name, status, cost_monthly, owner, created_at, tags FROM nodes WHERE id = $1`, next.ID).
			Scan(&existing.Name, &existing.Status, &existing.CostMonthly, &existing.Owner, &existing.CreatedAt, &tagsRaw)
		exists := err == nil
		if exists {
			_ = json.Unmarshal(tagsRaw, &existing.Tags)
			if nodeUnchanged(existing, next) {
				continue
			}
			next.CreatedAt = existing.CreatedAt
			changes = append(changes, fieldChanges(existing, next)...)
		} else {
			changes = append(changes, newChange(next.ID, models.ChangeNodeCreated, "", nil, nil))
		}

		tagsJSON, _ := json.Marshal(next.Tags)
		metaJSON, _ := json.Marshal(next.Metadata)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (id, provider, account, region, resource_type, native_id, name, status, tags, metadata, cost_monthly, owner, created_at, last_synced_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, status = EXCLUDED.status, tags = EXCLUDED.tags,
				metadata = EXCLUDED.metadata, cost_monthly = EXCLUDED.cost_monthly,
				owner = EXCLUDED.owner, last_synced_at = EXCLUDED.last_synced_at
		`, next.ID, next.Provider, next.Account, next.Region, next.ResourceType, next.NativeID,
			next.Name, next.Status, tagsJSON, metaJSON, next.CostMonthly, next.Owner, next.CreatedAt, next.LastSyncedAt)
		if err != nil {
			return fmt.Errorf("postgres: upsert node %q: %w", next.ID, err)
		}
	}

	if err := insertChanges(ctx, tx, changes); err != nil {
		return err
	}
	return tx.Commit()
}

func nodeUnchanged(existing, next models.Node) bool {
	if existing.Name != next.Name || existing.Status != next.Status || existing.Owner != next.Owner {
		return false
	}
	if (existing.CostMonthly == nil) != (next.CostMonthly == nil) {
		return false
	}
	if existing.CostMonthly != nil && *existing.CostMonthly != *next.CostMonthly {
		return false
	}
	return true
}

func fieldChanges(prev, next models.Node) []models.Change {
	var out []models.Change
	if prev.Name != next.Name {
		out = append(out, newChange(next.ID, models.ChangeNodeUpdated, "name", prev.Name, next.Name))
	}
	return out
}

func newChange(targetID string, ct models.ChangeType, field string, prev, newVal any) models.Change {
	return models.Change{
		ID:            uuid.NewString(),
		TargetID:      targetID,
		ChangeType:    ct,
		Field:         field,
		PreviousValue: prev,
		NewValue:      newVal,
		DetectedAt:    time.Now().UTC(),
		DetectedVia:   models.DetectedSync,
		Initiator:     "system",
		InitiatorType: models.InitiatorSystem,
	}
}

func insertChanges(ctx context.Context, tx *sqlx.Tx, changes []models.Change) error {
	for _, c := range changes {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		prevJSON, _ := json.Marshal(c.PreviousValue)
		newJSON, _ := json.Marshal(c.NewValue)
		metaJSON, _ := json.Marshal(c.Metadata)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO changes (id, target_id, change_type, field, previous_value, new_value, detected_at, detected_via, correlation_id, initiator, initiator_type, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, c.ID, c.TargetID, c.ChangeType, c.Field, prevJSON, newJSON, c.DetectedAt, c.DetectedVia, c.CorrelationID, c.Initiator, c.InitiatorType, metaJSON)
		if err != nil {
			return fmt.Errorf("postgres: append change: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertEdges(ctx context.Context, inputs []models.EdgeInput) error {
	if len(inputs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	var changes []models.Change
	for _, in := range inputs {
		next := in.ToEdge()

		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM nodes WHERE id = $1)`, next.SourceNodeID); err != nil {
			return fmt.Errorf("postgres: check source: %w", err)
		}
		if !exists {
			return apierr.New(apierr.KindDanglingEdge, fmt.Sprintf("source node %q does not exist", next.SourceNodeID))
		}
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM nodes WHERE id = $1)`, next.TargetNodeID); err != nil {
			return fmt.Errorf("postgres: check target: %w", err)
		}
		if !exists {
			return apierr.New(apierr.KindDanglingEdge, fmt.Sprintf("target node %q does not exist", next.TargetNodeID))
		}

		var alreadyExists bool
		_ = tx.GetContext(ctx, &alreadyExists, `SELECT EXISTS(SELECT 1 FROM edges WHERE id = $1)`, next.ID)
		if !alreadyExists {
			changes = append(changes, newChange(next.ID, models.ChangeEdgeCreated, "", nil, nil))
		}

		metaJSON, _ := json.Marshal(next.Metadata)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO edges (id, source_id, target_id, relationship_type, confidence, discovered_via, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET confidence = EXCLUDED.confidence, discovered_via = EXCLUDED.discovered_via, metadata = EXCLUDED.metadata
		`, next.ID, next.SourceNodeID, next.TargetNodeID, next.RelationshipType, next.Confidence, next.DiscoveredVia, metaJSON)
		if err != nil {
			return fmt.Errorf("postgres: upsert edge %q: %w", next.ID, err)
		}
	}

	if err := insertChanges(ctx, tx, changes); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var row nodeRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM nodes WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get node: %w", err)
	}
	n := row.toModel()
	return &n, nil
}

func (s *Store) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	var row edgeRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM edges WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get edge: %w", err)
	}
	e := row.toModel()
	return &e, nil
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM nodes WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("postgres: check node: %w", err)
	}
	if !exists {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("node %q not found", id))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete node: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE node_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete memberships: %w", err)
	}
	if err := insertChanges(ctx, tx, []models.Change{newChange(id, models.ChangeNodeDeleted, "", nil, nil)}); err != nil {
		return err
	}
	return tx.Commit()
}

// QueryNodes and the paginated variants below build a dynamic WHERE clause;
// large graphs should always prefer QueryNodesPaginated.
func (s *Store) QueryNodes(ctx context.Context, filter store.NodeFilter) ([]models.Node, error) {
	where, args := nodeFilterSQL(filter)
	var rows []nodeRow
	query := fmt.Sprintf(`SELECT * FROM nodes %s ORDER BY created_at, id`, where)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("postgres: query nodes: %w", err)
	}
	out := make([]models.Node, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) QueryNodesPaginated(ctx context.Context, filter store.NodeFilter, page store.PageRequest) (store.PageResult[models.Node], error) {
	limit := store.ClampLimit(page.Limit)
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Node]{}, err
	}

	where, args := nodeFilterSQL(filter)

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM nodes %s`, where)
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQuery), args...); err != nil {
		return store.PageResult[models.Node]{}, fmt.Errorf("postgres: count nodes: %w", err)
	}

	var rows []nodeRow
	listQuery := fmt.Sprintf(`SELECT * FROM nodes %s ORDER BY created_at, id OFFSET ? LIMIT ?`, where)
	listArgs := append(append([]any{}, args...), offset, limit)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(listQuery), listArgs...); err != nil {
		return store.PageResult[models.Node]{}, fmt.Errorf("postgres: list nodes: %w", err)
	}

	items := make([]models.Node, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}
	res := store.PageResult[models.Node]{Items: items, TotalCount: total, HasMore: offset+len(items) < total}
	if res.HasMore {
		res.NextCursor = store.EncodeCursor(hash, offset+len(items))
	}
	return res, nil
}

func nodeFilterSQL(f store.NodeFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Account != "" {
		clauses = append(clauses, "account = ?")
		args = append(args, f.Account)
	}
	if f.Region != "" {
		clauses = append(clauses, "region = ?")
		args = append(args, f.Region)
	}
	if f.NamePrefix != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, f.NamePrefix+"%")
	}
	if f.OwnerContains != "" {
		clauses = append(clauses, "owner LIKE ?")
		args = append(args, "%"+f.OwnerContains+"%")
	}
	if len(f.ResourceTypes) > 0 {
		clauses = append(clauses, "resource_type = ANY(?)")
		args = append(args, toStringSlice(f.ResourceTypes))
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status = ANY(?)")
		args = append(args, toStringSlice(f.Statuses))
	}
	for k, v := range f.TagMatch {
		clauses = append(clauses, "tags ->> ? = ?")
		args = append(args, k, v)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := "WHERE "
	for i, c := range clauses {
		if i > 0 {
			where += " AND "
		}
		where += c
	}
	return where, args
}

func toStringSlice[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func (s *Store) QueryEdgesPaginated(ctx context.Context, filter store.EdgeFilter, page store.PageRequest) (store.PageResult[models.Edge], error) {
	limit := store.ClampLimit(page.Limit)
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Edge]{}, err
	}

	var clauses []string
	var args []any
	if filter.SourceNodeID != "" {
		clauses = append(clauses, "source_id = ?")
		args = append(args, filter.SourceNodeID)
	}
	if filter.TargetNodeID != "" {
		clauses = append(clauses, "target_id = ?")
		args = append(args, filter.TargetNodeID)
	}
	if len(filter.RelationshipTypes) > 0 {
		clauses = append(clauses, "relationship_type = ANY(?)")
		args = append(args, toStringSlice(filter.RelationshipTypes))
	}
	where := ""
	for i, c := range clauses {
		if i == 0 {
			where = "WHERE " + c
		} else {
			where += " AND " + c
		}
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(fmt.Sprintf(`SELECT count(*) FROM edges %s`, where)), args...); err != nil {
		return store.PageResult[models.Edge]{}, fmt.Errorf("postgres: count edges: %w", err)
	}

	var rows []edgeRow
	listArgs := append(append([]any{}, args...), offset, limit)
	listQuery := fmt.Sprintf(`SELECT * FROM edges %s ORDER BY id OFFSET ? LIMIT ?`, where)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(listQuery), listArgs...); err != nil {
		return store.PageResult[models.Edge]{}, fmt.Errorf("postgres: list edges: %w", err)
	}
	items := make([]models.Edge, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}
	res := store.PageResult[models.Edge]{Items: items, TotalCount: total, HasMore: offset+len(items) < total}
	if res.HasMore {
		res.NextCursor = store.EncodeCursor(hash, offset+len(items))
	}
	return res, nil
}

func (s *Store) GetEdgesForNode(ctx context.Context, id string, dir store.Direction) ([]models.Edge, error) {
	var query string
	switch dir {
	case store.DirectionUpstream:
		query = `SELECT * FROM edges WHERE target_id = $1`
	case store.DirectionDownstream:
		query = `SELECT * FROM edges WHERE source_id = $1`
	default:
		query = `SELECT * FROM edges WHERE source_id = $1 OR target_id = $1`
	}
	var rows []edgeRow
	if err := s.db.SelectContext(ctx, &rows, query, id); err != nil {
		return nil, fmt.Errorf("postgres: edges for node: %w", err)
	}
	out := make([]models.Edge, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetNeighbors loads the full edge set once and runs the same deterministic
// BFS the memory backend uses; postgres holds graphs small enough that a
// recursive CTE buys little over this for the traversal depths IQL issues.
func (s *Store) GetNeighbors(ctx context.Context, id string, maxDepth int, dir store.Direction) (store.Neighborhood, error) {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return store.Neighborhood{}, err
	}
	if node == nil {
		return store.Neighborhood{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("node %q not found", id))
	}

	var rows []edgeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM edges`); err != nil {
		return store.Neighborhood{}, fmt.Errorf("postgres: load edges: %w", err)
	}
	edges := make([]models.Edge, len(rows))
	for i, r := range rows {
		edges[i] = r.toModel()
	}
	return s.bfs(ctx, id, maxDepth, dir, edges)
}

// bfs mirrors the memory backend's deterministic breadth-first traversal:
// equal-depth neighbors are tie-broken by lexicographic node id.
func (s *Store) bfs(ctx context.Context, id string, maxDepth int, dir store.Direction, edges []models.Edge) (store.Neighborhood, error) {
	visited := map[string]int{id: 0}
	visitedEdges := map[string]models.Edge{}
	frontier := []string{id}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		next := map[string]struct{}{}
		sortStrings(frontier)
		for _, cur := range frontier {
			for _, e := range edges {
				var neighbor string
				switch dir {
				case store.DirectionUpstream:
					if e.TargetNodeID != cur {
						continue
					}
					neighbor = e.SourceNodeID
				case store.DirectionDownstream:
					if e.SourceNodeID != cur {
						continue
					}
					neighbor = e.TargetNodeID
				default:
					if e.SourceNodeID == cur {
						neighbor = e.TargetNodeID
					} else if e.TargetNodeID == cur {
						neighbor = e.SourceNodeID
					} else {
						continue
					}
				}
				if _, ok := visited[neighbor]; !ok {
					next[neighbor] = struct{}{}
				}
				visitedEdges[e.ID] = e
			}
		}
		var sortedNext []string
		for n := range next {
			sortedNext = append(sortedNext, n)
		}
		sortStrings(sortedNext)
		for _, n := range sortedNext {
			visited[n] = depth + 1
		}
		frontier = sortedNext
	}

	var ids []string
	for nid := range visited {
		ids = append(ids, nid)
	}
	sortStrings(ids)

	result := store.Neighborhood{}
	for _, nid := range ids {
		n, err := s.GetNode(ctx, nid)
		if err != nil {
			return store.Neighborhood{}, err
		}
		if n != nil {
			result.Nodes = append(result.Nodes, *n)
		}
	}
	var eids []string
	for eid := range visitedEdges {
		eids = append(eids, eid)
	}
	sortStrings(eids)
	for _, eid := range eids {
		e := visitedEdges[eid]
		_, sOK := visited[e.SourceNodeID]
		_, tOK := visited[e.TargetNodeID]
		if sOK && tOK {
			result.Edges = append(result.Edges, e)
		}
	}
	return result, nil
}

func (s *Store) AppendChanges(ctx context.Context, changes []models.Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()
	if err := insertChanges(ctx, tx, changes); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetChanges(ctx context.Context, filter models.ChangeFilter) ([]models.Change, error) {
	where, args := changeFilterSQL(filter)
	var rows []changeRow
	query := fmt.Sprintf(`SELECT * FROM changes %s ORDER BY detected_at DESC`, where)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("postgres: get changes: %w", err)
	}
	out := make([]models.Change, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func changeFilterSQL(f models.ChangeFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.TargetID != "" {
		clauses = append(clauses, "target_id = ?")
		args = append(args, f.TargetID)
	}
	if len(f.ChangeTypes) > 0 {
		clauses = append(clauses, "change_type = ANY(?)")
		args = append(args, toStringSlice(f.ChangeTypes))
	}
	if f.CorrelationID != "" {
		clauses = append(clauses, "correlation_id = ?")
		args = append(args, f.CorrelationID)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "detected_at >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "detected_at <= ?")
		args = append(args, f.Until)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := "WHERE "
	for i, c := range clauses {
		if i > 0 {
			where += " AND "
		}
		where += c
	}
	return where, args
}

func (s *Store) GetChangesPaginated(ctx context.Context, filter models.ChangeFilter, page store.PageRequest) (store.PageResult[models.Change], error) {
	limit := store.ClampLimit(page.Limit)
	hash := store.HashFilter(filter)
	offset, err := store.DecodeCursor(page.Cursor, hash)
	if err != nil {
		return store.PageResult[models.Change]{}, err
	}
	where, args := changeFilterSQL(filter)

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(fmt.Sprintf(`SELECT count(*) FROM changes %s`, where)), args...); err != nil {
		return store.PageResult[models.Change]{}, fmt.Errorf("postgres: count changes: %w", err)
	}

	var rows []changeRow
	listArgs := append(append([]any{}, args...), offset, limit)
	listQuery := fmt.Sprintf(`SELECT * FROM changes %s ORDER BY detected_at DESC OFFSET ? LIMIT ?`, where)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(listQuery), listArgs...); err != nil {
		return store.PageResult[models.Change]{}, fmt.Errorf("postgres: list changes: %w", err)
	}
	items := make([]models.Change, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}
	res := store.PageResult[models.Change]{Items: items, TotalCount: total, HasMore: offset+len(items) < total}
	if res.HasMore {
		res.NextCursor = store.EncodeCursor(hash, offset+len(items))
	}
	return res, nil
}

func (s *Store) GetNodeTimeline(ctx context.Context, id string, limit int) ([]models.Change, error) {
	query := `SELECT * FROM changes WHERE target_id = $1 ORDER BY detected_at DESC`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []changeRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: node timeline: %w", err)
	}
	out := make([]models.Change, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) UpsertGroup(ctx context.Context, group models.Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, group_type, provider, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, group_type = EXCLUDED.group_type, updated_at = EXCLUDED.updated_at
	`, group.ID, group.Name, group.GroupType, group.Provider, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert group: %w", err)
	}
	return nil
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, nodeID string) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, groupID); err != nil {
		return fmt.Errorf("postgres: check group: %w", err)
	}
	if !exists {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("group %q not found", groupID))
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO group_members (group_id, node_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, groupID, nodeID)
	if err != nil {
		return fmt.Errorf("postgres: add member: %w", err)
	}
	return nil
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, nodeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND node_id = $2`, groupID, nodeID)
	if err != nil {
		return fmt.Errorf("postgres: remove member: %w", err)
	}
	return nil
}

func (s *Store) GetGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, groupID); err != nil {
		return nil, fmt.Errorf("postgres: check group: %w", err)
	}
	if !exists {
		return nil, apierr.New(apierr.KindNotFound, fmt.Sprintf("group %q not found", groupID))
	}
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT node_id FROM group_members WHERE group_id = $1 ORDER BY node_id`, groupID); err != nil {
		return nil, fmt.Errorf("postgres: group members: %w", err)
	}
	return ids, nil
}

func (s *Store) GetStats(ctx context.Context) (store.Stats, error) {
	stats := store.Stats{
		NodesByProvider:     make(map[models.Provider]int),
		NodesByResourceType: make(map[models.ResourceType]int),
		NodesByStatus:       make(map[models.NodeStatus]int),
	}

	if err := s.db.GetContext(ctx, &stats.TotalNodes, `SELECT count(*) FROM nodes`); err != nil {
		return stats, fmt.Errorf("postgres: count nodes: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.TotalEdges, `SELECT count(*) FROM edges`); err != nil {
		return stats, fmt.Errorf("postgres: count edges: %w", err)
	}

	type countRow struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	var byProvider []countRow
	if err := s.db.SelectContext(ctx, &byProvider, `SELECT provider AS key, count(*) AS count FROM nodes GROUP BY provider`); err != nil {
		return stats, fmt.Errorf("postgres: stats by provider: %w", err)
	}
	for _, r := range byProvider {
		stats.NodesByProvider[models.Provider(r.Key)] = r.Count
	}

	var byType []countRow
	if err := s.db.SelectContext(ctx, &byType, `SELECT resource_type AS key, count(*) AS count FROM nodes GROUP BY resource_type`); err != nil {
		return stats, fmt.Errorf("postgres: stats by type: %w", err)
	}
	for _, r := range byType {
		stats.NodesByResourceType[models.ResourceType(r.Key)] = r.Count
	}

	var byStatus []countRow
	if err := s.db.SelectContext(ctx, &byStatus, `SELECT status AS key, count(*) AS count FROM nodes GROUP BY status`); err != nil {
		return stats, fmt.Errorf("postgres: stats by status: %w", err)
	}
	for _, r := range byStatus {
		stats.NodesByStatus[models.NodeStatus(r.Key)] = r.Count
	}

	var totalCost *float64
	if err := s.db.GetContext(ctx, &totalCost, `SELECT sum(cost_monthly) FROM nodes`); err == nil && totalCost != nil {
		stats.TotalCostMonthly = *totalCost
	}
	var lastSync *time.Time
	if err := s.db.GetContext(ctx, &lastSync, `SELECT max(last_synced_at) FROM nodes`); err == nil && lastSync != nil {
		stats.LastSyncAt = *lastSync
	}

	return stats, nil
}

func sortStrings(s []string) {
	sort.Strings(s)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

var _ store.Store = (*Store)(nil)
