package iql

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/store"
)

const defaultTraversalDepth = 3

// Execute compiles a parsed Query into calls against st and returns the
// structured Result (spec §4.D).
func Execute(ctx context.Context, st store.Store, q *Query) (Result, error) {
	switch {
	case q.Find != nil:
		return executeFind(ctx, st, q.Find)
	case q.Summarize != nil:
		return executeSummarize(ctx, st, q.Summarize)
	default:
		return Result{}, fmt.Errorf("iql: empty query")
	}
}

// Explain parses src and returns its AST without executing it.
func Explain(src string) (Result, error) {
	q, err := Parse(src)
	if err != nil {
		return Result{}, err
	}
	return Result{Type: ResultExplain, AST: q}, nil
}

func executeFind(ctx context.Context, st store.Store, f *FindQuery) (Result, error) {
	depth := defaultTraversalDepth
	if f.Depth != nil {
		depth = int(*f.Depth)
	}
	limit := 0
	if f.Limit != nil {
		limit = int(*f.Limit)
	}

	switch {
	case f.Resources:
		nodes, err := st.QueryNodes(ctx, store.NodeFilter{})
		if err != nil {
			return Result{}, err
		}
		nodes, err = filterNodes(ctx, st, nodes, f.Where)
		if err != nil {
			return Result{}, err
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
		nodes = applyLimit(nodes, limit)
		return Result{Type: ResultFind, Nodes: nodes}, nil

	case f.Downstream != nil:
		return findNeighbors(ctx, st, *f.Downstream, depth, store.DirectionDownstream, f.Where, limit)

	case f.Upstream != nil:
		return findNeighbors(ctx, st, *f.Upstream, depth, store.DirectionUpstream, f.Where, limit)

	case f.Path != nil:
		nodes, edges, err := shortestPath(ctx, st, f.Path.From, f.Path.To)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: ResultPath, PathNodes: nodes, Edges: edges}, nil

	default:
		return Result{}, fmt.Errorf("iql: FIND clause has no target")
	}
}

func findNeighbors(ctx context.Context, st store.Store, rootID string, depth int, dir store.Direction, where *Expr, limit int) (Result, error) {
	nbh, err := st.GetNeighbors(ctx, rootID, depth, dir)
	if err != nil {
		return Result{}, err
	}
	nodes, err := filterNodes(ctx, st, nbh.Nodes, where)
	if err != nil {
		return Result{}, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	nodes = applyLimit(nodes, limit)
	return Result{Type: ResultFind, Nodes: nodes, Edges: nbh.Edges}, nil
}

// shortestPath runs an unweighted BFS from "from" to "to" across edges in
// either direction, returning the node/edge sequence of the first shortest
// path found, or an empty result when unreachable.
func shortestPath(ctx context.Context, st store.Store, from, to string) ([]models.Node, []models.Edge, error) {
	if from == to {
		n, err := st.GetNode(ctx, from)
		if err != nil || n == nil {
			return nil, nil, err
		}
		return []models.Node{*n}, nil, nil
	}

	type step struct {
		id   string
		via  *models.Edge
		prev string
	}
	visited := map[string]step{from: {id: from}}
	queue := []string{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		edges, err := st.GetEdgesForNode(ctx, cur, store.DirectionBoth)
		if err != nil {
			return nil, nil, err
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
		for i := range edges {
			e := edges[i]
			other := e.TargetNodeID
			if other == cur {
				other = e.SourceNodeID
			}
			if _, seen := visited[other]; seen {
				continue
			}
			visited[other] = step{id: other, via: &edges[i], prev: cur}
			queue = append(queue, other)
		}
	}

	if _, reached := visited[to]; !reached {
		return nil, nil, nil
	}

	var pathIDs []string
	var edges []models.Edge
	cur := to
	for cur != from {
		s := visited[cur]
		pathIDs = append([]string{cur}, pathIDs...)
		edges = append([]models.Edge{*s.via}, edges...)
		cur = s.prev
	}
	pathIDs = append([]string{from}, pathIDs...)

	nodes := make([]models.Node, 0, len(pathIDs))
	for _, id := range pathIDs {
		n, err := st.GetNode(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if n != nil {
			nodes = append(nodes, *n)
		}
	}
	return nodes, edges, nil
}

func executeSummarize(ctx context.Context, st store.Store, s *SummarizeQuery) (Result, error) {
	nodes, err := st.QueryNodes(ctx, store.NodeFilter{})
	if err != nil {
		return Result{}, err
	}
	nodes, err = filterNodes(ctx, st, nodes, s.Where)
	if err != nil {
		return Result{}, err
	}

	path := strings.Split(s.GroupBy, ".")
	groups := map[string]*SummaryGroup{}
	var order []string
	for _, n := range nodes {
		key := fmt.Sprintf("%v", resolveField(n, path))
		g, ok := groups[key]
		if !ok {
			g = &SummaryGroup{Key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.Count++
		if n.CostMonthly != nil {
			g.TotalCost += *n.CostMonthly
		}
	}

	sort.Strings(order)
	out := make([]SummaryGroup, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return Result{Type: ResultSummarize, Groups: out}, nil
}

func applyLimit(nodes []models.Node, limit int) []models.Node {
	if limit > 0 && limit < len(nodes) {
		return nodes[:limit]
	}
	return nodes
}

func filterNodes(ctx context.Context, st store.Store, nodes []models.Node, where *Expr) ([]models.Node, error) {
	if where == nil {
		return nodes, nil
	}
	var out []models.Node
	for _, n := range nodes {
		ok, err := evalExpr(ctx, st, where, n)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func evalExpr(ctx context.Context, st store.Store, e *Expr, n models.Node) (bool, error) {
	for _, and := range e.Or {
		ok, err := evalAnd(ctx, st, and, n)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func evalAnd(ctx context.Context, st store.Store, a *AndExpr, n models.Node) (bool, error) {
	for _, not := range a.And {
		ok, err := evalNot(ctx, st, not, n)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalNot(ctx context.Context, st store.Store, not *NotExpr, n models.Node) (bool, error) {
	ok, err := evalPrimary(ctx, st, not.Primary, n)
	if err != nil {
		return false, err
	}
	if not.Not {
		return !ok, nil
	}
	return ok, nil
}

func evalPrimary(ctx context.Context, st store.Store, p *Primary, n models.Node) (bool, error) {
	switch {
	case p.Sub != nil:
		return evalExpr(ctx, st, p.Sub, n)
	case p.Call != nil:
		return evalCall(ctx, st, p.Call, n)
	case p.Compare != nil:
		return evalCompare(p.Compare, n)
	default:
		return false, fmt.Errorf("iql: empty predicate")
	}
}

func evalCall(ctx context.Context, st store.Store, c *Call, n models.Node) (bool, error) {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = valueToString(a)
	}

	switch strings.ToLower(c.Func) {
	case "tagged":
		if len(args) == 0 {
			return false, fmt.Errorf("iql: tagged() requires at least a key argument")
		}
		v, ok := n.Tags[args[0]]
		if !ok {
			return false, nil
		}
		if len(args) == 1 {
			return true, nil
		}
		return v == args[1], nil

	case "has_edge":
		if len(args) != 1 {
			return false, fmt.Errorf("iql: has_edge() requires one argument")
		}
		edges, err := st.GetEdgesForNode(ctx, n.ID, store.DirectionBoth)
		if err != nil {
			return false, err
		}
		for _, e := range edges {
			if string(e.RelationshipType) == args[0] {
				return true, nil
			}
		}
		return false, nil

	case "drifted_since":
		if len(args) != 1 {
			return false, fmt.Errorf("iql: drifted_since() requires a timestamp argument")
		}
		ts, err := time.Parse(time.RFC3339, args[0])
		if err != nil {
			return false, fmt.Errorf("iql: drifted_since(): %w", err)
		}
		changes, err := st.GetChanges(ctx, models.ChangeFilter{TargetID: n.ID, ChangeTypes: []models.ChangeType{models.ChangeNodeDrifted}, Since: ts})
		if err != nil {
			return false, err
		}
		return len(changes) > 0, nil

	case "created_after":
		ts, err := time.Parse(time.RFC3339, valueAt(args, 0))
		if err != nil {
			return false, fmt.Errorf("iql: created_after(): %w", err)
		}
		return n.CreatedAt.After(ts), nil

	case "created_before":
		ts, err := time.Parse(time.RFC3339, valueAt(args, 0))
		if err != nil {
			return false, fmt.Errorf("iql: created_before(): %w", err)
		}
		return n.CreatedAt.Before(ts), nil

	default:
		return false, fmt.Errorf("iql: unknown function %q", c.Func)
	}
}

func valueAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func evalCompare(c *Compare, n models.Node) (bool, error) {
	field := resolveField(n, c.Field)
	target := valueToAny(c.Value)

	switch strings.ToUpper(c.Op) {
	case "=":
		return fmt.Sprintf("%v", field) == fmt.Sprintf("%v", target), nil
	case "!=":
		return fmt.Sprintf("%v", field) != fmt.Sprintf("%v", target), nil
	case ">", "<", ">=", "<=":
		return compareNumeric(field, target, c.Op)
	case "LIKE":
		return likeMatch(fmt.Sprintf("%v", field), fmt.Sprintf("%v", target)), nil
	case "IN":
		list, ok := target.([]any)
		if !ok {
			return false, fmt.Errorf("iql: IN requires a list value")
		}
		for _, v := range list {
			if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", field) {
				return true, nil
			}
		}
		return false, nil
	case "MATCHES":
		re, err := regexp.Compile(fmt.Sprintf("%v", target))
		if err != nil {
			return false, fmt.Errorf("iql: MATCHES: %w", err)
		}
		return re.MatchString(fmt.Sprintf("%v", field)), nil
	default:
		return false, fmt.Errorf("iql: unknown operator %q", c.Op)
	}
}

func compareNumeric(field, target any, op string) (bool, error) {
	f, ok1 := toFloat(field)
	t, ok2 := toFloat(target)
	if !ok1 || !ok2 {
		return false, fmt.Errorf("iql: operator %q requires numeric operands", op)
	}
	switch op {
	case ">":
		return f > t, nil
	case "<":
		return f < t, nil
	case ">=":
		return f >= t, nil
	case "<=":
		return f <= t, nil
	}
	return false, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case *float64:
		if t == nil {
			return 0, false
		}
		return *t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func likeMatch(value, pattern string) bool {
	re := "^" + regexp.QuoteMeta(pattern) + "$"
	re = strings.ReplaceAll(re, `%`, `.*`)
	re = strings.ReplaceAll(re, `_`, `.`)
	matched, err := regexp.MatchString(re, value)
	return err == nil && matched
}

func valueToString(v *Value) string {
	switch {
	case v.Str != nil:
		return *v.Str
	case v.Num != nil:
		return strconv.FormatFloat(*v.Num, 'f', -1, 64)
	case v.Bool != nil:
		return *v.Bool
	default:
		return ""
	}
}

func valueToAny(v *Value) any {
	switch {
	case v.Str != nil:
		return *v.Str
	case v.Num != nil:
		return *v.Num
	case v.Bool != nil:
		return strings.EqualFold(*v.Bool, "true")
	case v.List != nil:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}

// resolveField maps a dotted field path to the node attribute it names.
// "tag.<k>" and "metadata.<k>" index into the respective map; everything
// else is a direct struct attribute.
func resolveField(n models.Node, path []string) any {
	if len(path) == 0 {
		return nil
	}
	switch strings.ToLower(path[0]) {
	case "tag", "tags":
		if len(path) < 2 {
			return nil
		}
		return n.Tags[path[1]]
	case "metadata":
		if len(path) < 2 {
			return nil
		}
		return n.Metadata[path[1]]
	case "id":
		return n.ID
	case "provider":
		return string(n.Provider)
	case "account":
		return n.Account
	case "region":
		return n.Region
	case "resourcetype":
		return string(n.ResourceType)
	case "nativeid":
		return n.NativeID
	case "name":
		return n.Name
	case "status":
		return string(n.Status)
	case "owner":
		return n.Owner
	case "costmonthly", "cost":
		if n.CostMonthly == nil {
			return 0.0
		}
		return *n.CostMonthly
	default:
		return nil
	}
}
