package planner

import (
	"fmt"
	"strings"

	"github.com/velesdb/velesdb/internal/bm25"
	"github.com/velesdb/velesdb/internal/column"
	"github.com/velesdb/velesdb/internal/distance"
	"github.com/velesdb/velesdb/internal/hnsw"
	"github.com/velesdb/velesdb/internal/velesql"
	"github.com/velesdb/velesdb/internal/verrors"
)

func distanceKernel(m distance.Metric) distance.Kernel {
	return distance.For(m)
}

// clauses is the classification output of planner pass 2/3: the single
// driving NEAR expression (if any), the single MATCH expression (if any),
// the similarity-threshold comparison (if any, per Open Question decision
// 1), and everything else folded into a column-store predicate.
type clauses struct {
	near     *velesql.NearExpr
	match    *velesql.MatchExpr
	simCmp   *velesql.ComparisonExpr
	residual *column.Predicate // nil means "no additional predicate"
}

// extractClauses walks a top-level AND chain, classifying pushdown-eligible
// predicates from the single vector/text access methods, per spec §4.9
// planner pass 2. Expressions inside OR/NOT are treated as ordinary
// predicates (not further decomposed) — a documented simplification kept
// within scope of this implementation.
func extractClauses(expr velesql.Expr, params map[string]any) (*clauses, error) {
	c := &clauses{}
	var residualLeaves []*column.Predicate

	var walk func(e velesql.Expr) error
	walk = func(e velesql.Expr) error {
		if e == nil {
			return nil
		}
		if bin, ok := e.(*velesql.BinaryExpr); ok && bin.Op == "AND" {
			if err := walk(bin.Left); err != nil {
				return err
			}
			return walk(bin.Right)
		}
		switch n := e.(type) {
		case *velesql.NearExpr:
			if c.near != nil {
				return verrors.New("planner.plan", verrors.KindValidation, "at most one vector NEAR clause is supported")
			}
			c.near = n
			return nil
		case *velesql.MatchExpr:
			if c.match != nil {
				return verrors.New("planner.plan", verrors.KindValidation, "at most one MATCH clause is supported")
			}
			c.match = n
			return nil
		case *velesql.ComparisonExpr:
			if sim, ok := n.Left.(*velesql.SimilarityExpr); ok {
				_ = sim
				c.simCmp = n
				return nil
			}
		}
		pred, err := translatePredicate(e, params)
		if err != nil {
			return err
		}
		residualLeaves = append(residualLeaves, pred)
		return nil
	}
	if err := walk(expr); err != nil {
		return nil, err
	}
	if len(residualLeaves) == 1 {
		c.residual = residualLeaves[0]
	} else if len(residualLeaves) > 1 {
		c.residual = column.And(residualLeaves...)
	}
	return c, nil
}

// translatePredicate converts a velesql boolean/comparison expression into
// a column.Predicate, resolving Param/Literal values against params.
func translatePredicate(expr velesql.Expr, params map[string]any) (*column.Predicate, error) {
	switch n := expr.(type) {
	case *velesql.BinaryExpr:
		left, err := translatePredicate(n.Left, params)
		if err != nil {
			return nil, err
		}
		right, err := translatePredicate(n.Right, params)
		if err != nil {
			return nil, err
		}
		if n.Op == "AND" {
			return column.And(left, right), nil
		}
		return column.Or(left, right), nil
	case *velesql.NotExpr:
		child, err := translatePredicate(n.Child, params)
		if err != nil {
			return nil, err
		}
		return column.Not(child), nil
	case *velesql.ComparisonExpr:
		field, ok := n.Left.(*velesql.Ident)
		if !ok {
			return nil, verrors.New("planner.plan", verrors.KindValidation, "comparison left-hand side must be a field")
		}
		val, err := resolveValue(n.Right, params)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "=":
			return column.Eq(field.Name, val), nil
		case "!=":
			return column.Not(column.Eq(field.Name, val)), nil
		case "<":
			return column.Range(field.Name, column.OpLt, val), nil
		case "<=":
			return column.Range(field.Name, column.OpLte, val), nil
		case ">":
			return column.Range(field.Name, column.OpGt, val), nil
		case ">=":
			return column.Range(field.Name, column.OpGte, val), nil
		default:
			return nil, verrors.New("planner.plan", verrors.KindValidation, "unsupported comparison operator %q", n.Op)
		}
	case *velesql.InExpr:
		values := make([]any, 0, len(n.Values))
		for _, v := range n.Values {
			rv, err := resolveValue(v, params)
			if err != nil {
				return nil, err
			}
			values = append(values, rv)
		}
		return column.In(n.Field, values), nil
	case *velesql.BetweenExpr:
		lo, err := resolveValue(n.Lo, params)
		if err != nil {
			return nil, err
		}
		hi, err := resolveValue(n.Hi, params)
		if err != nil {
			return nil, err
		}
		return column.And(column.Range(n.Field, column.OpGte, lo), column.Range(n.Field, column.OpLte, hi)), nil
	case *velesql.LikeExpr:
		pattern, err := resolveValue(n.Pattern, params)
		if err != nil {
			return nil, err
		}
		s, _ := pattern.(string)
		if n.CaseInsensitive {
			return column.ILike(n.Field, s), nil
		}
		return column.Like(n.Field, s), nil
	case *velesql.IsNullExpr:
		if n.Negate {
			return column.IsNotNull(n.Field), nil
		}
		return column.IsNull(n.Field), nil
	default:
		return nil, verrors.New("planner.plan", verrors.KindValidation, "expression cannot be used as a predicate")
	}
}

func resolveValue(expr velesql.Expr, params map[string]any) (any, error) {
	switch n := expr.(type) {
	case *velesql.Literal:
		return n.Value, nil
	case *velesql.Param:
		v, ok := params[n.Name]
		if !ok {
			return nil, verrors.New("planner.plan", verrors.KindParameterMissing, "unbound parameter $%s", n.Name)
		}
		return v, nil
	case *velesql.Ident:
		return n.Name, nil
	default:
		return nil, verrors.New("planner.plan", verrors.KindValidation, "cannot resolve value from expression")
	}
}

func resolveVector(expr velesql.Expr, params map[string]any) ([]float32, error) {
	switch n := expr.(type) {
	case *velesql.VectorLiteral:
		out := make([]float32, len(n.Values))
		for i, v := range n.Values {
			out[i] = float32(v)
		}
		return out, nil
	case *velesql.Param:
		v, ok := params[n.Name]
		if !ok {
			return nil, verrors.New("planner.plan", verrors.KindParameterMissing, "unbound parameter $%s", n.Name)
		}
		switch vec := v.(type) {
		case []float32:
			return vec, nil
		case []float64:
			out := make([]float32, len(vec))
			for i, f := range vec {
				out[i] = float32(f)
			}
			return out, nil
		default:
			return nil, verrors.New("planner.plan", verrors.KindValidation, "parameter $%s is not a vector", n.Name)
		}
	default:
		return nil, verrors.New("planner.plan", verrors.KindValidation, "expected a vector expression")
	}
}

// executeStmt runs one SELECT statement (no set operations) to completion:
// classify, pushdown, search, fuse, aggregate, order, project.
func (ex *Executor) executeStmt(stmt *velesql.SelectStmt, params map[string]any) ([]Row, error) {
	c, err := extractClauses(stmt.Where, params)
	if err != nil {
		return nil, err
	}

	k := 0
	if stmt.Limit != nil {
		k = *stmt.Limit
	}

	var rows []Row
	switch {
	case stmt.Fusion != nil && c.near != nil:
		rows, err = ex.executeFusion(c, stmt, params, k)
	case c.near != nil:
		rows, err = ex.executeVectorSearch(c, params, k)
	case c.match != nil:
		rows, err = ex.executeTextSearch(c, params, k)
	case c.simCmp != nil:
		rows, err = ex.executeSimilarityThreshold(c, params, k)
	default:
		rows, err = ex.executePredicateOnly(c)
	}
	if err != nil {
		return nil, err
	}

	if len(stmt.Joins) > 0 {
		rows, err = ex.applyJoins(stmt, rows, params)
		if err != nil {
			return nil, err
		}
	}

	rows = ex.project(rows, stmt.Select)

	if len(stmt.GroupBy) > 0 || hasAggregates(stmt.Select) {
		rows, err = aggregateRows(rows, stmt)
		if err != nil {
			return nil, err
		}
	}

	if len(stmt.OrderBy) > 0 {
		applyOrderBy(rows, stmt.OrderBy)
	} else if c.near != nil || c.match != nil || c.simCmp != nil || stmt.Fusion != nil {
		// Every access method's Score is on a "higher is better" scale
		// (see resultsToRows); default to most-relevant first.
		sortRows(rows, true)
	}

	rows = applyOffsetLimit(rows, stmt.Offset, stmt.Limit)
	return rows, nil
}

func hasAggregates(items []velesql.SelectItem) bool {
	for _, it := range items {
		if it.Aggregate != "" {
			return true
		}
	}
	return false
}

func (ex *Executor) liveIDsFor(pred *column.Predicate) ([]uint64, error) {
	if pred == nil {
		return ex.backend.AllLiveIDs(), nil
	}
	return ex.backend.EvaluatePredicate(pred)
}

// executeVectorSearch implements planner pass 3: predicates (if any)
// evaluate to a bitmap first, then vector search is constrained to that
// candidate set (brute-force fallback when the candidate set is small).
func (ex *Executor) executeVectorSearch(c *clauses, params map[string]any, k int) ([]Row, error) {
	query, err := resolveVector(c.near.Vec, params)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := ex.backend.VectorSearch(query, k, hnsw.Balanced.EfSearch(k))
	if err != nil {
		return nil, err
	}

	if c.residual == nil {
		return resultsToRows(results), nil
	}

	candidateIDs, err := ex.backend.EvaluatePredicate(c.residual)
	if err != nil {
		return nil, err
	}
	candidateSet := idSetU64(candidateIDs)

	// If the overfetched graph results don't cover k after filtering, and
	// the candidate set is small, fall back to brute force over it.
	filtered := filterResults(results, candidateSet)
	if len(filtered) < k && len(candidateIDs) <= bruteForceFallbackThreshold {
		return ex.bruteForceOverCandidates(query, candidateIDs, k)
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return resultsToRows(filtered), nil
}

// bruteForceFallbackThreshold bounds the candidate-set size below which
// the planner scores every candidate directly instead of trusting the
// graph's overfetch to have covered them all, per spec §4.9 step 3.
const bruteForceFallbackThreshold = 2000

func (ex *Executor) bruteForceOverCandidates(query []float32, ids []uint64, k int) ([]Row, error) {
	type scored struct {
		id   uint64
		dist float32
	}
	kernel := distanceKernel(ex.backend.Metric())
	var scoredList []scored
	for _, id := range ids {
		v, ok := ex.backend.Vector(id)
		if !ok {
			continue
		}
		d, err := kernel(query, v)
		if err != nil {
			continue
		}
		scoredList = append(scoredList, scored{id: id, dist: d})
	}
	sortScored(scoredList)
	if len(scoredList) > k {
		scoredList = scoredList[:k]
	}
	rows := make([]Row, 0, len(scoredList))
	for _, s := range scoredList {
		rows = append(rows, Row{ID: s.id, Score: 1 - float64(s.dist)})
	}
	return rows, nil
}

func sortScored(s []struct {
	id   uint64
	dist float32
}) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j].dist < s[j-1].dist {
			s[j], s[j-1] = s[j-1], s[j]
			j--
		}
	}
}

func filterResults(results []hnsw.Result, set map[uint64]bool) []hnsw.Result {
	var out []hnsw.Result
	for _, r := range results {
		if set[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func idSetU64(ids []uint64) map[uint64]bool {
	s := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// resultsToRows converts hnsw distances (lower is closer) into Row.Score
// values on the "higher is better" scale shared by every access method, so
// fusion, ordering, and default result sorting behave uniformly regardless
// of whether a row came from vector search, text search, or fusion.
func resultsToRows(results []hnsw.Result) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, Row{ID: r.ID, Score: 1 - float64(r.Distance)})
	}
	return rows
}

func (ex *Executor) executeTextSearch(c *clauses, params map[string]any, k int) ([]Row, error) {
	q, err := resolveValue(c.match.Query, params)
	if err != nil {
		return nil, err
	}
	text, _ := q.(string)
	if k <= 0 {
		k = 10
	}
	fetch := k
	if c.residual != nil {
		fetch = k * OverfetchFactor
	}
	hits := ex.backend.TextSearch(c.match.Field, text, fetch)

	var allowed map[uint64]bool
	if c.residual != nil {
		candidateIDs, err := ex.backend.EvaluatePredicate(c.residual)
		if err != nil {
			return nil, err
		}
		allowed = idSetU64(candidateIDs)
	}

	rows := make([]Row, 0, len(hits))
	for _, h := range hits {
		if allowed != nil && !allowed[h.ID] {
			continue
		}
		rows = append(rows, Row{ID: h.ID, Score: h.Score})
		if len(rows) == k {
			break
		}
	}
	return rows, nil
}

// executeSimilarityThreshold implements spec §4.9's similarity(...) op
// threshold predicate: over-fetch k*OverfetchFactor via the index, then
// filter by the threshold. Documented ANN approximation, not an exact
// threshold scan (Open Question decision 1).
func (ex *Executor) executeSimilarityThreshold(c *clauses, params map[string]any, k int) ([]Row, error) {
	sim := c.simCmp.Left.(*velesql.SimilarityExpr)
	query, err := resolveVector(sim.Vec, params)
	if err != nil {
		return nil, err
	}
	thresholdAny, err := resolveValue(c.simCmp.Right, params)
	if err != nil {
		return nil, err
	}
	threshold := toFloat(thresholdAny)

	if k <= 0 {
		k = 100
	}
	fetch := k * OverfetchFactor
	results, err := ex.backend.VectorSearch(query, fetch, hnsw.Balanced.EfSearch(fetch))
	if err != nil {
		return nil, err
	}

	// similarity(...) is always expressed on a similarity scale (higher is
	// closer) regardless of the collection's underlying metric, so a
	// distance metric's threshold and comparison operator both invert.
	invert := ex.backend.Metric().IsDistance()
	cmpOp := c.simCmp.Op
	cmpThreshold := threshold
	if invert {
		cmpOp = invertComparisonForDistance(cmpOp)
		cmpThreshold = 1 - threshold
	}

	var rows []Row
	for _, r := range results {
		// Row.Score stays on the shared "higher is better" scale used by
		// every access method, independent of the comparison direction.
		similarity := 1 - float64(r.Distance)
		cmpValue := float64(r.Distance)
		if !invert {
			cmpValue = similarity
		}
		if compareThreshold(cmpOp, cmpValue, cmpThreshold) {
			rows = append(rows, Row{ID: r.ID, Score: similarity})
		}
	}
	return rows, nil
}

func invertComparisonForDistance(op string) string {
	switch op {
	case ">":
		return "<"
	case ">=":
		return "<="
	case "<":
		return ">"
	case "<=":
		return ">="
	default:
		return op
	}
}

func compareThreshold(op string, v, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "=":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func (ex *Executor) executePredicateOnly(c *clauses) ([]Row, error) {
	ids, err := ex.liveIDsFor(c.residual)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, Row{ID: id})
	}
	return rows, nil
}

// executeFusion implements spec §4.9 step 5: run vector and text branches,
// then fuse per the USING FUSION(strategy, params) clause.
func (ex *Executor) executeFusion(c *clauses, stmt *velesql.SelectStmt, params map[string]any, k int) ([]Row, error) {
	strategy, err := bm25.ValidateStrategy(stmt.Fusion.Strategy)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	vecResults, err := ex.backend.VectorSearch(mustVector(c.near.Vec, params), k*OverfetchFactor, hnsw.Balanced.EfSearch(k*OverfetchFactor))
	if err != nil {
		return nil, err
	}
	vecScores := make(map[uint64]float64, len(vecResults))
	vecRanks := make([]uint64, 0, len(vecResults))
	for _, r := range vecResults {
		vecScores[r.ID] = 1.0 / (1.0 + float64(r.Distance)) // higher is more similar
		vecRanks = append(vecRanks, r.ID)
	}

	var textScores map[uint64]float64
	var textRanks []uint64
	if c.match != nil {
		text, _ := resolveValue(c.match.Query, params)
		s, _ := text.(string)
		hits := ex.backend.TextSearch(c.match.Field, s, k*OverfetchFactor)
		textScores = make(map[uint64]float64, len(hits))
		for _, h := range hits {
			textScores[h.ID] = h.Score
			textRanks = append(textRanks, h.ID)
		}
	}

	vectorWeight := stmt.Fusion.Params["vector_weight"]
	textWeight := stmt.Fusion.Params["graph_weight"]
	if vectorWeight == 0 && textWeight == 0 {
		vectorWeight, textWeight = 0.5, 0.5
	}

	inputs := []bm25.FusionInput{{Ranks: vecRanks, Scores: vecScores, Weight: vectorWeight}}
	if textScores != nil {
		inputs = append(inputs, bm25.FusionInput{Ranks: textRanks, Scores: textScores, Weight: textWeight})
	}

	if c.residual != nil {
		candidateIDs, err := ex.backend.EvaluatePredicate(c.residual)
		if err != nil {
			return nil, err
		}
		allowed := idSetU64(candidateIDs)
		inputs = filterFusionInputs(inputs, allowed)
	}

	hits := bm25.Fuse(strategy, inputs)
	if len(hits) > k {
		hits = hits[:k]
	}
	rows := make([]Row, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, Row{ID: h.ID, Score: h.Score})
	}
	return rows, nil
}

func filterFusionInputs(inputs []bm25.FusionInput, allowed map[uint64]bool) []bm25.FusionInput {
	out := make([]bm25.FusionInput, len(inputs))
	for i, in := range inputs {
		filteredScores := make(map[uint64]float64)
		var filteredRanks []uint64
		for _, id := range in.Ranks {
			if allowed[id] {
				filteredRanks = append(filteredRanks, id)
			}
		}
		for id, s := range in.Scores {
			if allowed[id] {
				filteredScores[id] = s
			}
		}
		out[i] = bm25.FusionInput{Ranks: filteredRanks, Scores: filteredScores, Weight: in.Weight}
	}
	return out
}

func mustVector(expr velesql.Expr, params map[string]any) []float32 {
	v, err := resolveVector(expr, params)
	if err != nil {
		return nil
	}
	return v
}

func (ex *Executor) project(rows []Row, items []velesql.SelectItem) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		payload, _ := ex.backend.Payload(r.ID)
		fields := projectFields(r, payload, items)
		// Table-qualified fields attached by a JOIN (e.g. "edges.label")
		// always pass through regardless of the select list, since the
		// unqualified-ident projection logic above has no notion of which
		// joined table a bare select item might refer to.
		for k, v := range r.Fields {
			if strings.Contains(k, ".") {
				fields[k] = v
			}
		}
		out[i] = Row{ID: r.ID, Score: r.Score, Fields: fields}
	}
	return out
}

func projectFields(row Row, payload map[string]any, items []velesql.SelectItem) map[string]any {
	fields := make(map[string]any)
	fields["id"] = row.ID
	star := len(items) == 0
	for _, it := range items {
		if it.Star {
			star = true
			continue
		}
	}
	if star {
		for k, v := range payload {
			fields[k] = v
		}
		return fields
	}
	for _, it := range items {
		if it.Aggregate != "" {
			continue // filled in by aggregateRows
		}
		ident, ok := it.Expr.(*velesql.Ident)
		if !ok {
			continue
		}
		name := ident.Name
		if name == "id" {
			continue
		}
		if v, ok := payload[name]; ok {
			key := name
			if it.Alias != "" {
				key = it.Alias
			}
			fields[key] = v
		}
	}
	return fields
}

func applyOffsetLimit(rows []Row, offset, limit *int) []Row {
	if offset != nil {
		o := *offset
		if o >= len(rows) {
			return nil
		}
		if o > 0 {
			rows = rows[o:]
		}
	}
	if limit != nil && *limit < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}

func applyOrderBy(rows []Row, items []velesql.OrderItem) {
	// Only the first ORDER BY item is applied: a similarity(...) expression
	// sorts by the already-computed Score, anything else by its field or
	// aggregate value. Later items, including further similarity(...)
	// expressions, are not evaluated.
	if len(items) == 0 {
		return
	}
	first := items[0]
	desc := first.Descending
	if _, ok := first.Expr.(*velesql.SimilarityExpr); ok {
		sortRows(rows, desc)
		return
	}
	if agg, ok := first.Expr.(*velesql.AggregateExpr); ok {
		key := aggregateKey(agg)
		sortByField(rows, key, desc)
		return
	}
	if ident, ok := first.Expr.(*velesql.Ident); ok {
		sortByField(rows, ident.Name, desc)
	}
}

func sortByField(rows []Row, field string, desc bool) {
	less := func(i, j int) bool {
		vi := rows[i].Fields[field]
		vj := rows[j].Fields[field]
		c := compareAny(vi, vj)
		if desc {
			return c > 0
		}
		return c < 0
	}
	insertionSortRows(rows, less)
}

func insertionSortRows(rows []Row, less func(i, j int) bool) {
	for i := 1; i < len(rows); i++ {
		j := i
		for j > 0 && less(j, j-1) {
			rows[j], rows[j-1] = rows[j-1], rows[j]
			j--
		}
	}
}

func compareAny(a, b any) int {
	af, aok := toFloatAny(a)
	bf, bok := toFloatAny(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}

func toFloatAny(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// applyJoins executes each of stmt's JOIN clauses in turn as a nested-loop
// join against the table_ref it names, per the grammar's `{ join }` after
// FROM. Only existence and pushdown of predicates already classified by
// extractClauses are covered; join order is left-to-right as written, with
// no cost-based reordering (spec's non-goal on that).
func (ex *Executor) applyJoins(stmt *velesql.SelectStmt, rows []Row, params map[string]any) ([]Row, error) {
	for _, join := range stmt.Joins {
		rightRows, err := ex.backend.JoinRows(join.Table)
		if err != nil {
			return nil, err
		}
		rows, err = nestedLoopJoin(stmt.From, rows, join, rightRows, params, ex.backend)
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// nestedLoopJoin matches every left row against every right row, keeping
// pairs satisfying the join's ON expression or USING column equality
// (inner join semantics). The left row's own payload fields are looked up
// once per left row; the matched right row's fields are merged in under
// "<table>.<field>" keys so ON/SELECT/ORDER BY can disambiguate them from
// the primary table_ref's fields of the same name.
func nestedLoopJoin(leftTable string, left []Row, join *velesql.JoinClause, right []Row, params map[string]any, backend Backend) ([]Row, error) {
	out := make([]Row, 0, len(left))
	for _, l := range left {
		leftFields := map[string]any{"id": l.ID}
		if payload, ok := backend.Payload(l.ID); ok {
			for k, v := range payload {
				leftFields[k] = v
			}
		}
		for _, r := range right {
			matched, err := joinMatches(join, leftTable, leftFields, r.Fields, params)
			if err != nil {
				return nil, err
			}
			if !matched {
				continue
			}
			merged := Row{ID: l.ID, Score: l.Score, Fields: make(map[string]any, len(l.Fields)+len(r.Fields))}
			for k, v := range l.Fields {
				merged.Fields[k] = v
			}
			for k, v := range r.Fields {
				merged.Fields[join.Table+"."+k] = v
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

func joinMatches(join *velesql.JoinClause, leftTable string, left, right map[string]any, params map[string]any) (bool, error) {
	if join.On != nil {
		return evalJoinBool(join.On, leftTable, left, join.Table, right, params)
	}
	for _, col := range join.Using {
		lv, lok := left[col]
		rv, rok := right[col]
		if !lok || !rok {
			return false, nil
		}
		if !compareJoinValues("=", lv, rv) {
			return false, nil
		}
	}
	return true, nil
}

func evalJoinBool(expr velesql.Expr, leftTable string, left map[string]any, rightTable string, right map[string]any, params map[string]any) (bool, error) {
	switch n := expr.(type) {
	case *velesql.BinaryExpr:
		l, err := evalJoinBool(n.Left, leftTable, left, rightTable, right, params)
		if err != nil {
			return false, err
		}
		if n.Op == "AND" && !l {
			return false, nil
		}
		if n.Op == "OR" && l {
			return true, nil
		}
		r, err := evalJoinBool(n.Right, leftTable, left, rightTable, right, params)
		if err != nil {
			return false, err
		}
		if n.Op == "AND" {
			return l && r, nil
		}
		return l || r, nil
	case *velesql.NotExpr:
		v, err := evalJoinBool(n.Child, leftTable, left, rightTable, right, params)
		return !v, err
	case *velesql.ComparisonExpr:
		lv, err := resolveJoinOperand(n.Left, leftTable, left, rightTable, right, params)
		if err != nil {
			return false, err
		}
		rv, err := resolveJoinOperand(n.Right, leftTable, left, rightTable, right, params)
		if err != nil {
			return false, err
		}
		return compareJoinValues(n.Op, lv, rv), nil
	default:
		return false, verrors.New("planner.plan", verrors.KindValidation, "unsupported JOIN ON expression")
	}
}

func resolveJoinOperand(expr velesql.Expr, leftTable string, left map[string]any, rightTable string, right map[string]any, params map[string]any) (any, error) {
	switch n := expr.(type) {
	case *velesql.Ident:
		table, field := splitQualifiedIdent(n.Name)
		switch table {
		case "":
			if v, ok := right[field]; ok {
				return v, nil
			}
			return left[field], nil
		case leftTable:
			return left[field], nil
		case rightTable:
			return right[field], nil
		default:
			return nil, verrors.New("planner.plan", verrors.KindValidation, "unknown table qualifier %q in JOIN condition", table)
		}
	case *velesql.Literal:
		return n.Value, nil
	case *velesql.Param:
		v, ok := params[n.Name]
		if !ok {
			return nil, verrors.New("planner.plan", verrors.KindParameterMissing, "unbound parameter $%s", n.Name)
		}
		return v, nil
	default:
		return nil, verrors.New("planner.plan", verrors.KindValidation, "unsupported operand in JOIN condition")
	}
}

func splitQualifiedIdent(name string) (table, field string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func compareJoinValues(op string, a, b any) bool {
	if af, aok := toFloatAny(a); aok {
		if bf, bok := toFloatAny(b); bok {
			switch op {
			case "=":
				return af == bf
			case "!=":
				return af != bf
			case "<":
				return af < bf
			case "<=":
				return af <= bf
			case ">":
				return af > bf
			case ">=":
				return af >= bf
			}
			return false
		}
	}
	// Fall back to a string comparison for everything else (bools, nested
	// maps from an edge's Properties, etc.) rather than a bare == on an
	// `any`, which panics for uncomparable dynamic types like maps.
	as := fmt.Sprint(a)
	bs := fmt.Sprint(b)
	switch op {
	case "=":
		return as == bs
	case "!=":
		return as != bs
	default:
		return false
	}
}
