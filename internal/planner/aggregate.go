package planner

import (
	"golang.org/x/sync/errgroup"

	"github.com/velesdb/velesdb/internal/velesql"
	"github.com/velesdb/velesdb/internal/verrors"
)

// aggregateBatchSize is the row-batch size for streaming aggregation,
// grounded on the teacher's (liliang-cn/sqvect) pkg/core/streaming.go
// StreamingOptions.BatchSize default.
const aggregateBatchSize = 1024

// parallelAggregateThreshold is the row count above which GROUP BY
// partitions its input across goroutines before merging, per spec §4.9.
const parallelAggregateThreshold = 10000

type accumulator struct {
	count int
	sum   float64
	min   float64
	max   float64
	init  bool
}

func (a *accumulator) observe(v float64, hasValue bool) {
	a.count++
	if !hasValue {
		return
	}
	a.sum += v
	if !a.init {
		a.min, a.max, a.init = v, v, true
		return
	}
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
}

func (a *accumulator) merge(b *accumulator) {
	a.count += b.count
	a.sum += b.sum
	if !b.init {
		return
	}
	if !a.init {
		a.min, a.max, a.init = b.min, b.max, true
		return
	}
	if b.min < a.min {
		a.min = b.min
	}
	if b.max > a.max {
		a.max = b.max
	}
}

func (a *accumulator) value(name string) float64 {
	switch name {
	case "COUNT":
		return float64(a.count)
	case "SUM":
		return a.sum
	case "AVG":
		if a.count == 0 {
			return 0
		}
		return a.sum / float64(a.count)
	case "MIN":
		return a.min
	case "MAX":
		return a.max
	default:
		return 0
	}
}

// groupKey is a stable string key for GROUP BY tuples, built by joining
// the group-by field values with an unlikely-to-collide separator.
func groupKey(row Row, groupBy []string) string {
	key := ""
	for i, field := range groupBy {
		if i > 0 {
			key += "\x1f"
		}
		key += toGroupString(row.Fields[field])
	}
	return key
}

func toGroupString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case nil:
		return "\x00null"
	default:
		f, ok := toFloatAny(n)
		if ok {
			return formatFloat(f)
		}
		return ""
	}
}

func formatFloat(f float64) string {
	// Avoids pulling in strconv's full formatting surface for a value only
	// ever used as a map key, never displayed.
	i := int64(f)
	if float64(i) == f {
		return itoa(i)
	}
	buf := make([]byte, 0, 24)
	neg := f < 0
	if neg {
		f = -f
	}
	whole := int64(f)
	frac := int64((f - float64(whole)) * 1e6)
	buf = append(buf, itoa(whole)...)
	buf = append(buf, '.')
	buf = append(buf, itoa(frac)...)
	if neg {
		return "-" + string(buf)
	}
	return string(buf)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}

// aggregateRows groups rows per stmt.GroupBy, computes every aggregate
// referenced in the SELECT/HAVING/ORDER BY clauses, applies HAVING, and
// returns one Row per group (or a single Row for a bare aggregate with no
// GROUP BY). Inputs of at most parallelAggregateThreshold rows are
// accumulated in one sequential pass; larger inputs are split into
// aggregateBatchSize-row partitions accumulated in parallel via errgroup and
// then merged, per spec §4.9's streaming/parallel aggregation requirement.
func aggregateRows(rows []Row, stmt *velesql.SelectStmt) ([]Row, error) {
	aggNames := collectAggregateNames(stmt)

	groups, order, err := partitionAndAccumulate(rows, stmt.GroupBy, aggNames)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		fields := make(map[string]any)
		for i, field := range stmt.GroupBy {
			fields[field] = g.keyValues[i]
		}
		for _, name := range aggNames {
			fields[name] = g.acc[name].value(aggName(name))
		}
		row := Row{Fields: fields}
		out = append(out, row)
	}

	if stmt.Having != nil {
		filtered := out[:0]
		for _, r := range out {
			ok, err := evalHaving(stmt.Having, r)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, r)
			}
		}
		out = filtered
	}
	return out, nil
}

type groupState struct {
	keyValues []any
	acc       map[string]*accumulator
}

func partitionAndAccumulate(rows []Row, groupBy []string, aggNames []string) (map[string]*groupState, []string, error) {
	if len(rows) <= parallelAggregateThreshold {
		groups, order := accumulateBatch(rows, groupBy, aggNames, map[string]*groupState{}, nil)
		return groups, order, nil
	}

	numPartitions := (len(rows) + aggregateBatchSize - 1) / aggregateBatchSize
	partials := make([]map[string]*groupState, numPartitions)
	var eg errgroup.Group
	for p := 0; p < numPartitions; p++ {
		p := p
		start := p * aggregateBatchSize
		end := start + aggregateBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		eg.Go(func() error {
			batch := rows[start:end]
			g, _ := accumulateBatch(batch, groupBy, aggNames, map[string]*groupState{}, nil)
			partials[p] = g
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, verrors.Wrap("planner.aggregate", verrors.KindIO, err)
	}

	merged := map[string]*groupState{}
	var order []string
	for _, partial := range partials {
		for key, g := range partial {
			existing, ok := merged[key]
			if !ok {
				merged[key] = g
				order = append(order, key)
				continue
			}
			for name, acc := range g.acc {
				existing.acc[name].merge(acc)
			}
		}
	}
	return merged, order, nil
}

func accumulateBatch(rows []Row, groupBy []string, aggNames []string, groups map[string]*groupState, order []string) (map[string]*groupState, []string) {
	for _, row := range rows {
		key := groupKey(row, groupBy)
		g, ok := groups[key]
		if !ok {
			keyValues := make([]any, len(groupBy))
			for i, field := range groupBy {
				keyValues[i] = row.Fields[field]
			}
			g = &groupState{keyValues: keyValues, acc: map[string]*accumulator{}}
			for _, name := range aggNames {
				g.acc[name] = &accumulator{}
			}
			groups[key] = g
			order = append(order, key)
		}
		for _, name := range aggNames {
			arg := aggArgField(name)
			v, hasValue := row.Fields[arg]
			f, numeric := toFloatAny(v)
			g.acc[name].observe(f, hasValue && numeric || arg == "*")
		}
	}
	return groups, order
}

// aggNames are synthesized as "NAME(arg)" so COUNT(*) and COUNT(field) (or
// two different SUM columns) don't collide as accumulator keys.
func collectAggregateNames(stmt *velesql.SelectStmt) []string {
	seen := map[string]bool{}
	var names []string
	add := func(a *velesql.AggregateExpr) {
		key := aggregateKey(a)
		if !seen[key] {
			seen[key] = true
			names = append(names, key)
		}
	}
	for _, item := range stmt.Select {
		if item.Aggregate != "" {
			arg := "*"
			if ident, ok := item.Expr.(*velesql.Ident); ok {
				arg = ident.Name
			}
			add(&velesql.AggregateExpr{Name: item.Aggregate, Arg: &velesql.Ident{Name: arg}})
		}
	}
	collectFromExpr(stmt.Having, add)
	for _, o := range stmt.OrderBy {
		collectFromExpr(o.Expr, add)
	}
	return names
}

func collectFromExpr(e velesql.Expr, add func(*velesql.AggregateExpr)) {
	switch n := e.(type) {
	case nil:
		return
	case *velesql.AggregateExpr:
		add(n)
	case *velesql.ComparisonExpr:
		collectFromExpr(n.Left, add)
		collectFromExpr(n.Right, add)
	case *velesql.BinaryExpr:
		collectFromExpr(n.Left, add)
		collectFromExpr(n.Right, add)
	case *velesql.NotExpr:
		collectFromExpr(n.Child, add)
	}
}

func aggregateKey(a *velesql.AggregateExpr) string {
	arg := "*"
	if a.Arg != nil {
		if ident, ok := a.Arg.(*velesql.Ident); ok {
			arg = ident.Name
		}
	}
	return a.Name + "(" + arg + ")"
}

func aggName(key string) string {
	for i, c := range key {
		if c == '(' {
			return key[:i]
		}
	}
	return key
}

func aggArgField(key string) string {
	start, end := -1, -1
	for i, c := range key {
		if c == '(' {
			start = i + 1
		}
		if c == ')' {
			end = i
		}
	}
	if start < 0 || end < 0 {
		return "*"
	}
	return key[start:end]
}

func evalHaving(expr velesql.Expr, row Row) (bool, error) {
	switch n := expr.(type) {
	case *velesql.BinaryExpr:
		left, err := evalHaving(n.Left, row)
		if err != nil {
			return false, err
		}
		right, err := evalHaving(n.Right, row)
		if err != nil {
			return false, err
		}
		if n.Op == "AND" {
			return left && right, nil
		}
		return left || right, nil
	case *velesql.NotExpr:
		v, err := evalHaving(n.Child, row)
		return !v, err
	case *velesql.ComparisonExpr:
		lf, err := havingOperand(n.Left, row)
		if err != nil {
			return false, err
		}
		rf, err := havingOperand(n.Right, row)
		if err != nil {
			return false, err
		}
		return compareThreshold(n.Op, lf, rf), nil
	default:
		return false, verrors.New("planner.having", verrors.KindValidation, "unsupported HAVING expression")
	}
}

func havingOperand(e velesql.Expr, row Row) (float64, error) {
	switch n := e.(type) {
	case *velesql.AggregateExpr:
		v, ok := row.Fields[aggregateKey(n)]
		if !ok {
			return 0, verrors.New("planner.having", verrors.KindValidation, "HAVING references an aggregate not present in the select list")
		}
		f, _ := toFloatAny(v)
		return f, nil
	case *velesql.Literal:
		f, _ := toFloatAny(n.Value)
		return f, nil
	default:
		return 0, verrors.New("planner.having", verrors.KindValidation, "unsupported HAVING operand")
	}
}
