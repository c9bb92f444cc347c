package velesql

import (
	"strconv"
	"strings"

	"github.com/velesdb/velesdb/internal/verrors"
)

// Parser turns VelesQL source into a Query AST.
type Parser struct {
	lex  *lexer
	cur  token
	peek token
}

// Parse parses src into a Query.
func Parse(src string) (*Query, error) {
	p := &Parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseQuery()
}

func (p *Parser) advance() error {
	p.cur = p.peek
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) kwIs(kw string) bool {
	return p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, kw)
}

func (p *Parser) punctIs(s string) bool {
	return p.cur.kind == tokPunct && p.cur.text == s
}

func (p *Parser) expectKw(kw string) error {
	if !p.kwIs(kw) {
		return verrors.New("velesql.parse", verrors.KindValidation, "expected keyword %q, got %q", kw, p.cur.text)
	}
	return p.advance()
}

func (p *Parser) expectPunct(s string) error {
	if !p.punctIs(s) {
		return verrors.New("velesql.parse", verrors.KindValidation, "expected %q, got %q", s, p.cur.text)
	}
	return p.advance()
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}
	stmt, err := p.parseSelectStmt()
	if err != nil {
		return nil, err
	}
	q.Statements = append(q.Statements, stmt)

	for {
		op, ok, err := p.trySetOp()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		next, err := p.parseSelectStmt()
		if err != nil {
			return nil, err
		}
		q.SetOps = append(q.SetOps, op)
		q.Statements = append(q.Statements, next)
	}
	return q, nil
}

func (p *Parser) trySetOp() (SetOp, bool, error) {
	switch {
	case p.kwIs("UNION"):
		if err := p.advance(); err != nil {
			return 0, false, err
		}
		if p.kwIs("ALL") {
			if err := p.advance(); err != nil {
				return 0, false, err
			}
			return SetOpUnionAll, true, nil
		}
		return SetOpUnion, true, nil
	case p.kwIs("INTERSECT"):
		if err := p.advance(); err != nil {
			return 0, false, err
		}
		return SetOpIntersect, true, nil
	case p.kwIs("EXCEPT"):
		if err := p.advance(); err != nil {
			return 0, false, err
		}
		return SetOpExcept, true, nil
	default:
		return 0, false, nil
	}
}

func (p *Parser) parseSelectStmt() (*SelectStmt, error) {
	if err := p.expectKw("SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStmt{}
	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Select = items

	if err := p.expectKw("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	stmt.From = from

	for p.kwIs("JOIN") {
		join, err := p.parseJoinClause()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, join)
	}

	if p.kwIs("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}

	if p.kwIs("GROUP") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = cols
	}

	if p.kwIs("HAVING") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = expr
	}

	if p.kwIs("ORDER") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		items, err := p.parseOrderItems()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = items
	}

	if p.kwIs("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}

	if p.kwIs("OFFSET") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Offset = &n
	}

	if p.kwIs("WITH") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		opts, err := p.parseWithOptions()
		if err != nil {
			return nil, err
		}
		stmt.With = opts
	}

	if p.kwIs("USING") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("FUSION"); err != nil {
			return nil, err
		}
		fusion, err := p.parseFusion()
		if err != nil {
			return nil, err
		}
		stmt.Fusion = fusion
	}

	return stmt, nil
}

// parseJoinClause parses `JOIN table_ref ON expr` or
// `JOIN table_ref USING (col, ...)`, per the grammar's `{ join }` after
// table_ref. Only an equi/predicate nested-loop join is planned downstream
// (no cost-based join optimizer, per spec's non-goal) — the grammar itself
// draws no such distinction.
func (p *Parser) parseJoinClause() (*JoinClause, error) {
	if err := p.expectKw("JOIN"); err != nil {
		return nil, err
	}
	table, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	jc := &JoinClause{Table: table}
	switch {
	case p.kwIs("ON"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		jc.On = expr
	case p.kwIs("USING"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		jc.Using = cols
	default:
		return nil, verrors.New("velesql.parse", verrors.KindValidation, "JOIN requires ON or USING, got %q", p.cur.text)
	}
	return jc, nil
}

func (p *Parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.punctIs(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return items, nil
}

var aggregateNames = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

// tryParseAggregateCall parses `NAME(arg)` when cur names a known aggregate
// function, consuming tokens on success.
func (p *Parser) tryParseAggregateCall() (*AggregateExpr, bool, error) {
	if p.cur.kind != tokIdent || !aggregateNames[strings.ToUpper(p.cur.text)] {
		return nil, false, nil
	}
	agg := strings.ToUpper(p.cur.text)
	if err := p.advance(); err != nil {
		return nil, false, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, false, err
	}
	var arg Expr
	if p.punctIs("*") {
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		arg = &Ident{Name: "*"}
	} else {
		name, err := p.parseIdentName()
		if err != nil {
			return nil, false, err
		}
		arg = &Ident{Name: name}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, false, err
	}
	return &AggregateExpr{Name: agg, Arg: arg}, true, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.punctIs("*") {
		if err := p.advance(); err != nil {
			return SelectItem{}, err
		}
		return SelectItem{Star: true}, nil
	}
	if agg, ok, err := p.tryParseAggregateCall(); err != nil {
		return SelectItem{}, err
	} else if ok {
		item := SelectItem{Aggregate: agg.Name, Expr: agg.Arg}
		alias, err := p.tryParseAlias()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias
		return item, nil
	}

	expr, err := p.parsePrimaryExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: expr}
	alias, err := p.tryParseAlias()
	if err != nil {
		return SelectItem{}, err
	}
	item.Alias = alias
	return item, nil
}

func (p *Parser) tryParseAlias() (string, error) {
	if p.kwIs("AS") {
		if err := p.advance(); err != nil {
			return "", err
		}
		name, err := p.parseIdentName()
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", nil
}

func (p *Parser) parseIdentList() ([]string, error) {
	var names []string
	for {
		name, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.punctIs(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return names, nil
}

// reservedWords may not be used as a bare (unquoted) identifier; a field or
// alias sharing a keyword's spelling must be quoted with backticks or
// double quotes, per spec §4.9.
var reservedWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "NEAR": true, "IN": true, "BETWEEN": true, "LIKE": true,
	"ILIKE": true, "MATCH": true, "IS": true, "NULL": true, "GROUP": true,
	"BY": true, "HAVING": true, "ORDER": true, "LIMIT": true, "OFFSET": true,
	"WITH": true, "USING": true, "FUSION": true, "UNION": true, "ALL": true,
	"INTERSECT": true, "EXCEPT": true, "AS": true, "ASC": true, "DESC": true,
	"TRUE": true, "FALSE": true, "SIMILARITY": true, "JOIN": true, "ON": true,
}

// parseIdentName parses a possibly table-qualified identifier, e.g. the
// `edges.label` form a JOIN's ON clause uses to disambiguate a field
// between table_refs.
func (p *Parser) parseIdentName() (string, error) {
	name, err := p.parseIdentNamePart()
	if err != nil {
		return "", err
	}
	for p.punctIs(".") {
		if err := p.advance(); err != nil {
			return "", err
		}
		part, err := p.parseIdentNamePart()
		if err != nil {
			return "", err
		}
		name = name + "." + part
	}
	return name, nil
}

func (p *Parser) parseIdentNamePart() (string, error) {
	switch p.cur.kind {
	case tokQuotedIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return "", err
		}
		return name, nil
	case tokIdent:
		if reservedWords[strings.ToUpper(p.cur.text)] {
			return "", verrors.New("velesql.parse", verrors.KindValidation, "%q is a reserved keyword; quote it with backticks or double quotes to use as an identifier", p.cur.text)
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return "", err
		}
		return name, nil
	default:
		return "", verrors.New("velesql.parse", verrors.KindValidation, "expected identifier, got %q", p.cur.text)
	}
}

func (p *Parser) parseIntLiteral() (int, error) {
	if p.cur.kind != tokNumber {
		return 0, verrors.New("velesql.parse", verrors.KindValidation, "expected integer, got %q", p.cur.text)
	}
	n, err := strconv.Atoi(p.cur.text)
	if err != nil {
		return 0, verrors.New("velesql.parse", verrors.KindValidation, "invalid integer %q", p.cur.text)
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Parser) parseOrderItems() ([]OrderItem, error) {
	var items []OrderItem
	for {
		expr, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: expr}
		if p.kwIs("DESC") {
			item.Descending = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if p.kwIs("ASC") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
		if p.punctIs(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseWithOptions() (map[string]any, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	opts := make(map[string]any)
	for !p.punctIs(")") {
		name, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseOptionValue()
		if err != nil {
			return nil, err
		}
		opts[name] = val
		if p.punctIs(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return opts, nil
}

func (p *Parser) parseOptionValue() (any, error) {
	switch p.cur.kind {
	case tokNumber:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if strings.Contains(text, ".") {
			f, _ := strconv.ParseFloat(text, 64)
			return f, nil
		}
		n, _ := strconv.Atoi(text)
		return n, nil
	case tokString:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return text, nil
	case tokIdent:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch strings.ToLower(text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return text, nil
		}
	default:
		return nil, verrors.New("velesql.parse", verrors.KindValidation, "invalid option value %q", p.cur.text)
	}
}

func (p *Parser) parseFusion() (*Fusion, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	name, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	f := &Fusion{Strategy: strings.ToLower(name), Params: make(map[string]float64)}
	for p.punctIs(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		key, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		if p.cur.kind != tokNumber {
			return nil, verrors.New("velesql.parse", verrors.KindValidation, "expected number for fusion param %q", key)
		}
		v, _ := strconv.ParseFloat(p.cur.text, 64)
		if err := p.advance(); err != nil {
			return nil, err
		}
		f.Params[key] = v
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return f, nil
}

// parseExpr parses `or_expr` from the grammar.
func (p *Parser) parseExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.kwIs("OR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndExpr() (Expr, error) {
	left, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	for p.kwIs("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseCond()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseCond() (Expr, error) {
	if p.punctIs("(") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	if p.kwIs("NOT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		child, err := p.parseCond()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Child: child}, nil
	}

	// similarity(ident, vec) cmp number
	if p.kwIs("similarity") || p.kwIs("SIMILARITY") {
		return p.parseSimilarityPredicate()
	}

	// aggregate(...) cmp number, for HAVING clauses
	if p.cur.kind == tokIdent && aggregateNames[strings.ToUpper(p.cur.text)] {
		agg, _, err := p.tryParseAggregateCall()
		if err != nil {
			return nil, err
		}
		if p.punctIs("=") || p.punctIs("!=") || p.punctIs("<") || p.punctIs("<=") || p.punctIs(">") || p.punctIs(">=") {
			op := p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parsePrimaryExpr()
			if err != nil {
				return nil, err
			}
			return &ComparisonExpr{Op: op, Left: agg, Right: right}, nil
		}
		return agg, nil
	}

	// field NEAR vec_expr | field op value | field IN (...) | field BETWEEN lo AND hi
	// | field [I]LIKE pattern | field MATCH query | field IS [NOT] NULL
	if p.cur.kind == tokIdent || p.cur.kind == tokQuotedIdent {
		field, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		switch {
		case p.kwIs("NEAR"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			vec, err := p.parseVecExpr()
			if err != nil {
				return nil, err
			}
			return &NearExpr{Field: field, Vec: vec}, nil
		case p.kwIs("IN"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			values, err := p.parseValueList()
			if err != nil {
				return nil, err
			}
			return &InExpr{Field: field, Values: values}, nil
		case p.kwIs("BETWEEN"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			lo, err := p.parsePrimaryExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectKw("AND"); err != nil {
				return nil, err
			}
			hi, err := p.parsePrimaryExpr()
			if err != nil {
				return nil, err
			}
			return &BetweenExpr{Field: field, Lo: lo, Hi: hi}, nil
		case p.kwIs("LIKE"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			pat, err := p.parsePrimaryExpr()
			if err != nil {
				return nil, err
			}
			return &LikeExpr{Field: field, Pattern: pat}, nil
		case p.kwIs("ILIKE"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			pat, err := p.parsePrimaryExpr()
			if err != nil {
				return nil, err
			}
			return &LikeExpr{Field: field, Pattern: pat, CaseInsensitive: true}, nil
		case p.kwIs("MATCH"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			q, err := p.parsePrimaryExpr()
			if err != nil {
				return nil, err
			}
			return &MatchExpr{Field: field, Query: q}, nil
		case p.kwIs("IS"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			negate := false
			if p.kwIs("NOT") {
				negate = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if err := p.expectKw("NULL"); err != nil {
				return nil, err
			}
			return &IsNullExpr{Field: field, Negate: negate}, nil
		case p.punctIs("=") || p.punctIs("!=") || p.punctIs("<") || p.punctIs("<=") || p.punctIs(">") || p.punctIs(">="):
			op := p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parsePrimaryExpr()
			if err != nil {
				return nil, err
			}
			return &ComparisonExpr{Op: op, Left: &Ident{Name: field}, Right: right}, nil
		default:
			return nil, verrors.New("velesql.parse", verrors.KindValidation, "unexpected token %q after identifier %q", p.cur.text, field)
		}
	}

	return nil, verrors.New("velesql.parse", verrors.KindValidation, "unexpected token %q in expression", p.cur.text)
}

func (p *Parser) parseSimilarityPredicate() (Expr, error) {
	if err := p.advance(); err != nil { // consume "similarity"
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	field, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	vec, err := p.parseVecExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	sim := &SimilarityExpr{Field: field, Vec: vec}
	if p.punctIs("=") || p.punctIs("!=") || p.punctIs("<") || p.punctIs("<=") || p.punctIs(">") || p.punctIs(">=") {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		return &ComparisonExpr{Op: op, Left: sim, Right: right}, nil
	}
	return sim, nil
}

func (p *Parser) parseVecExpr() (Expr, error) {
	if p.cur.kind == tokParam {
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Param{Name: name}, nil
	}
	if p.punctIs("[") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var values []float64
		for !p.punctIs("]") {
			if p.cur.kind != tokNumber {
				return nil, verrors.New("velesql.parse", verrors.KindValidation, "expected number in vector literal, got %q", p.cur.text)
			}
			f, _ := strconv.ParseFloat(p.cur.text, 64)
			values = append(values, f)
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.punctIs(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return &VectorLiteral{Values: values}, nil
	}
	return nil, verrors.New("velesql.parse", verrors.KindValidation, "expected vector expression, got %q", p.cur.text)
}

func (p *Parser) parseValueList() ([]Expr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var values []Expr
	for !p.punctIs(")") {
		v, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.punctIs(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return values, nil
}

// parsePrimaryExpr parses a literal, parameter, or identifier (used on the
// right-hand side of comparisons, in SELECT items, and ORDER BY).
func (p *Parser) parsePrimaryExpr() (Expr, error) {
	if p.cur.kind == tokIdent && aggregateNames[strings.ToUpper(p.cur.text)] {
		agg, _, err := p.tryParseAggregateCall()
		if err != nil {
			return nil, err
		}
		return agg, nil
	}
	switch p.cur.kind {
	case tokNumber:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if strings.Contains(text, ".") {
			f, _ := strconv.ParseFloat(text, 64)
			return &Literal{Value: f}, nil
		}
		n, _ := strconv.ParseInt(text, 10, 64)
		return &Literal{Value: n}, nil
	case tokString:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: text}, nil
	case tokParam:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Param{Name: name}, nil
	case tokIdent:
		if strings.EqualFold(p.cur.text, "similarity") {
			return p.parseSimilarityPredicate()
		}
		if strings.EqualFold(p.cur.text, "true") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &Literal{Value: true}, nil
		}
		if strings.EqualFold(p.cur.text, "false") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &Literal{Value: false}, nil
		}
		if strings.EqualFold(p.cur.text, "null") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &Literal{Value: nil}, nil
		}
		name, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		return &Ident{Name: name}, nil
	case tokQuotedIdent:
		name, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		return &Ident{Name: name}, nil
	case tokPunct:
		if p.cur.text == "[" {
			return p.parseVecExpr()
		}
		return nil, verrors.New("velesql.parse", verrors.KindValidation, "unexpected punctuation %q", p.cur.text)
	default:
		return nil, verrors.New("velesql.parse", verrors.KindValidation, "unexpected token %q", p.cur.text)
	}
}
