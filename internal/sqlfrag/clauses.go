package sqlfrag

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	selectRe = regexp.MustCompile(`(?is)^\s*SELECT\s+(DISTINCT\s+)?(.*?)\s+FROM\s+(.*)$`)
	whereSplitRe = regexp.MustCompile(`(?is)\s+WHERE\s+`)
	tailClauseRe = regexp.MustCompile(`(?is)\s+(GROUP\s+BY|ORDER\s+BY|HAVING|LIMIT|OFFSET)\s+.*$`)
	joinSplitRe  = regexp.MustCompile(`(?i)\s+((?:INNER|LEFT|RIGHT|FULL)?\s*(?:OUTER\s+)?JOIN|CROSS\s+JOIN|,)\s+`)
	onClauseRe   = regexp.MustCompile(`(?is)^(.*?)\s+ON\s+(.*)$`)
	aliasRe      = regexp.MustCompile(`(?i)^([a-zA-Z_][a-zA-Z0-9_.]*)\s*(?:AS\s+)?([a-zA-Z_][a-zA-Z0-9_]*)?$`)
	equalityRe   = regexp.MustCompile(`(?i)^\s*([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\s*$`)
	functionCallRe = regexp.MustCompile(`(?i)\b[a-zA-Z_][a-zA-Z0-9_]*\s*\(`)
	distanceFuncRe = regexp.MustCompile(`(?i)\bST_(DWithin|Distance|Intersects)\s*\(`)
	aliasColRe     = regexp.MustCompile(`(?i)\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
)

// splitStatement pulls apart the top-level SELECT ... FROM ... WHERE ...
// pieces of a single SELECT statement, discarding GROUP BY/ORDER
// BY/HAVING/LIMIT/OFFSET tails (§4.1: only the join graph and the WHERE
// conjuncts participate in fragmentation).
func splitStatement(sql string) (selectList string, distinct bool, fromWhere string, whereClause string, err error) {
	clean := normalizeWhitespace(stripComments(sql))
	clean = strings.TrimSuffix(clean, ";")

	m := selectRe.FindStringSubmatch(clean)
	if m == nil {
		return "", false, "", "", errNotASelect
	}

	selectList = strings.TrimSpace(m[2])
	distinct = m[1] != ""
	rest := m[3]

	rest = tailClauseRe.ReplaceAllString(rest, "")

	loc := whereSplitRe.FindStringIndex(rest)
	if loc == nil {
		return selectList, distinct, strings.TrimSpace(rest), "", nil
	}

	return selectList, distinct, strings.TrimSpace(rest[:loc[0]]), strings.TrimSpace(rest[loc[1]:]), nil
}

// parseFrom parses a FROM clause (comma-joins and/or explicit JOIN...ON
// forms) into table references and any ON-clause join conditions. Both
// styles normalize to the same alias set and join-condition list, so
// fragment hashing is insensitive to whether the input used comma-join or
// ANSI JOIN syntax (§8 property P1).
func parseFrom(from string) ([]TableRef, []JoinCondition, error) {
	segments := joinSplitRe.Split(from, -1)

	var (
		tables []TableRef
		joins  []JoinCondition
	)

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		tableExpr := seg

		if m := onClauseRe.FindStringSubmatch(seg); m != nil {
			tableExpr = strings.TrimSpace(m[1])

			for _, cond := range splitTopLevel(m[2], "AND") {
				if jc, ok := parseEquality(cond); ok {
					joins = append(joins, jc)
				}
			}
		}

		ref, ok := parseTableExpr(tableExpr)
		if !ok {
			return nil, nil, errUnparsableFromItem(tableExpr)
		}

		tables = append(tables, ref)
	}

	return tables, joins, nil
}

func parseTableExpr(expr string) (TableRef, bool) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "(") {
		return TableRef{}, false
	}

	m := aliasRe.FindStringSubmatch(expr)
	if m == nil {
		return TableRef{}, false
	}

	table := m[1]
	alias := m[2]

	if alias == "" {
		if idx := strings.LastIndexByte(table, '.'); idx >= 0 {
			alias = table[idx+1:]
		} else {
			alias = table
		}
	}

	return TableRef{Table: table, Alias: alias}, true
}

func parseEquality(cond string) (JoinCondition, bool) {
	m := equalityRe.FindStringSubmatch(cond)
	if m == nil {
		return JoinCondition{}, false
	}

	return JoinCondition{
		LeftAlias:  m[1],
		LeftCol:    m[2],
		RightAlias: m[3],
		RightCol:   m[4],
		Raw:        strings.TrimSpace(cond),
	}, true
}

// isDistanceFunction reports whether the conjunct invokes one of the
// spatial distance/intersection functions (§4.1 "is_distance_function").
func isDistanceFunction(cond string) bool {
	return distanceFuncRe.MatchString(cond)
}

// aliasesIn returns the set of table aliases referenced via alias.column
// in cond.
func aliasesIn(cond string) []string {
	matches := aliasColRe.FindAllStringSubmatch(cond, -1)

	seen := make(map[string]bool)

	var out []string

	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true

			out = append(out, m[1])
		}
	}

	return out
}

var numberLiteralRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

// bucketDistance floors the last numeric literal in a distance conjunct to
// the nearest multiple of step, per §4.1 "distance conditions are
// bucketized to widen fragment reuse across nearby radii".
func bucketDistance(cond string, step float64) (string, float64, bool) {
	if step <= 0 {
		return cond, 0, false
	}

	locs := numberLiteralRe.FindAllStringIndex(cond, -1)
	if len(locs) == 0 {
		return cond, 0, false
	}

	last := locs[len(locs)-1]

	val, err := strconv.ParseFloat(cond[last[0]:last[1]], 64)
	if err != nil {
		return cond, 0, false
	}

	bucketed := float64(int(val/step)) * step
	if val < 0 {
		bucketed -= step
	}

	replaced := cond[:last[0]] + strconv.FormatFloat(bucketed, 'f', -1, 64) + cond[last[1]:]

	return replaced, bucketed, true
}
