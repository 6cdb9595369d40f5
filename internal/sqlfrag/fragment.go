package sqlfrag

import (
	"fmt"
	"sort"
	"strings"
)

// buildFragment materializes the canonical SQL and hash for one connected
// alias subset, following §4.1 steps 5-7: remap aliases to a canonical
// t1..tn numbering (with the partition-key table always remapped to p1) so
// that semantically identical fragments hash identically regardless of the
// aliases or table order used in the original query (§8 property P1).
func buildFragment(a *analysis, aliasSet map[string]bool, activePartitionConds map[string]bool, opts Options) (Fragment, bool) {
	members := sortedMembers(aliasSet)

	remap := canonicalRemap(members, a.partitionAlias)

	var tableLines []string

	tables := make([]string, 0, len(members))

	for _, alias := range members {
		ref, ok := findTable(a.tables, alias)
		if !ok {
			return Fragment{}, false
		}

		tableLines = append(tableLines, fmt.Sprintf("%s AS %s", ref.Table, remap[alias]))
		tables = append(tables, ref.Table)
	}

	var conds []string

	for _, jc := range a.joinConditions {
		if aliasSet[jc.LeftAlias] && aliasSet[jc.RightAlias] {
			conds = append(conds, renderEquality(jc, remap))
		}
	}

	partitionIncluded := a.partitionAlias != "" && aliasSet[a.partitionAlias]
	if partitionIncluded {
		for _, jc := range a.partitionJoins {
			if aliasSet[jc.LeftAlias] && aliasSet[jc.RightAlias] {
				conds = append(conds, renderEquality(jc, remap))
			}
		}

		for _, c := range a.partitionKeyConds {
			if !activePartitionConds[c] {
				continue
			}

			if allAliasesIn(c, aliasSet) {
				conds = append(conds, remapCond(c, remap))
			}
		}
	}

	for _, ac := range a.attributeConds {
		if aliasSet[ac.Alias] {
			conds = append(conds, remapCond(ac.Raw, remap))
		}
	}

	for _, dc := range a.distanceConds {
		if allAliasesInList(dc, aliasSet) {
			conds = append(conds, remapCond(dc.Raw, remap))
		}
	}

	for _, c := range a.otherFunctions {
		if allAliasesIn(c, aliasSet) {
			conds = append(conds, remapCond(c, remap))
		}
	}

	for _, c := range a.orConditions {
		if allAliasesIn(c, aliasSet) {
			conds = append(conds, remapCond(c, remap))
		}
	}

	sort.Strings(conds)
	sort.Strings(tableLines)

	selectClause := buildSelectClause(a, remap, partitionIncluded, opts)

	sql := "SELECT " + selectClause + " FROM " + strings.Join(tableLines, ", ")
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}

	return Fragment{
		SQL:          sql,
		PartitionKey: opts.PartitionKey,
		Tables:       tables,
		Hash:         hashFragment(sql, opts.PartitionKey),
	}, true
}

func buildSelectClause(a *analysis, remap map[string]string, partitionIncluded bool, opts Options) string {
	if !opts.StripSelect && !partitionIncluded {
		return "1"
	}

	if partitionIncluded && opts.PartitionKey != "" {
		col := fmt.Sprintf("%s.%s", remap[a.partitionAlias], opts.PartitionKey)
		if opts.GeometryColumn != "" {
			return fmt.Sprintf("DISTINCT %s, %s.%s", col, remap[a.partitionAlias], opts.GeometryColumn)
		}

		return "DISTINCT " + col
	}

	return "1"
}

func findTable(tables []TableRef, alias string) (TableRef, bool) {
	for _, t := range tables {
		if t.Alias == alias {
			return t, true
		}
	}

	return TableRef{}, false
}

func sortedMembers(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// canonicalRemap assigns canonical names: the partition-key alias always
// becomes p1, every other alias becomes t1, t2, ... in sorted original-name
// order.
func canonicalRemap(members []string, partitionAlias string) map[string]string {
	remap := make(map[string]string, len(members))

	n := 1

	for _, m := range members {
		if m == partitionAlias {
			remap[m] = "p1"
			continue
		}

		remap[m] = fmt.Sprintf("t%d", n)
		n++
	}

	return remap
}

func renderEquality(jc JoinCondition, remap map[string]string) string {
	return fmt.Sprintf("%s.%s = %s.%s", remap[jc.LeftAlias], jc.LeftCol, remap[jc.RightAlias], jc.RightCol)
}

func remapCond(cond string, remap map[string]string) string {
	return aliasColRe.ReplaceAllStringFunc(cond, func(m string) string {
		sub := aliasColRe.FindStringSubmatch(m)

		newAlias, ok := remap[sub[1]]
		if !ok {
			return m
		}

		return newAlias + "." + sub[2]
	})
}

func allAliasesIn(cond string, set map[string]bool) bool {
	for _, alias := range aliasesIn(cond) {
		if !set[alias] {
			return false
		}
	}

	return true
}

func allAliasesInList(dc DistanceCondition, set map[string]bool) bool {
	if dc.LeftAlias != "" && !set[dc.LeftAlias] {
		return false
	}

	if dc.RightAlias != "" && !set[dc.RightAlias] {
		return false
	}

	return true
}
