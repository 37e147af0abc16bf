package pipeline

import (
	"fmt"
	"strings"

	"go-election-merge/internal/model"
)

// Explain describes, as SQL, what a topology computes for the given rounds and
// category lists. It does not execute anything.
func Explain(topology, round1, round2 string, cats1, cats2 []string) (string, error) {
	categories := CategoryUnion(cats1, cats2)
	var b strings.Builder

	switch topology {
	case model.TopologySeparate:
		b.WriteString("-- Separate-then-Join: each round is transformed on its own, then joined.\n")
		fmt.Fprintf(&b, "WITH r1 AS (\n%s\n),\n", roundSelect("round_"+round1, cats1))
		fmt.Fprintf(&b, "r2 AS (\n%s\n)\n", roundSelect("round_"+round2, cats2))
		b.WriteString(finalSelect(round1, round2, categories, cats1, cats2))
		b.WriteString("FROM r1\nJOIN r2 ON r1.key = r2.key;\n")

	case model.TopologyUnion:
		b.WriteString("-- Union-then-Pivot: both rounds are tagged and stacked, computed once, then pivoted.\n")
		fmt.Fprintf(&b, "WITH stacked AS (\n  SELECT '%s' AS round, * FROM round_%s\n  UNION ALL\n  SELECT '%s' AS round, * FROM round_%s\n),\n",
			round1, round1, round2, round2)
		b.WriteString("computed AS (\n  SELECT round, key, region_code, region_name, district_name,\n")
		b.WriteString("    ROUND(CAST(ballots AS REAL) / NULLIF(electorate, 0), 4) AS turnout")
		for _, c := range categories {
			fmt.Fprintf(&b, ",\n    ROUND(CAST(COALESCE(%s, 0) AS REAL) / NULLIF(valid_votes, 0), 4) AS %s", quoteIdent(c), quoteIdent(c))
		}
		b.WriteString("\n  FROM stacked\n)\n")
		b.WriteString("SELECT key, MAX(region_code) AS region_code, MAX(region_name) AS region_name, MAX(district_name) AS district_name")
		for _, round := range []string{round1, round2} {
			fmt.Fprintf(&b, ",\n  MAX(CASE WHEN round = '%s' THEN COALESCE(turnout, 0) END) AS %s", round, quoteIdent(turnoutColumn(round)))
		}
		for _, c := range categories {
			for _, round := range []string{round1, round2} {
				fmt.Fprintf(&b, ",\n  MAX(CASE WHEN round = '%s' THEN COALESCE(%s, 0) END) AS %s",
					round, quoteIdent(c), quoteIdent(categoryColumn(c, round)))
			}
		}
		b.WriteString("\nFROM computed\nGROUP BY key\n")
		fmt.Fprintf(&b, "HAVING COUNT(CASE WHEN round = '%s' THEN 1 END) > 0\n   AND COUNT(CASE WHEN round = '%s' THEN 1 END) > 0;\n", round1, round2)

	case model.TopologyStaged:
		b.WriteString("-- Staged Join: base and detail tables per round, joined per round, then across rounds.\n")
		for i, round := range []string{round1, round2} {
			cats := cats1
			if i == 1 {
				cats = cats2
			}
			fmt.Fprintf(&b, "CREATE TEMP TABLE base_%s AS\n  SELECT key, region_code, region_name, district_name,\n", round)
			b.WriteString("    ROUND(CAST(ballots AS REAL) / NULLIF(electorate, 0), 4) AS turnout\n")
			fmt.Fprintf(&b, "  FROM round_%s GROUP BY key;\n", round)
			fmt.Fprintf(&b, "CREATE TEMP TABLE detail_%s AS\n  SELECT key", round)
			for _, c := range cats {
				fmt.Fprintf(&b, ",\n    ROUND(CAST(%s AS REAL) / NULLIF(valid_votes, 0), 4) AS %s", quoteIdent(c), quoteIdent(c))
			}
			fmt.Fprintf(&b, "\n  FROM round_%s GROUP BY key;\n", round)
			fmt.Fprintf(&b, "CREATE TEMP TABLE r%d AS\n  SELECT b.*, d.* FROM base_%s b JOIN detail_%s d ON b.key = d.key;\n", i+1, round, round)
		}
		b.WriteString(finalSelect(round1, round2, categories, cats1, cats2))
		b.WriteString("FROM r1\nJOIN r2 ON r1.key = r2.key;\n")

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTopology, topology)
	}
	return b.String(), nil
}

func roundSelect(table string, cats []string) string {
	var b strings.Builder
	b.WriteString("  SELECT key, region_code, region_name, district_name,\n")
	b.WriteString("    ROUND(CAST(ballots AS REAL) / NULLIF(electorate, 0), 4) AS turnout")
	for _, c := range cats {
		fmt.Fprintf(&b, ",\n    ROUND(CAST(%s AS REAL) / NULLIF(valid_votes, 0), 4) AS %s", quoteIdent(c), quoteIdent(c))
	}
	fmt.Fprintf(&b, "\n  FROM %s", table)
	return b.String()
}

func finalSelect(round1, round2 string, categories, cats1, cats2 []string) string {
	var b strings.Builder
	b.WriteString("SELECT r1.key, r1.region_code, r1.region_name, r1.district_name")
	fmt.Fprintf(&b, ",\n  COALESCE(r1.turnout, 0) AS %s", quoteIdent(turnoutColumn(round1)))
	fmt.Fprintf(&b, ",\n  COALESCE(r2.turnout, 0) AS %s", quoteIdent(turnoutColumn(round2)))
	for _, c := range categories {
		fmt.Fprintf(&b, ",\n  %s AS %s", shareExpr("r1", c, cats1), quoteIdent(categoryColumn(c, round1)))
		fmt.Fprintf(&b, ",\n  %s AS %s", shareExpr("r2", c, cats2), quoteIdent(categoryColumn(c, round2)))
	}
	b.WriteString("\n")
	return b.String()
}

// shareExpr is 0 when the category does not exist in that round.
func shareExpr(alias, category string, cats []string) string {
	for _, c := range cats {
		if c == category {
			return fmt.Sprintf("COALESCE(%s.%s, 0)", alias, quoteIdent(category))
		}
	}
	return "0"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
