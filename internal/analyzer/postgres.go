// Package analyzer runs PostgreSQL EXPLAIN (FORMAT JSON) for rendered
// statements and summarizes the plan tree.
package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrAnalyzeWrite is returned when EXPLAIN ANALYZE is requested for a
// statement that would modify data.
var ErrAnalyzeWrite = errors.New("EXPLAIN ANALYZE is only allowed for read statements")

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QueryPlan summarizes one EXPLAIN result.
type QueryPlan struct {
	Cost          float64
	StartupCost   float64
	EstimatedRows int64
	ActualRows    int64         // EXPLAIN ANALYZE only
	ActualTime    time.Duration // EXPLAIN ANALYZE only
	PlanningTime  time.Duration

	UsesIndex  bool
	IndexName  string   // first index encountered, depth first
	Indexes    []string // every index used, sorted
	FullScan   bool
	SeqScanned []string // relations read by Seq Scan, sorted
	NodeTypes  []string // node types in depth-first order

	BuffersHit  int64
	BuffersMiss int64

	RawOutput string
}

// Analyzer runs EXPLAIN through a Querier.
type Analyzer struct {
	db Querier
}

// New creates an analyzer.
func New(db Querier) *Analyzer {
	return &Analyzer{db: db}
}

// Explain returns the estimated plan without executing the statement.
func (a *Analyzer) Explain(ctx context.Context, query string, args []any) (*QueryPlan, error) {
	return a.run(ctx, "EXPLAIN (FORMAT JSON) "+query, args, false)
}

// ExplainAnalyze executes the statement and returns actual metrics. Only
// SELECT and WITH ... SELECT statements are accepted.
func (a *Analyzer) ExplainAnalyze(ctx context.Context, query string, args []any) (*QueryPlan, error) {
	if !isReadStatement(query) {
		return nil, ErrAnalyzeWrite
	}
	return a.run(ctx, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) "+query, args, true)
}

func isReadStatement(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return false
	}
	for _, verb := range []string{"INSERT ", "UPDATE ", "DELETE ", "MERGE "} {
		if strings.Contains(upper, verb) {
			return false
		}
	}
	return true
}

func (a *Analyzer) run(ctx context.Context, explainQuery string, args []any, withAnalyze bool) (*QueryPlan, error) {
	var rawJSON string
	if err := a.db.QueryRowContext(ctx, explainQuery, args...).Scan(&rawJSON); err != nil {
		return nil, fmt.Errorf("failed to execute EXPLAIN: %w", err)
	}

	plan, err := Parse(rawJSON, withAnalyze)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXPLAIN output: %w", err)
	}
	return plan, nil
}

type explainRoot struct {
	Plan          planNode `json:"Plan"`
	PlanningTime  float64  `json:"Planning Time"`
	ExecutionTime float64  `json:"Execution Time"`
}

type planNode struct {
	NodeType         string     `json:"Node Type"`
	RelationName     string     `json:"Relation Name"`
	IndexName        string     `json:"Index Name"`
	TotalCost        float64    `json:"Total Cost"`
	StartupCost      float64    `json:"Startup Cost"`
	PlanRows         int64      `json:"Plan Rows"`
	ActualRows       int64      `json:"Actual Rows"`
	ActualLoops      int64      `json:"Actual Loops"`
	SharedHitBlocks  int64      `json:"Shared Hit Blocks"`
	SharedReadBlocks int64      `json:"Shared Read Blocks"`
	Plans            []planNode `json:"Plans"`
}

// Parse converts EXPLAIN (FORMAT JSON) output into a QueryPlan.
func Parse(rawJSON string, withAnalyze bool) (*QueryPlan, error) {
	var roots []explainRoot
	if err := json.Unmarshal([]byte(rawJSON), &roots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if len(roots) == 0 {
		return nil, errors.New("empty EXPLAIN output")
	}

	root := roots[0]
	plan := &QueryPlan{
		Cost:          root.Plan.TotalCost,
		StartupCost:   root.Plan.StartupCost,
		EstimatedRows: root.Plan.PlanRows,
		PlanningTime:  millis(root.PlanningTime),
		RawOutput:     rawJSON,
	}

	indexes := make(map[string]bool)
	seq := make(map[string]bool)
	walk(&root.Plan, plan, withAnalyze, indexes, seq)
	plan.Indexes = sortedKeys(indexes)
	plan.SeqScanned = sortedKeys(seq)

	if withAnalyze {
		plan.ActualRows = root.Plan.ActualRows * max(root.Plan.ActualLoops, 1)
		plan.ActualTime = millis(root.ExecutionTime)
	}
	return plan, nil
}

func walk(node *planNode, plan *QueryPlan, withAnalyze bool, indexes, seq map[string]bool) {
	plan.NodeTypes = append(plan.NodeTypes, node.NodeType)

	if strings.Contains(node.NodeType, "Index Scan") || node.NodeType == "Index Only Scan" {
		plan.UsesIndex = true
		if node.IndexName != "" {
			if plan.IndexName == "" {
				plan.IndexName = node.IndexName
			}
			indexes[node.IndexName] = true
		}
	}
	if node.NodeType == "Seq Scan" {
		plan.FullScan = true
		if node.RelationName != "" {
			seq[node.RelationName] = true
		}
	}
	if withAnalyze {
		plan.BuffersHit += node.SharedHitBlocks
		plan.BuffersMiss += node.SharedReadBlocks
	}

	for i := range node.Plans {
		walk(&node.Plans[i], plan, withAnalyze, indexes, seq)
	}
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Warnings lists plan properties worth a second look: sequential scans over
// relations estimated above rowThreshold rows, and a cache hit ratio under
// 90% when buffer counts are available.
func (p *QueryPlan) Warnings(rowThreshold int64) []string {
	var warnings []string
	if p.FullScan && p.EstimatedRows > rowThreshold {
		warnings = append(warnings, fmt.Sprintf("sequential scan on %s with ~%d estimated rows",
			strings.Join(p.SeqScanned, ", "), p.EstimatedRows))
	}
	if total := p.BuffersHit + p.BuffersMiss; total > 0 {
		if ratio := float64(p.BuffersHit) / float64(total); ratio < 0.9 {
			warnings = append(warnings, fmt.Sprintf("buffer cache hit ratio %.0f%%", ratio*100))
		}
	}
	return warnings
}
