package main

import (
	"time"

	"github.com/jward/codegraph"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIScan is the compact view of a scan printed by scan and scans show.
type CLIScan struct {
	ID          string                  `json:"id"`
	ProjectPath string                  `json:"project_path"`
	ProjectName string                  `json:"project_name"`
	Status      codegraph.ScanStatus    `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt time.Time               `json:"completed_at"`
	HealthScore int                     `json:"health_score"`
	TreeHash    string                  `json:"tree_hash,omitempty"`
	Stats       codegraph.ScanStats     `json:"stats"`
	Levels      []codegraph.LevelReport `json:"levels"`
	Errors      []codegraph.ScanError   `json:"errors"`
}

func scanSummary(r *codegraph.ScanResult) CLIScan {
	q := codegraph.NewQuery(r)
	errs := r.Errors
	if errs == nil {
		errs = []codegraph.ScanError{}
	}
	return CLIScan{
		ID:          r.ID,
		ProjectPath: r.ProjectPath,
		ProjectName: r.ProjectName,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		HealthScore: q.HealthScore(),
		TreeHash:    r.TreeHash,
		Stats:       r.Stats,
		Levels:      q.Summaries(),
		Errors:      errs,
	}
}

// CLINode is a flat node row.
type CLINode struct {
	ID        string             `json:"id"`
	Type      codegraph.NodeType `json:"type"`
	Name      string             `json:"name"`
	File      string             `json:"file"`
	StartLine int                `json:"start_line,omitempty"`
	EndLine   int                `json:"end_line,omitempty"`
	Exported  bool               `json:"exported,omitempty"`
	Summary   string             `json:"summary,omitempty"`
	Flags     []string           `json:"flags,omitempty"`
}

func toCLINodes(nodes []*codegraph.Node) []CLINode {
	out := make([]CLINode, 0, len(nodes))
	for _, n := range nodes {
		c := CLINode{ID: n.ID(), Type: n.Type, Name: n.Name(), File: n.FilePath()}
		switch n.Type {
		case codegraph.NodeTypeFile:
			c.EndLine = n.File.LineCount
		case codegraph.NodeTypeFunction:
			fn := n.Function
			c.StartLine, c.EndLine, c.Exported = fn.StartLine, fn.EndLine, fn.IsExported
			if fn.Behavior != nil {
				c.Summary = fn.Behavior.Summary
				c.Flags = fn.Behavior.Flags.Names()
			}
		case codegraph.NodeTypeClass:
			c.StartLine, c.EndLine, c.Exported = n.Class.StartLine, n.Class.EndLine, n.Class.IsExported
		}
		out = append(out, c)
	}
	return out
}

// CLIDeleted reports how many scans a delete removed.
type CLIDeleted struct {
	Deleted int64 `json:"deleted"`
}
