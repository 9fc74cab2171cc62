package model

import (
	"math"
	"time"
)

// Level is the severity of a Warning.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Levels lists all severities from most to least severe.
var Levels = []Level{LevelError, LevelWarning, LevelInfo}

// Valid reports whether l is a known severity.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// Rank orders levels; errors rank lowest so they sort first.
func (l Level) Rank() int {
	switch l {
	case LevelError:
		return 0
	case LevelWarning:
		return 1
	case LevelInfo:
		return 2
	}
	return 3
}

// Warning is a structural issue detected in the graph.
type Warning struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Level         Level     `json:"level"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	AffectedNodes []string  `json:"affectedNodes"`
	FilePath      string    `json:"filePath,omitempty"`
	Suggestion    string    `json:"suggestion,omitempty"`
	DetectedAt    time.Time `json:"detectedAt"`
}

// ScanStats summarizes a scan.
type ScanStats struct {
	TotalFiles        int           `json:"totalFiles"`
	TotalFunctions    int           `json:"totalFunctions"`
	TotalClasses      int           `json:"totalClasses"`
	TotalNodes        int           `json:"totalNodes"`
	WarningsByLevel   map[Level]int `json:"warningsByLevel"`
	AnalyzedFunctions int           `json:"analyzedFunctions"`
	PendingFunctions  int           `json:"pendingFunctions"`
}

// NewScanStats returns stats with every level present at zero.
func NewScanStats() ScanStats {
	return ScanStats{WarningsByLevel: map[Level]int{
		LevelInfo:    0,
		LevelWarning: 0,
		LevelError:   0,
	}}
}

// ScanStatus is the terminal state of a scan.
type ScanStatus string

const (
	ScanStatusComplete ScanStatus = "complete"
	ScanStatusFailed   ScanStatus = "failed"
)

// ScanError is a non-fatal per-file failure.
type ScanError struct {
	FilePath    string `json:"filePath"`
	Line        int    `json:"line"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Connection is reserved for explicit edges between nodes.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Cluster is reserved for grouping related nodes.
type Cluster struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	NodeIDs []string `json:"nodeIds"`
}

// ScanResult is the document produced by one scan.
type ScanResult struct {
	ID          string       `json:"id"`
	ProjectPath string       `json:"projectPath"`
	ProjectName string       `json:"projectName"`
	Status      ScanStatus   `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt time.Time    `json:"completedAt"`
	Stats       ScanStats    `json:"stats"`
	Nodes       NodeMap      `json:"nodes"`
	Connections []Connection `json:"connections"`
	Warnings    []Warning    `json:"warnings"`
	Clusters    []Cluster    `json:"clusters"`
	Errors      []ScanError  `json:"errors"`
	TreeHash    string       `json:"treeHash,omitempty"`
}

// StatusFor returns failed only when errors occurred and no node was
// produced at all.
func StatusFor(nodeCount, errorCount int) ScanStatus {
	if errorCount > 0 && nodeCount == 0 {
		return ScanStatusFailed
	}
	return ScanStatusComplete
}

// RecountBehavior refreshes the analyzed/pending function counters.
func (r *ScanResult) RecountBehavior() {
	analyzed, total := 0, 0
	for _, fn := range r.Nodes.Functions() {
		total++
		if fn.Behavior != nil {
			analyzed++
		}
	}
	r.Stats.AnalyzedFunctions = analyzed
	r.Stats.PendingFunctions = total - analyzed
}

var levelWeights = map[Level]float64{
	LevelError:   10,
	LevelWarning: 3,
	LevelInfo:    0.5,
}

// HealthScore computes clamp(0, 100, round(100 - sum(count * weight))).
func HealthScore(byLevel map[Level]int) int {
	deduction := 0.0
	for level, count := range byLevel {
		deduction += float64(count) * levelWeights[level]
	}
	score := int(math.Round(100 - deduction))
	return max(0, min(100, score))
}
