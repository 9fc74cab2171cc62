package codegraph

import (
	"context"

	"github.com/jward/codegraph/internal/behavior"
	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/model"
)

// Public type aliases for the internal graph model. These are Go type
// aliases (=), identical to the internal types at compile time.

type ScanResult = model.ScanResult
type ScanStats = model.ScanStats
type ScanError = model.ScanError
type ScanStatus = model.ScanStatus
type Node = model.Node
type NodeType = model.NodeType
type NodeMap = model.NodeMap
type FileNode = model.FileNode
type FunctionNode = model.FunctionNode
type ClassNode = model.ClassNode
type ImportInfo = model.ImportInfo
type ExportInfo = model.ExportInfo
type Warning = model.Warning
type Level = model.Level
type BehaviorResult = model.BehaviorResult
type BehaviorFlags = model.BehaviorFlags
type FunctionInput = behavior.FunctionInput
type CachePersister = cache.Persister

const (
	LevelInfo    = model.LevelInfo
	LevelWarning = model.LevelWarning
	LevelError   = model.LevelError

	NodeTypeFile     = model.NodeTypeFile
	NodeTypeFunction = model.NodeTypeFunction
	NodeTypeClass    = model.NodeTypeClass

	ScanStatusComplete = model.ScanStatusComplete
	ScanStatusFailed   = model.ScanStatusFailed
)

// Analyzer classifies the behavior of one function. *behavior.Client
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, fn FunctionInput) (BehaviorResult, error)
	Model() string
}
