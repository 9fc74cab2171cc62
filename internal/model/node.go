// Package model defines the analysis graph produced by a scan: nodes, warnings,
// statistics and the ScanResult document consumed by persistence and query layers.
package model

import "sort"

// NodeType tags the variant held by a Node.
type NodeType string

const (
	NodeTypeFile     NodeType = "file"
	NodeTypeFunction NodeType = "function"
	NodeTypeClass    NodeType = "class"
	// NodeTypeCluster is reserved for future grouping of related nodes.
	NodeTypeCluster NodeType = "cluster"
)

// Node is a tagged union over the graph's node variants. Exactly one of the
// variant pointers matching Type is non-nil.
type Node struct {
	Type     NodeType      `json:"type"`
	File     *FileNode     `json:"file,omitempty"`
	Function *FunctionNode `json:"function,omitempty"`
	Class    *ClassNode    `json:"class,omitempty"`
}

// ID returns the id of the wrapped variant.
func (n *Node) ID() string {
	switch n.Type {
	case NodeTypeFile:
		return n.File.ID
	case NodeTypeFunction:
		return n.Function.ID
	case NodeTypeClass:
		return n.Class.ID
	}
	return ""
}

// Name returns the display name of the wrapped variant.
func (n *Node) Name() string {
	switch n.Type {
	case NodeTypeFile:
		return n.File.Name
	case NodeTypeFunction:
		return n.Function.Name
	case NodeTypeClass:
		return n.Class.Name
	}
	return ""
}

// FilePath returns the project-relative path of the file owning the node.
func (n *Node) FilePath() string {
	switch n.Type {
	case NodeTypeFile:
		return n.File.Path
	case NodeTypeFunction:
		return n.Function.FilePath
	case NodeTypeClass:
		return n.Class.FilePath
	}
	return ""
}

// NewFileNode wraps f in a Node.
func NewFileNode(f *FileNode) *Node { return &Node{Type: NodeTypeFile, File: f} }

// NewFunctionNode wraps fn in a Node.
func NewFunctionNode(fn *FunctionNode) *Node { return &Node{Type: NodeTypeFunction, Function: fn} }

// NewClassNode wraps c in a Node.
func NewClassNode(c *ClassNode) *Node { return &Node{Type: NodeTypeClass, Class: c} }

// ImportItem is one binding introduced by an import declaration.
type ImportItem struct {
	Name        string `json:"name"`
	Alias       string `json:"alias,omitempty"`
	IsDefault   bool   `json:"isDefault,omitempty"`
	IsNamespace bool   `json:"isNamespace,omitempty"`
}

// LocalName is the identifier the item binds in the importing file.
func (i ImportItem) LocalName() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Name
}

// ImportInfo is a single import declaration (static or dynamic).
type ImportInfo struct {
	Source     string       `json:"source"`
	Items      []ImportItem `json:"items"`
	IsTypeOnly bool         `json:"isTypeOnly,omitempty"`
	IsDynamic  bool         `json:"isDynamic,omitempty"`
}

// ExportInfo is a single exported name. Re-exports carry the Source module.
type ExportInfo struct {
	Name       string `json:"name"`
	Alias      string `json:"alias,omitempty"`
	IsDefault  bool   `json:"isDefault,omitempty"`
	IsReexport bool   `json:"isReexport,omitempty"`
	Source     string `json:"source,omitempty"`
	IsTypeOnly bool   `json:"isTypeOnly,omitempty"`
}

// ExportedName is the name visible to importers.
func (e ExportInfo) ExportedName() string {
	if e.IsDefault {
		return "default"
	}
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// FileNode describes one source file.
type FileNode struct {
	ID                 string       `json:"id"`
	Path               string       `json:"path"`
	Name               string       `json:"name"`
	Language           string       `json:"language"`
	Hash               string       `json:"hash"`
	LineCount          int          `json:"lineCount"`
	Imports            []ImportInfo `json:"imports"`
	Exports            []ExportInfo `json:"exports"`
	FunctionIDs        []string     `json:"functionIds"`
	ClassIDs           []string     `json:"classIds"`
	TopLevelReferences []string     `json:"topLevelReferences"`
}

// FunctionNode describes a standalone function or a class method. A method
// has a non-empty ClassID and is owned by exactly that class.
type FunctionNode struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	FilePath    string          `json:"filePath"`
	StartLine   int             `json:"startLine"`
	EndLine     int             `json:"endLine"`
	ClassID     string          `json:"classId,omitempty"`
	IsExported  bool            `json:"isExported,omitempty"`
	IsAsync     bool            `json:"isAsync,omitempty"`
	Params      []string        `json:"params,omitempty"`
	References  []string        `json:"references"`
	ContentHash string          `json:"contentHash"`
	Behavior    *BehaviorResult `json:"behavior,omitempty"`

	// Source is the function's text at scan time. Not persisted.
	Source string `json:"-"`
}

// IsMethod reports whether the function belongs to a class.
func (f *FunctionNode) IsMethod() bool { return f.ClassID != "" }

// LineCount is the inclusive number of lines spanned by the function.
func (f *FunctionNode) LineCount() int { return f.EndLine - f.StartLine + 1 }

// ClassNode describes a class declaration.
type ClassNode struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	FilePath   string   `json:"filePath"`
	StartLine  int      `json:"startLine"`
	EndLine    int      `json:"endLine"`
	MethodIDs  []string `json:"methodIds"`
	IsExported bool     `json:"isExported,omitempty"`

	// References are identifiers read outside the class's methods: heritage,
	// decorators and field initializers.
	References []string `json:"references,omitempty"`
}

// NodeMap maps node id to node. Ids are unique.
type NodeMap map[string]*Node

// Add inserts n and reports whether its id was new. An existing node with
// the same id is kept.
func (m NodeMap) Add(n *Node) bool {
	id := n.ID()
	if _, ok := m[id]; ok {
		return false
	}
	m[id] = n
	return true
}

// Files returns all file nodes sorted by path.
func (m NodeMap) Files() []*FileNode {
	var out []*FileNode
	for _, n := range m {
		if n.Type == NodeTypeFile {
			out = append(out, n.File)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Functions returns all function nodes sorted by id.
func (m NodeMap) Functions() []*FunctionNode {
	var out []*FunctionNode
	for _, n := range m {
		if n.Type == NodeTypeFunction {
			out = append(out, n.Function)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Classes returns all class nodes sorted by id.
func (m NodeMap) Classes() []*ClassNode {
	var out []*ClassNode
	for _, n := range m {
		if n.Type == NodeTypeClass {
			out = append(out, n.Class)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of nodes of type t.
func (m NodeMap) Count(t NodeType) int {
	c := 0
	for _, n := range m {
		if n.Type == t {
			c++
		}
	}
	return c
}

// File returns the file node for a project-relative path, or nil.
func (m NodeMap) File(path string) *FileNode {
	n, ok := m[FileID(path)]
	if !ok || n.Type != NodeTypeFile {
		return nil
	}
	return n.File
}

// Function returns the function node with id, or nil.
func (m NodeMap) Function(id string) *FunctionNode {
	n, ok := m[id]
	if !ok || n.Type != NodeTypeFunction {
		return nil
	}
	return n.Function
}
