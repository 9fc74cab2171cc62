// Package extract turns a parsed TypeScript or JavaScript file into graph
// nodes: the file's imports and exports, its functions, classes and methods,
// and the identifiers each scope reads.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/model"
	"github.com/jward/codegraph/internal/syntax"
)

// Result is everything extracted from one file.
type Result struct {
	File      *model.FileNode
	Functions []*model.FunctionNode
	Classes   []*model.ClassNode

	// SyntaxError is set when the grammar had to recover from malformed
	// input. The nodes above are still usable.
	SyntaxError *model.ScanError
}

// ParseFile parses src, the contents of the file at project-relative rel.
func ParseFile(ctx context.Context, rel string, src []byte) (*Result, error) {
	tree, err := syntax.ParseFile(ctx, rel, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rel, err)
	}
	return FromTree(tree, rel), nil
}

// FromTree extracts nodes from an already parsed tree.
func FromTree(tree *syntax.Tree, rel string) *Result {
	root := tree.Root
	d := collectDeclarations(root, rel)

	file := &model.FileNode{
		ID:                 model.FileID(rel),
		Path:               rel,
		Name:               model.BaseName(rel),
		Language:           tree.Language,
		Hash:               cache.ContentHash(tree.Source),
		LineCount:          countLines(tree.Source),
		Imports:            Imports(root),
		Exports:            Exports(root),
		FunctionIDs:        []string{},
		ClassIDs:           []string{},
		TopLevelReferences: TopLevelReferences(root),
	}

	for _, fn := range d.functions {
		fn.References = References(d.scopes[fn])
		fn.ContentHash = cache.ContentHash(fn.Source)
		file.FunctionIDs = append(file.FunctionIDs, fn.ID)
	}
	for _, cls := range d.classes {
		cls.References = ClassReferences(d.classOf[cls])
		file.ClassIDs = append(file.ClassIDs, cls.ID)
	}

	res := &Result{File: file, Functions: d.functions, Classes: d.classes}
	if bad := tree.FirstError(); bad != nil {
		res.SyntaxError = &model.ScanError{
			FilePath:    rel,
			Line:        bad.StartLine,
			Message:     "syntax error",
			Recoverable: true,
		}
	}
	return res
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
