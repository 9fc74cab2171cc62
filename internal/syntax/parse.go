package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extToLanguage maps file extensions to canonical grammar names.
var extToLanguage = map[string]string{
	".ts":  "typescript",
	".mts": "typescript",
	".cts": "typescript",
	".tsx": "tsx",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
}

// langToGrammar maps language names to tree-sitter grammars. Lazily
// initialized on first use.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
			"javascript": javascript.GetLanguage(),
		}
	})
}

// LanguageForFile returns the grammar name for a path based on its
// extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Parse parses src with the named grammar and converts the result into a
// portable Tree.
func Parse(ctx context.Context, lang string, src []byte) (*Tree, error) {
	initGrammars()
	grammar, ok := langToGrammar[lang]
	if !ok {
		return nil, fmt.Errorf("syntax: unsupported language %q", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tsTree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("syntax: tree-sitter parse failed: %w", err)
	}
	defer tsTree.Close()

	text := string(src)
	cursor := sitter.NewTreeCursor(tsTree.RootNode())
	defer cursor.Close()

	return &Tree{
		Root:     convert(cursor, nil, text),
		Source:   text,
		Language: lang,
	}, nil
}

// ParseFile parses src choosing the grammar from path's extension.
func ParseFile(ctx context.Context, path string, src []byte) (*Tree, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, fmt.Errorf("syntax: no grammar for %s", path)
	}
	return Parse(ctx, lang, src)
}

// convert copies the subtree under the cursor. The cursor is left on the
// node it started on.
func convert(c *sitter.TreeCursor, parent *Node, src string) *Node {
	tn := c.CurrentNode()
	start, end := int(tn.StartByte()), int(tn.EndByte())
	n := &Node{
		Kind:      tn.Type(),
		Field:     c.CurrentFieldName(),
		Named:     tn.IsNamed(),
		Text:      src[start:end],
		StartByte: start,
		EndByte:   end,
		StartLine: int(tn.StartPoint().Row) + 1,
		EndLine:   int(tn.EndPoint().Row) + 1,
		Missing:   tn.IsMissing(),
		Parent:    parent,
	}
	if c.GoToFirstChild() {
		for {
			n.Children = append(n.Children, convert(c, n, src))
			if !c.GoToNextSibling() {
				break
			}
		}
		c.GoToParent()
	}
	return n
}
