package extract

import (
	"strings"

	"github.com/jward/codegraph/internal/model"
	"github.com/jward/codegraph/internal/syntax"
)

// Imports extracts the static import declarations of a file followed by its
// dynamic import() and require() calls.
func Imports(root *syntax.Node) []model.ImportInfo {
	var imports []model.ImportInfo
	for _, stmt := range root.NamedChildren() {
		if stmt.Kind == "import_statement" {
			if imp, ok := importStatement(stmt); ok {
				imports = append(imports, imp)
			}
		}
	}
	return append(imports, dynamicImports(root)...)
}

// importStatement handles one import declaration. A declaration written as
// `import type ...` is tagged type-only as a whole.
func importStatement(stmt *syntax.Node) (model.ImportInfo, bool) {
	imp := model.ImportInfo{
		IsTypeOnly: stmt.HasToken("type") || stmt.HasToken("typeof"),
	}
	if src := stmt.ChildByField("source"); src != nil {
		imp.Source = unquote(src.Text)
	}

	for _, child := range stmt.Children {
		switch child.Kind {
		case "import_clause":
			imp.Items = append(imp.Items, importClause(child)...)
		case "import_require_clause":
			// import x = require('y')
			if id := child.ChildOfKind("identifier"); id != nil {
				imp.Items = append(imp.Items, model.ImportItem{Name: id.Text, IsDefault: true})
			}
			if src := child.ChildByField("source"); src != nil {
				imp.Source = unquote(src.Text)
			} else if s := child.ChildOfKind("string"); s != nil {
				imp.Source = unquote(s.Text)
			}
		case "string":
			if imp.Source == "" {
				imp.Source = unquote(child.Text)
			}
		}
	}
	return imp, imp.Source != ""
}

func importClause(clause *syntax.Node) []model.ImportItem {
	var items []model.ImportItem
	for _, child := range clause.Children {
		switch child.Kind {
		case "identifier":
			items = append(items, model.ImportItem{Name: child.Text, IsDefault: true})
		case "namespace_import":
			if id := child.ChildOfKind("identifier"); id != nil {
				items = append(items, model.ImportItem{Name: id.Text, IsNamespace: true})
			}
		case "named_imports":
			for _, spec := range child.NamedChildren() {
				if spec.Kind != "import_specifier" {
					continue
				}
				// Inline `type` specifiers bind types only.
				if spec.HasToken("type") || spec.HasToken("typeof") {
					continue
				}
				name := spec.ChildByField("name")
				if name == nil {
					continue
				}
				item := model.ImportItem{Name: unquote(name.Text)}
				if alias := spec.ChildByField("alias"); alias != nil {
					item.Alias = alias.Text
				}
				items = append(items, item)
			}
		}
	}
	return items
}

// dynamicImports scans every call expression for import('x') and require('x').
// The module is recorded as a default import of the quoted argument.
func dynamicImports(root *syntax.Node) []model.ImportInfo {
	var imports []model.ImportInfo
	root.Walk(func(n *syntax.Node) bool {
		if n.Kind != "call_expression" {
			return true
		}
		callee := n.ChildByField("function")
		if callee == nil {
			return true
		}
		isImport := callee.Kind == "import"
		isRequire := callee.Kind == "identifier" && callee.Text == "require"
		if !isImport && !isRequire {
			return true
		}
		src, ok := firstStringArgument(n.ChildByField("arguments"))
		if !ok {
			return true
		}
		imports = append(imports, model.ImportInfo{
			Source:    src,
			Items:     []model.ImportItem{{Name: "default", IsDefault: true}},
			IsDynamic: isImport,
		})
		return true
	})
	return imports
}

func firstStringArgument(args *syntax.Node) (string, bool) {
	if args == nil {
		return "", false
	}
	for _, arg := range args.NamedChildren() {
		switch arg.Kind {
		case "string":
			return unquote(arg.Text), true
		case "template_string":
			if arg.ChildOfKind("template_substitution") != nil {
				return "", false
			}
			return unquote(arg.Text), true
		}
		return "", false
	}
	return "", false
}

// unquote strips one pair of surrounding quote characters.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && strings.ContainsRune("'\"`", rune(first)) {
			return s[1 : len(s)-1]
		}
	}
	return s
}
