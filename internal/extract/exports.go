package extract

import (
	"github.com/jward/codegraph/internal/model"
	"github.com/jward/codegraph/internal/syntax"
)

// Exports extracts declared and re-exported names of a file.
func Exports(root *syntax.Node) []model.ExportInfo {
	var exports []model.ExportInfo
	for _, stmt := range root.NamedChildren() {
		if stmt.Kind == "export_statement" {
			exports = append(exports, exportStatement(stmt)...)
		}
	}
	return exports
}

func exportStatement(stmt *syntax.Node) []model.ExportInfo {
	isDefault := stmt.HasToken("default")
	typeOnly := stmt.HasToken("type")

	var source string
	if src := stmt.ChildByField("source"); src != nil {
		source = unquote(src.Text)
	}

	if decl := stmt.ChildByField("declaration"); decl != nil {
		return declarationExports(decl, isDefault)
	}

	if value := stmt.ChildByField("value"); value != nil {
		name := "default"
		switch value.Kind {
		case "identifier":
			name = value.Text
		case "function_expression", "function", "generator_function", "class":
			if id := value.ChildByField("name"); id != nil {
				name = id.Text
			}
		}
		return []model.ExportInfo{{Name: name, IsDefault: true}}
	}

	var exports []model.ExportInfo
	for _, child := range stmt.Children {
		switch child.Kind {
		case "export_clause":
			for _, spec := range child.NamedChildren() {
				if spec.Kind != "export_specifier" {
					continue
				}
				name := spec.ChildByField("name")
				if name == nil {
					continue
				}
				exp := model.ExportInfo{
					Name:       unquote(name.Text),
					IsReexport: source != "",
					Source:     source,
					IsTypeOnly: typeOnly || spec.HasToken("type"),
				}
				if alias := spec.ChildByField("alias"); alias != nil {
					exp.Alias = unquote(alias.Text)
					exp.IsDefault = exp.Alias == "default"
				}
				exports = append(exports, exp)
			}
		case "namespace_export":
			// export * as ns from 'x'
			exp := model.ExportInfo{Name: "*", IsReexport: true, Source: source}
			for _, c := range child.NamedChildren() {
				exp.Alias = unquote(c.Text)
			}
			exports = append(exports, exp)
		case "*":
			if stmt.ChildOfKind("namespace_export") == nil {
				exports = append(exports, model.ExportInfo{Name: "*", IsReexport: true, Source: source})
			}
		case "identifier":
			// export = foo
			if stmt.HasToken("=") {
				exports = append(exports, model.ExportInfo{Name: child.Text, IsDefault: true})
			}
		}
	}
	return exports
}

// declarationExports names what an exported declaration introduces.
func declarationExports(decl *syntax.Node, isDefault bool) []model.ExportInfo {
	switch decl.Kind {
	case "lexical_declaration", "variable_declaration":
		var out []model.ExportInfo
		for _, d := range decl.NamedChildren() {
			if d.Kind != "variable_declarator" {
				continue
			}
			for _, name := range bindingNames(d.ChildByField("name")) {
				out = append(out, model.ExportInfo{Name: name})
			}
		}
		return out
	case "interface_declaration", "type_alias_declaration":
		if name := decl.ChildByField("name"); name != nil {
			return []model.ExportInfo{{Name: name.Text, IsTypeOnly: true, IsDefault: isDefault}}
		}
	default:
		name := "default"
		if id := decl.ChildByField("name"); id != nil {
			name = id.Text
		}
		return []model.ExportInfo{{Name: name, IsDefault: isDefault}}
	}
	return nil
}

// bindingNames lists the identifiers bound by a declarator name, including
// destructuring patterns.
func bindingNames(pattern *syntax.Node) []string {
	if pattern == nil {
		return nil
	}
	if pattern.Kind == "identifier" {
		return []string{pattern.Text}
	}
	var names []string
	pattern.Walk(func(n *syntax.Node) bool {
		if isDefaultValue(n) {
			return false
		}
		switch n.Kind {
		case "shorthand_property_identifier_pattern":
			names = append(names, n.Text)
		case "identifier":
			if isDeclarationName(n) {
				names = append(names, n.Text)
			}
		}
		return true
	})
	return names
}
