package extract

import (
	"github.com/jward/codegraph/internal/model"
	"github.com/jward/codegraph/internal/syntax"
)

// declarations collects the functions and classes of one file along with
// the syntax nodes their references are resolved from.
type declarations struct {
	rel       string
	functions []*model.FunctionNode
	classes   []*model.ClassNode
	scopes    map[*model.FunctionNode]*syntax.Node
	classOf   map[*model.ClassNode]*syntax.Node
}

// Declarations finds top-level functions, const-bound function literals,
// classes and their methods. A declaration inside an export statement is
// marked exported; so is one named by a local `export { ... }` clause.
func Declarations(root *syntax.Node, rel string) ([]*model.FunctionNode, []*model.ClassNode) {
	d := collectDeclarations(root, rel)
	return d.functions, d.classes
}

func collectDeclarations(root *syntax.Node, rel string) *declarations {
	d := &declarations{
		rel:     rel,
		scopes:  map[*model.FunctionNode]*syntax.Node{},
		classOf: map[*model.ClassNode]*syntax.Node{},
	}
	for _, stmt := range root.NamedChildren() {
		target, exported, isDefault := stmt, false, false
		if stmt.Kind == "export_statement" {
			exported, isDefault = true, stmt.HasToken("default")
			switch {
			case stmt.ChildByField("declaration") != nil:
				target = stmt.ChildByField("declaration")
			case stmt.ChildByField("value") != nil:
				target = stmt.ChildByField("value")
			default:
				continue
			}
		}
		d.declare(target, stmt, exported, isDefault)
	}
	d.markClauseExports(root)
	return d
}

func (d *declarations) declare(n, outer *syntax.Node, exported, isDefault bool) {
	switch n.Kind {
	case "function_declaration", "generator_function_declaration",
		"function_expression", "function", "generator_function", "arrow_function":
		name := nameOf(n)
		if name == "" {
			if !isDefault {
				return
			}
			name = "default"
		}
		d.addFunction(name, outer, n, exported, nil)

	case "class_declaration", "abstract_class_declaration", "class":
		name := nameOf(n)
		if name == "" {
			if !isDefault {
				return
			}
			name = "default"
		}
		d.addClass(name, outer, n, exported)

	case "lexical_declaration":
		if !n.HasToken("const") {
			return
		}
		declarators := namedOfKind(n, "variable_declarator")
		for _, decl := range declarators {
			id := decl.ChildByField("name")
			value := decl.ChildByField("value")
			if id == nil || id.Kind != "identifier" || !isFunctionLiteral(value) {
				continue
			}
			span := decl
			if len(declarators) == 1 {
				span = outer
			}
			d.addFunction(id.Text, span, value, exported, nil)
		}
	}
}

// addFunction records a function whose text spans span and whose references
// are resolved from scope.
func (d *declarations) addFunction(name string, span, scope *syntax.Node, exported bool, cls *model.ClassNode) *model.FunctionNode {
	fn := &model.FunctionNode{
		Name:       name,
		FilePath:   d.rel,
		StartLine:  span.StartLine,
		EndLine:    span.EndLine,
		IsExported: exported,
		IsAsync:    scope.HasToken("async"),
		Params:     ParamNames(scope),
		Source:     span.Text,
	}
	if cls != nil {
		fn.ID = model.MethodID(d.rel, cls.Name, name, span.StartLine)
		fn.ClassID = cls.ID
		cls.MethodIDs = append(cls.MethodIDs, fn.ID)
	} else {
		fn.ID = model.FunctionID(d.rel, name, span.StartLine)
	}
	d.functions = append(d.functions, fn)
	d.scopes[fn] = scope
	return fn
}

func (d *declarations) addClass(name string, span, node *syntax.Node, exported bool) {
	cls := &model.ClassNode{
		ID:         model.ClassID(d.rel, name, span.StartLine),
		Name:       name,
		FilePath:   d.rel,
		StartLine:  span.StartLine,
		EndLine:    span.EndLine,
		MethodIDs:  []string{},
		IsExported: exported,
	}
	d.classes = append(d.classes, cls)
	d.classOf[cls] = node

	body := node.ChildByField("body")
	if body == nil {
		return
	}
	for _, member := range body.NamedChildren() {
		switch member.Kind {
		case "method_definition":
			// Overload signatures have no body.
			if member.ChildByField("body") == nil {
				continue
			}
			if name := member.ChildByField("name"); name != nil {
				d.addFunction(name.Text, member, member, false, cls)
			}
		case "public_field_definition", "field_definition":
			value := member.ChildByField("value")
			if !isFunctionLiteral(value) {
				continue
			}
			name := member.ChildByField("name")
			if name == nil {
				name = member.ChildByField("property")
			}
			if name != nil {
				d.addFunction(name.Text, member, value, false, cls)
			}
		}
	}
}

// markClauseExports flags declarations named by `export { a, b as c }`.
func (d *declarations) markClauseExports(root *syntax.Node) {
	names := map[string]bool{}
	for _, exp := range Exports(root) {
		if !exp.IsReexport {
			names[exp.Name] = true
		}
	}
	for _, fn := range d.functions {
		if !fn.IsMethod() && names[fn.Name] {
			fn.IsExported = true
		}
	}
	for _, cls := range d.classes {
		if names[cls.Name] {
			cls.IsExported = true
		}
	}
}

func nameOf(n *syntax.Node) string {
	if id := n.ChildByField("name"); id != nil {
		return id.Text
	}
	return ""
}

func namedOfKind(n *syntax.Node, kind string) []*syntax.Node {
	var out []*syntax.Node
	for _, c := range n.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
