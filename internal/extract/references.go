package extract

import (
	"sort"
	"unicode"

	"github.com/jward/codegraph/internal/syntax"
)

// typeKinds are constructs whose identifiers denote types rather than values.
var typeKinds = map[string]bool{
	"type_annotation":           true,
	"type_alias_declaration":    true,
	"interface_declaration":     true,
	"type_parameters":           true,
	"type_parameter":            true,
	"type_arguments":            true,
	"type_query":                true,
	"generic_type":              true,
	"nested_type_identifier":    true,
	"implements_clause":         true,
	"extends_type_clause":       true,
	"type_predicate":            true,
	"type_predicate_annotation": true,
	"asserts":                   true,
	"asserts_annotation":        true,
	"union_type":                true,
	"intersection_type":         true,
	"function_type":             true,
	"constructor_type":          true,
	"object_type":               true,
	"array_type":                true,
	"tuple_type":                true,
	"lookup_type":               true,
	"index_type_query":          true,
	"conditional_type":          true,
	"mapped_type_clause":        true,
	"parenthesized_type":        true,
	"readonly_type":             true,
	"ambient_declaration":       true,
	"function_signature":        true,
}

// valueBoundaries end the ancestor walk. An identifier reaching one of these
// before any type construct is in value position.
var valueBoundaries = map[string]bool{
	"program":               true,
	"statement_block":       true,
	"expression_statement":  true,
	"class_body":            true,
	"arguments":             true,
	"return_statement":      true,
	"variable_declarator":   true,
	"pair":                  true,
	"assignment_expression": true,
	"template_substitution": true,
	"jsx_expression":        true,
	"spread_element":        true,
	"array":                 true,
	"object":                true,
}

// namedDeclarations are nodes whose "name" field binds a new identifier.
var namedDeclarations = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"class_declaration":              true,
	"abstract_class_declaration":     true,
	"class":                          true,
	"variable_declarator":            true,
	"interface_declaration":          true,
	"type_alias_declaration":         true,
	"enum_declaration":               true,
	"method_definition":              true,
	"method_signature":               true,
	"abstract_method_signature":      true,
	"public_field_definition":        true,
	"property_signature":             true,
	"function_signature":             true,
	"internal_module":                true,
	"module":                         true,
}

var functionKinds = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
}

// isFunctionLiteral reports whether n is a function value (arrow or function
// expression).
func isFunctionLiteral(n *syntax.Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

// isDeclarationName reports whether identifier n occupies a slot that binds
// a name rather than reading one.
func isDeclarationName(n *syntax.Node) bool {
	p := n.Parent
	if p == nil {
		return false
	}
	if namedDeclarations[p.Kind] {
		return n.Field == "name"
	}
	switch p.Kind {
	case "field_definition":
		return n.Field == "property"
	case "required_parameter", "optional_parameter":
		return n.Field == "pattern"
	case "formal_parameters", "array_pattern", "rest_pattern":
		return true
	case "arrow_function":
		return n.Field == "parameter"
	case "assignment_pattern", "object_assignment_pattern":
		return n.Field == "left"
	case "pair_pattern":
		return n.Field == "value"
	case "catch_clause":
		return n.Field == "parameter"
	case "for_in_statement":
		return n.Field == "left" && (p.HasToken("const") || p.HasToken("let") || p.HasToken("var"))
	case "import_clause", "namespace_import", "import_specifier", "import_require_clause":
		return true
	}
	return false
}

// isDefaultValue reports whether n is the default-value half of a parameter
// or destructuring pattern.
func isDefaultValue(n *syntax.Node) bool {
	p := n.Parent
	if p == nil {
		return false
	}
	switch p.Kind {
	case "required_parameter", "optional_parameter":
		return n.Field == "value"
	case "assignment_pattern", "object_assignment_pattern":
		return n.Field == "right"
	}
	return false
}

// isTypePosition walks n's ancestors looking for a type construct. The walk
// stops at value boundaries. For `x as T` and `x satisfies T` only the
// expression operand is a value.
func isTypePosition(n *syntax.Node) bool {
	prev := n
	for p := n.Parent; p != nil; prev, p = p, p.Parent {
		switch {
		case p.Kind == "as_expression" || p.Kind == "satisfies_expression":
			named := p.NamedChildren()
			return len(named) == 0 || named[0] != prev
		case typeKinds[p.Kind]:
			return true
		case valueBoundaries[p.Kind]:
			return false
		}
	}
	return false
}

// isPropertyName reports whether n is the property half of a member access.
func isPropertyName(n *syntax.Node) bool {
	p := n.Parent
	if p == nil {
		return false
	}
	switch p.Kind {
	case "member_expression":
		return n.Field == "property"
	case "nested_identifier":
		return p.Children[len(p.Children)-1] == n
	}
	return false
}

// isIntrinsicElement reports whether n names a lowercase JSX element such as
// <div>, which is not a binding.
func isIntrinsicElement(n *syntax.Node) bool {
	p := n.Parent
	if p == nil || n.Field != "name" {
		return false
	}
	switch p.Kind {
	case "jsx_opening_element", "jsx_closing_element", "jsx_self_closing_element":
		return n.Text != "" && unicode.IsLower(rune(n.Text[0]))
	}
	return false
}

// ParamNames returns the names bound by a function's parameter list,
// including destructured names.
func ParamNames(fn *syntax.Node) []string {
	var names []string
	if p := fn.ChildByField("parameter"); p != nil && p.Kind == "identifier" {
		names = append(names, p.Text)
	}
	params := fn.ChildByField("parameters")
	if params == nil {
		return names
	}
	params.Walk(func(n *syntax.Node) bool {
		if isDefaultValue(n) || n.Kind == "type_annotation" || n.Kind == "decorator" {
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

// resolver accumulates value references. Parameters of every function it
// enters shadow same-named references inside that function.
type resolver struct {
	refs     map[string]struct{}
	shadowed map[string]int
}

func newResolver() *resolver {
	return &resolver{refs: map[string]struct{}{}, shadowed: map[string]int{}}
}

func (r *resolver) visit(n *syntax.Node) {
	if n == nil {
		return
	}
	if functionKinds[n.Kind] {
		params := ParamNames(n)
		for _, p := range params {
			r.shadowed[p]++
		}
		defer func() {
			for _, p := range params {
				r.shadowed[p]--
			}
		}()
	}

	switch n.Kind {
	case "identifier":
		if r.isValueReference(n) {
			r.refs[n.Text] = struct{}{}
		}
	case "shorthand_property_identifier":
		// { foo } reads foo.
		if r.shadowed[n.Text] == 0 && !reserved[n.Text] {
			r.refs[n.Text] = struct{}{}
		}
	}

	for _, c := range n.Children {
		r.visit(c)
	}
}

func (r *resolver) isValueReference(n *syntax.Node) bool {
	switch {
	case reserved[n.Text]:
		return false
	case r.shadowed[n.Text] > 0:
		return false
	case isDeclarationName(n), isPropertyName(n), isIntrinsicElement(n):
		return false
	case isTypePosition(n):
		return false
	}
	return true
}

func (r *resolver) sorted() []string {
	out := make([]string, 0, len(r.refs))
	for name := range r.refs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// References returns the sorted set of identifiers read in value position
// within scope, typically a function or method node. The scope's parameters
// and those of nested functions are excluded within their bodies.
func References(scope *syntax.Node) []string {
	r := newResolver()
	r.visit(scope)
	return r.sorted()
}

// TopLevelReferences returns identifiers read by module-level code outside
// any function or class body. Function, class, import, and type declarations
// are skipped, as are const bindings of function literals. Exported variable
// statements and `export default <expr>` are walked for their initializers.
func TopLevelReferences(root *syntax.Node) []string {
	r := newResolver()
	for _, stmt := range root.NamedChildren() {
		switch stmt.Kind {
		case "function_declaration", "generator_function_declaration",
			"class_declaration", "abstract_class_declaration",
			"import_statement", "interface_declaration", "type_alias_declaration",
			"ambient_declaration", "function_signature", "comment":
			continue
		case "export_statement":
			r.visitExport(stmt)
		case "lexical_declaration", "variable_declaration":
			r.visitVariables(stmt)
		default:
			r.visit(stmt)
		}
	}
	return r.sorted()
}

func (r *resolver) visitExport(stmt *syntax.Node) {
	if decl := stmt.ChildByField("declaration"); decl != nil {
		if decl.Kind == "lexical_declaration" || decl.Kind == "variable_declaration" {
			r.visitVariables(decl)
		}
		return
	}
	if value := stmt.ChildByField("value"); value != nil {
		if isFunctionLiteral(value) || value.Kind == "class" {
			return
		}
		r.visit(value)
	}
}

func (r *resolver) visitVariables(stmt *syntax.Node) {
	isConst := stmt.HasToken("const")
	for _, d := range stmt.NamedChildren() {
		if d.Kind != "variable_declarator" {
			continue
		}
		if isConst && isFunctionLiteral(d.ChildByField("value")) {
			continue
		}
		r.visit(d)
	}
}

// ClassReferences returns identifiers a class reads outside its methods:
// heritage clauses, decorators, static blocks, and field initializers that
// are not function literals.
func ClassReferences(cls *syntax.Node) []string {
	r := newResolver()
	for _, c := range cls.Children {
		switch c.Kind {
		case "class_heritage", "decorator":
			r.visit(c)
		}
	}
	body := cls.ChildByField("body")
	if body == nil {
		return r.sorted()
	}
	for _, member := range body.NamedChildren() {
		switch member.Kind {
		case "method_definition":
			for _, d := range member.Children {
				if d.Kind == "decorator" {
					r.visit(d)
				}
			}
		case "public_field_definition", "field_definition":
			for _, d := range member.Children {
				if d.Kind == "decorator" {
					r.visit(d)
				}
			}
			if v := member.ChildByField("value"); v != nil && !isFunctionLiteral(v) {
				r.visit(v)
			}
		case "class_static_block":
			r.visit(member)
		}
	}
	return r.sorted()
}
