package extract

// reserved holds JavaScript reserved words, strict-mode reserved words and
// literal names. Contextual keywords such as get, from or type are ordinary
// identifiers when they appear in expressions and are not listed here.
var reserved = func() map[string]bool {
	words := []string{
		"arguments", "await", "break", "case", "catch", "class", "const",
		"continue", "debugger", "default", "delete", "do", "else", "enum",
		"export", "extends", "false", "finally", "for", "function", "if",
		"implements", "import", "in", "instanceof", "interface", "let", "new",
		"null", "package", "private", "protected", "public", "return",
		"static", "super", "switch", "this", "throw", "true", "try", "typeof",
		"undefined", "var", "void", "while", "with", "yield",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
