package model

import (
	"fmt"
	"path"
	"path/filepath"
)

// Node ids are derived from the project-relative slash path plus, for
// declarations, the declared name and 1-based start line. Unchanged code
// re-scans to the same id.

// FileID returns the id of the file at rel.
func FileID(rel string) string {
	return "file:" + filepath.ToSlash(rel)
}

// ClassID returns the id of class name declared at line in rel.
func ClassID(rel, name string, line int) string {
	return fmt.Sprintf("class:%s:%s:%d", filepath.ToSlash(rel), name, line)
}

// FunctionID returns the id of function name declared at line in rel.
func FunctionID(rel, name string, line int) string {
	return fmt.Sprintf("function:%s:%s:%d", filepath.ToSlash(rel), name, line)
}

// MethodID returns the id of method name of class className.
func MethodID(rel, className, name string, line int) string {
	return FunctionID(rel, className+"."+name, line)
}

// BaseName returns the file name component of a slash path.
func BaseName(rel string) string {
	return path.Base(filepath.ToSlash(rel))
}
