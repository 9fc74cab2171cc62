// Package codegraph turns a TypeScript or JavaScript project into a graph
// of files, functions and classes, flags structural problems in it, and can
// attach a short behavioral summary to every function.
//
// # Pipeline
//
// A scan runs in four steps:
//
//  1. Discover: list source files under the root, skipping dependency and
//     build directories, tests and declaration files.
//
//  2. Parse: parse each file with tree-sitter on a bounded worker pool and
//     extract its imports, exports, functions, classes and the identifiers
//     every scope reads. One goroutine merges the results.
//
//  3. Resolve: read path aliases from every tsconfig.json and jsconfig.json
//     under the root and scan .vue, .svelte and .astro components for
//     imports.
//
//  4. Detect: report unresolved imports, orphaned functions, unused
//     exports, import cycles and long functions, plus whatever the Risor
//     rule scripts emit.
//
// # Usage
//
//	e := codegraph.New(codegraph.WithLogger(logger))
//	result, err := e.Scan(ctx, "path/to/project", codegraph.ScanOptions{})
//	if err != nil { ... }
//
//	q := codegraph.NewQuery(result)
//	errs := q.Warnings(codegraph.WarningFilter{Level: codegraph.LevelError})
//	fmt.Println(q.LevelSummary(codegraph.LevelWarning))
//
// # Behavioral analysis
//
// [Engine.Analyze] sends each function's source to an [Analyzer] and keeps
// the results in a cache keyed by function id and content hash, so an
// unchanged function is never analyzed twice. Configure the analyzer with
// [WithAnalyzer] and persist the cache with [WithCacheStore].
//
// # Rules
//
// Extra warnings are written as Risor scripts. The built-in scripts live in
// the rules directory of this module; a project adds its own with
// [WithRulesDir]. Scripts see the graph through the files, functions and
// classes globals and report findings with emit.
package codegraph
