package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/codegraph/internal/model"
)

// Host functions hand scripts fresh lists of plain maps, so a script that
// mutates what it receives cannot affect the graph or other scripts.

// files() → [{id, path, name, language, line_count, imports, exports, function_ids, class_ids}]
func makeFilesFn(nodes model.NodeMap) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		var results []object.Object
		for _, f := range nodes.Files() {
			sources := make([]string, 0, len(f.Imports))
			for _, imp := range f.Imports {
				sources = append(sources, imp.Source)
			}
			exports := make([]string, 0, len(f.Exports))
			for _, ex := range f.Exports {
				exports = append(exports, ex.ExportedName())
			}
			results = append(results, object.NewMap(map[string]object.Object{
				"id":           object.NewString(f.ID),
				"path":         object.NewString(f.Path),
				"name":         object.NewString(f.Name),
				"language":     object.NewString(f.Language),
				"line_count":   object.NewInt(int64(f.LineCount)),
				"imports":      stringList(sources),
				"exports":      stringList(exports),
				"function_ids": stringList(f.FunctionIDs),
				"class_ids":    stringList(f.ClassIDs),
			}))
		}
		return list(results)
	})
}

// functions() → [{id, name, file, start_line, end_line, lines, class_id, is_method,
// exported, async, params, references, summary, side_effects}]
func makeFunctionsFn(nodes model.NodeMap) *object.Builtin {
	return object.NewBuiltin("functions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("functions", 0, len(args))
		}
		var results []object.Object
		for _, fn := range nodes.Functions() {
			m := map[string]object.Object{
				"id":         object.NewString(fn.ID),
				"name":       object.NewString(fn.Name),
				"file":       object.NewString(fn.FilePath),
				"start_line": object.NewInt(int64(fn.StartLine)),
				"end_line":   object.NewInt(int64(fn.EndLine)),
				"lines":      object.NewInt(int64(fn.LineCount())),
				"class_id":   object.NewString(fn.ClassID),
				"is_method":  object.NewBool(fn.IsMethod()),
				"exported":   object.NewBool(fn.IsExported),
				"async":      object.NewBool(fn.IsAsync),
				"params":     stringList(fn.Params),
				"references": stringList(fn.References),
			}
			if fn.Behavior != nil {
				m["summary"] = object.NewString(fn.Behavior.Summary)
				m["side_effects"] = object.NewBool(fn.Behavior.Flags.HasSideEffects)
			} else {
				m["summary"] = object.Nil
				m["side_effects"] = object.Nil
			}
			results = append(results, object.NewMap(m))
		}
		return list(results)
	})
}

// classes() → [{id, name, file, start_line, end_line, lines, method_ids, exported}]
func makeClassesFn(nodes model.NodeMap) *object.Builtin {
	return object.NewBuiltin("classes", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("classes", 0, len(args))
		}
		var results []object.Object
		for _, c := range nodes.Classes() {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":         object.NewString(c.ID),
				"name":       object.NewString(c.Name),
				"file":       object.NewString(c.FilePath),
				"start_line": object.NewInt(int64(c.StartLine)),
				"end_line":   object.NewInt(int64(c.EndLine)),
				"lines":      object.NewInt(int64(c.EndLine - c.StartLine + 1)),
				"method_ids": stringList(c.MethodIDs),
				"exported":   object.NewBool(c.IsExported),
			}))
		}
		return list(results)
	})
}

// emitter collects the warnings of one script run.
type emitter struct {
	category string
	warnings []model.Warning
}

// emit({category, level, title, description, affected, file, suggestion})
//
// category defaults to the script name and level to "info". affected is a
// node id or a list of them.
func makeEmitFn(em *emitter) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit: %v", err)
		}
		title := getString(m, "title")
		if title == "" {
			return object.Errorf("emit: title is required")
		}
		level := model.Level(getStringDefault(m, "level", string(model.LevelInfo)))
		if !level.Valid() {
			return object.Errorf("emit: unknown level %q", level)
		}
		affected, err := getStrings(m, "affected")
		if err != nil {
			return object.Errorf("emit: affected: %v", err)
		}
		em.warnings = append(em.warnings, model.Warning{
			Category:      getStringDefault(m, "category", em.category),
			Level:         level,
			Title:         title,
			Description:   getString(m, "description"),
			AffectedNodes: affected,
			FilePath:      getString(m, "file"),
			Suggestion:    getString(m, "suggestion"),
		})
		return object.Nil
	})
}

// logObject provides log.Info/Warn/Error for scripts.
type logObject struct {
	logger *slog.Logger
	script string
}

func (l *logObject) Info(msg string) {
	l.logger.Info("rules.log", "script", l.script, "msg", msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn("rules.log", "script", l.script, "msg", msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error("rules.log", "script", l.script, "msg", msg)
}

// --- conversion helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	if v := getString(m, key); v != "" {
		return v
	}
	return def
}

func getStrings(m map[string]object.Object, key string) ([]string, error) {
	switch v := m[key].(type) {
	case nil, *object.NilType:
		return []string{}, nil
	case *object.String:
		return []string{v.Value()}, nil
	case *object.List:
		out := make([]string, 0, len(v.Value()))
		for _, item := range v.Value() {
			s, ok := item.(*object.String)
			if !ok {
				return nil, fmt.Errorf("expected string, got %s", item.Type())
			}
			out = append(out, s.Value())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %s", v.Type())
	}
}

func stringList(values []string) *object.List {
	items := make([]object.Object, len(values))
	for i, v := range values {
		items[i] = object.NewString(v)
	}
	return object.NewList(items)
}

func list(items []object.Object) *object.List {
	if items == nil {
		items = []object.Object{}
	}
	return object.NewList(items)
}

// toObject converts decoded configuration values into Risor objects.
func toObject(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return object.Nil
	case object.Object:
		return x
	case string:
		return object.NewString(x)
	case bool:
		return object.NewBool(x)
	case int:
		return object.NewInt(int64(x))
	case int64:
		return object.NewInt(x)
	case float64:
		return object.NewFloat(x)
	case []string:
		return stringList(x)
	case []any:
		items := make([]object.Object, len(x))
		for i, item := range x {
			items[i] = toObject(item)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(x))
		for k, item := range x {
			m[k] = toObject(item)
		}
		return object.NewMap(m)
	}
	return object.NewString(fmt.Sprint(v))
}
