package alias

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/codegraph/internal/discover"
)

type configFile struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// Resolve loads the alias maps of every config file under root. Files are
// read shallowest first, so a deeper file's targets end up ahead of a
// shallower file's for the same key. A config that cannot be read or parsed
// contributes nothing.
func Resolve(root string, logger *slog.Logger) (*Aliases, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	configs, err := discover.DiscoverConfigs(root)
	if err != nil {
		return nil, fmt.Errorf("alias: discover configs: %w", err)
	}
	sort.SliceStable(configs, func(i, j int) bool {
		di, dj := strings.Count(configs[i].RelPath, "/"), strings.Count(configs[j].RelPath, "/")
		if di != dj {
			return di < dj
		}
		return configs[i].RelPath < configs[j].RelPath
	})

	aliases := New()
	for _, cfg := range configs {
		data, err := os.ReadFile(cfg.Path)
		if err != nil {
			logger.Debug("alias.config_unreadable", "path", cfg.RelPath, "err", err)
			continue
		}
		if err := aliases.addConfig(filepath.ToSlash(cfg.RelPath), data); err != nil {
			logger.Debug("alias.config_invalid", "path", cfg.RelPath, "err", err)
		}
	}
	return aliases, nil
}

// addConfig merges the paths of one config file. Targets are rewritten
// relative to the project root.
func (a *Aliases) addConfig(rel string, data []byte) error {
	var cfg configFile
	if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", rel, err)
	}
	dir := path.Dir(rel)
	if dir == "." {
		dir = ""
	}
	base := Normalize(dir, cfg.CompilerOptions.BaseURL)

	keys := make([]string, 0, len(cfg.CompilerOptions.Paths))
	for k := range cfg.CompilerOptions.Paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		var targets []Target
		for _, t := range cfg.CompilerOptions.Paths[key] {
			targets = append(targets, Target{Path: Normalize(base, t), Scope: dir})
		}
		if len(targets) > 0 {
			a.Add(key, targets...)
		}
	}
	return nil
}

// StripJSONComments removes // and /* */ comments and trailing commas from
// JSON-with-comments text. Comment markers inside string literals are kept.
func StripJSONComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	inString, escaped := false, false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				if src[i] == '\n' {
					out = append(out, '\n')
				}
				i++
			}
			i++ // closing '/'
		case c == ',' && closesNext(src, i+1):
			// trailing comma
		default:
			out = append(out, c)
		}
	}
	return out
}

// closesNext reports whether the next significant byte after i, skipping
// whitespace and comments, is a closing bracket.
func closesNext(src []byte, i int) bool {
	for i < len(src) {
		switch c := src[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				i++
			}
			i += 2
		default:
			return c == '}' || c == ']'
		}
	}
	return false
}
