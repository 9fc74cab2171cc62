package behavior

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jward/codegraph/internal/model"
)

// SystemPrompt fixes the response contract.
const SystemPrompt = `You classify the side effects of a single TypeScript or JavaScript function.
Respond with a single JSON object and nothing else. No prose, no code fences.
The object must have exactly these keys:
  "summary": one line of at most 100 characters describing what the function does
  "readsDatabase": boolean
  "writesDatabase": boolean
  "makesNetworkCalls": boolean
  "readsFiles": boolean
  "writesFiles": boolean
  "sendsNotifications": boolean
  "mutatesGlobalState": boolean
  "hasSideEffects": boolean
Set "hasSideEffects" to true whenever any other flag is true.`

// TruncationMarker is appended to source cut at the length limit.
const TruncationMarker = "\n// ... [truncated]"

// FallbackSummary is the summary of the result used when a response cannot
// be parsed.
const FallbackSummary = "Analysis unavailable: could not parse model response"

// MaxSummaryLen bounds the summary in runes.
const MaxSummaryLen = 100

// UserPrompt embeds fn's source, cut to maxChars bytes on a rune boundary.
func UserPrompt(fn FunctionInput, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Function: %s\n", fn.Name)
	fmt.Fprintf(&b, "File: %s\n\n", fn.FilePath)
	b.WriteString("```\n")
	b.WriteString(TruncateSource(fn.Source, maxChars))
	b.WriteString("\n```\n")
	return b.String()
}

// TruncateSource returns src unchanged when it fits in maxChars bytes,
// otherwise the longest rune-aligned prefix followed by TruncationMarker.
func TruncateSource(src string, maxChars int) string {
	if maxChars <= 0 || len(src) <= maxChars {
		return src
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(src[cut]) {
		cut--
	}
	return src[:cut] + TruncationMarker
}

// Outcome is the result of parsing a model response. Fallback is set, with
// a Reason, when the response could not be parsed and Result is the
// fallback result.
type Outcome struct {
	Result   model.BehaviorResult
	Fallback bool
	Reason   string
}

// FallbackResult is the conservative result used for unparseable responses.
func FallbackResult() model.BehaviorResult {
	return model.BehaviorResult{Summary: FallbackSummary}
}

func fallback(reason string) Outcome {
	return Outcome{Result: FallbackResult(), Fallback: true, Reason: reason}
}

// ParseResponse interprets a model response. Code fences are stripped,
// the first JSON object is decoded, every flag is coerced to a boolean and
// hasSideEffects is forced on when any other flag is set.
func ParseResponse(text string) Outcome {
	body := stripFences(text)
	start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return fallback("no JSON object in response")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(body[start:end+1]), &fields); err != nil {
		return fallback("invalid JSON: " + err.Error())
	}

	var r model.BehaviorResult
	for _, name := range model.FlagNames {
		r.Flags.Set(name, coerceBool(fields[name]))
	}
	if r.Flags.AnyEffect() {
		r.Flags.HasSideEffects = true
	}

	summary, _ := fields["summary"].(string)
	r.Summary = clipSummary(summary)
	if r.Summary == "" {
		r.Summary = "No summary provided"
	}
	return Outcome{Result: r}
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func coerceBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return x != 0
	}
	return false
}

func clipSummary(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxSummaryLen {
		return s
	}
	return string([]rune(s)[:MaxSummaryLen])
}
