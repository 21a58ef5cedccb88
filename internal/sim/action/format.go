// Package action turns free-form LLM replies into typed game actions. The
// parsing pipeline is pure: identical input yields identical output.
package action

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
)

// Error kinds. Parse covers malformed JSON; Schema covers JSON that decodes
// but violates the action contract. Both degrade to an empty action upstream.
var (
	ErrParse  = errors.New("reply parse error")
	ErrSchema = errors.New("reply schema error")
)

var (
	fragmentSplit = regexp.MustCompile(`}\s*{`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// StripFence removes a ```json code fence and any surrounding prose. Replies
// without a fence pass through untouched.
func StripFence(raw string) string {
	if !strings.Contains(raw, "```json") {
		return raw
	}
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// Normalize prepares a reply for object parsing: fence stripped, outer
// whitespace trimmed. String values keep their interior spacing.
func Normalize(raw string) string {
	return strings.TrimSpace(StripFence(raw))
}

// collapseWhitespace flattens a reply for the fragment-repair path. Interior
// whitespace does not survive this, so it runs only on concatenated-object
// replies, never on a well-formed single object.
func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\t", "")
	return whitespaceRun.ReplaceAllString(s, "")
}

// DecodeObject parses a reply into a single JSON object, repairing the
// concatenated-object failure mode: when the reply is several adjacent
// objects, each fragment is parsed separately and the results are merged by
// key, duplicate keys becoming a deduplicated list union.
func DecodeObject(raw string) (map[string]any, error) {
	s := Normalize(raw)
	if s == "" {
		return nil, ErrParse
	}

	if !fragmentSplit.MatchString(s) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, errors.Join(ErrParse, err)
		}
		return obj, nil
	}

	// Re-add the braces consumed by the split, then merge.
	fragments := fragmentSplit.Split(collapseWhitespace(s), -1)
	parsed := make([]map[string]any, 0, len(fragments))
	for _, frag := range fragments {
		if !strings.HasSuffix(frag, "}") {
			frag += "}"
		}
		if !strings.HasPrefix(frag, "{") {
			frag = "{" + frag
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(frag), &obj); err != nil {
			return nil, errors.Join(ErrParse, err)
		}
		parsed = append(parsed, obj)
	}
	return mergeObjects(parsed), nil
}

// mergeObjects merges by key with list union. The union is sorted so the
// parser stays deterministic; callers must not rely on element order.
func mergeObjects(objs []map[string]any) map[string]any {
	merged := map[string]any{}
	for _, obj := range objs {
		for key, value := range obj {
			existing, ok := merged[key]
			if !ok {
				merged[key] = value
				continue
			}
			merged[key] = unionValues(existing, value)
		}
	}
	for key, value := range merged {
		if list, ok := value.([]any); ok {
			merged[key] = dedupe(list)
		}
	}
	return merged
}

func unionValues(a, b any) []any {
	out := toList(a)
	out = append(out, toList(b)...)
	return out
}

func toList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func dedupe(list []any) []any {
	seen := map[string]bool{}
	out := make([]any, 0, len(list))
	for _, v := range list {
		key, _ := json.Marshal(v)
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		bi, _ := json.Marshal(out[i])
		bj, _ := json.Marshal(out[j])
		return string(bi) < string(bj)
	})
	return out
}
