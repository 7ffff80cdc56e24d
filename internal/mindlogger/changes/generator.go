// Package changes renders the readable change log between two versions of an
// applet, e.g. "Item Visibility was disabled".
package changes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field maps a JSON attribute to the name shown in the change log.
type Field struct {
	Key     string
	Verbose string
	// Inverted flips enabled/disabled, for flags like is_hidden.
	Inverted bool
	// Diff renders structured values. Nil falls back to the generic rules.
	Diff func(verbose string, old, new json.RawMessage) []string
}

// Generator diffs JSON-encoded attribute sets field by field.
type Generator struct {
	fields []Field
}

func NewGenerator(fields ...Field) Generator {
	return Generator{fields: fields}
}

// Compare lists the changes between old and new; a nil old means the entity
// was just created, so only set values are reported.
func (g Generator) Compare(old, new interface{}) []string {
	om := toMap(old)
	nm := toMap(new)
	var out []string
	for _, f := range g.fields {
		o, n := normalize(om[f.Key]), normalize(nm[f.Key])
		if bytes.Equal(o, n) {
			continue
		}
		if f.Diff != nil {
			out = append(out, f.Diff(f.Verbose, o, n)...)
			continue
		}
		out = append(out, scalarChange(f, o, n)...)
	}
	return out
}

func toMap(v interface{}) map[string]json.RawMessage {
	m := map[string]json.RawMessage{}
	if v == nil {
		return m
	}
	b, err := json.Marshal(v)
	if err != nil {
		return m
	}
	_ = json.Unmarshal(b, &m)
	return m
}

var zeroValues = map[string]bool{"": true, "null": true, "false": true, `""`: true, "0": true, "[]": true, "{}": true}

// normalize compacts raw JSON and folds zero values into null.
func normalize(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	if zeroValues[buf.String()] {
		return json.RawMessage("null")
	}
	return buf.Bytes()
}

func isNull(raw json.RawMessage) bool { return string(raw) == "null" }

func scalarChange(f Field, o, n json.RawMessage) []string {
	if isBool(o) && isBool(n) {
		on := string(n) == "true"
		if f.Inverted {
			on = !on
		}
		if on {
			return []string{fmt.Sprintf("%s was enabled", f.Verbose)}
		}
		return []string{fmt.Sprintf("%s was disabled", f.Verbose)}
	}
	switch {
	case isNull(n):
		return []string{fmt.Sprintf("%s was cleared", f.Verbose)}
	case isNull(o):
		return []string{fmt.Sprintf("%s was set to %s", f.Verbose, display(n))}
	default:
		return []string{fmt.Sprintf("%s was updated to %s", f.Verbose, display(n))}
	}
}

// isBool treats null as false so toggles from an absent flag still render.
func isBool(raw json.RawMessage) bool {
	s := string(raw)
	return s == "true" || s == "false" || s == "null"
}

// display renders a value for humans: strings unquoted, localized maps by
// their English text.
func display(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var loc map[string]string
	if json.Unmarshal(raw, &loc) == nil && len(loc) > 0 {
		if v, ok := loc["en"]; ok {
			return v
		}
		keys := make([]string, 0, len(loc))
		for k := range loc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return loc[keys[0]]
	}
	return string(raw)
}

// Structured reports a generic add/remove/update for composite values.
func Structured(verbose string, o, n json.RawMessage) []string {
	switch {
	case isNull(o):
		return []string{fmt.Sprintf("%s was added", verbose)}
	case isNull(n):
		return []string{fmt.Sprintf("%s was removed", verbose)}
	default:
		return []string{fmt.Sprintf("%s was updated", verbose)}
	}
}

// Localized renders localized text maps like plain strings.
func Localized(verbose string, o, n json.RawMessage) []string {
	return scalarChange(Field{Verbose: verbose}, o, n)
}

type keyed struct {
	key  string
	name string
	raw  json.RawMessage
}

// diffKeyed compares two lists whose rows carry a stable identifier.
func diffKeyed(label string, old, new []keyed) []string {
	var out []string
	oldByKey := make(map[string]keyed, len(old))
	for _, k := range old {
		oldByKey[k.key] = k
	}
	seen := make(map[string]struct{}, len(new))
	for _, n := range new {
		seen[n.key] = struct{}{}
		o, ok := oldByKey[n.key]
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("%s %s was added", label, n.name))
		case !bytes.Equal(normalize(o.raw), normalize(n.raw)):
			out = append(out, fmt.Sprintf("%s %s was updated", label, n.name))
		}
	}
	for _, o := range old {
		if _, ok := seen[o.key]; !ok {
			out = append(out, fmt.Sprintf("%s %s was removed", label, o.name))
		}
	}
	return out
}

// rows extracts keyed rows from a JSON array of objects.
func rows(raw json.RawMessage, idKey string, nameKeys ...string) []keyed {
	var list []map[string]json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &list) != nil {
		return nil
	}
	out := make([]keyed, 0, len(list))
	for i, m := range list {
		k := keyed{raw: mustMarshal(m)}
		if v, ok := m[idKey]; ok {
			k.key = display(v)
		} else {
			k.key = fmt.Sprint(i)
		}
		k.name = k.key
		for _, nk := range nameKeys {
			if v, ok := m[nk]; ok && display(v) != "" {
				k.name = display(v)
				break
			}
		}
		out = append(out, k)
	}
	return out
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func objectField(raw json.RawMessage, key string) json.RawMessage {
	var m map[string]json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &m) != nil {
		return json.RawMessage("null")
	}
	return normalize(m[key])
}

// humanize turns snake_case keys into title words.
func humanize(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '.' })
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// flatten expands nested objects into dotted keys.
func flatten(prefix string, raw json.RawMessage, out map[string]json.RawMessage) {
	var m map[string]json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &m) != nil {
		if prefix != "" {
			out[prefix] = normalize(raw)
		}
		return
	}
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if len(v) > 0 && v[0] == '{' {
			flatten(key, v, out)
			continue
		}
		out[key] = normalize(v)
	}
}
