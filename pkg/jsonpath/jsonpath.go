// Package jsonpath evaluates basic JSONPath expressions against JSON
// documents, backed by gjson. It covers the dotted subset that queries
// run results: $.metrics.throughput, $.streams['a'].state, $.tags[0].
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract returns the value at path in doc as a string. Objects and
// arrays come back as their JSON text, null as "null". A path that
// matches nothing is an error.
func Extract(doc string, path string) (string, error) {
	if doc == "" {
		return "", fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}

	result := gjson.Get(doc, toGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// toGjsonPath rewrites a JSONPath expression into gjson syntax:
// $.streams[0].name becomes streams.0.name. Filters and wildcards are
// not supported.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// Bracket notation, quoted and bare: ['name'], ["name"], [0].
	r := strings.NewReplacer("['", ".", "']", "", `["`, ".", `"]`, "", "[", ".", "]", "")
	path = r.Replace(path)

	return strings.TrimPrefix(path, ".")
}
