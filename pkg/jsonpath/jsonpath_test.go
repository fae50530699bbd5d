package jsonpath

import "testing"

const resultDoc = `{
	"name": "congested-link",
	"streams": {
		"alpha": {"state": "ended", "bytesReleased": 1048576},
		"beta": {"state": "aborted", "bytesReleased": 262144}
	},
	"metrics": {"throughput": 524288.5, "releases": 1250},
	"tags": ["nightly", "soak"],
	"error": null
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"Top-level field", "$.name", "congested-link"},
		{"Nested field", "$.metrics.releases", "1250"},
		{"Float field", "$.metrics.throughput", "524288.5"},
		{"Map entry", "$.streams.alpha.state", "ended"},
		{"Quoted bracket", "$.streams['beta'].bytesReleased", "262144"},
		{"Double-quoted bracket", `$.streams["beta"].state`, "aborted"},
		{"Array index", "$.tags[0]", "nightly"},
		{"Null value", "$.error", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(resultDoc, tt.path)
			if err != nil {
				t.Fatalf("Extract(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractRoot(t *testing.T) {
	got, err := Extract(`{"a": 1}`, "$")
	if err != nil {
		t.Fatalf("Extract($) error = %v", err)
	}
	if got != `{"a": 1}` {
		t.Errorf("Extract($) = %q, want the whole document", got)
	}
}

func TestExtractErrors(t *testing.T) {
	if _, err := Extract("", "$.name"); err == nil {
		t.Error("Extract() expected an error for an empty document")
	}
	if _, err := Extract(`{}`, ""); err == nil {
		t.Error("Extract() expected an error for an empty path")
	}
	if _, err := Extract(`{"name": "x"}`, "$.missing"); err == nil {
		t.Error("Extract() expected an error for a missing path")
	}
}

func TestToGjsonPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$", "@this"},
		{"$.name", "name"},
		{"$.streams.alpha.state", "streams.alpha.state"},
		{"$.streams['alpha'].state", "streams.alpha.state"},
		{`$["name"]`, "name"},
		{"$[0]", "0"},
		{"$.tags[2]", "tags.2"},
	}

	for _, tt := range tests {
		if got := toGjsonPath(tt.in); got != tt.want {
			t.Errorf("toGjsonPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
