package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/menta2k/screen-locator/pkg/grid"
)

// Selection is the outcome of one marker query: either a marker number
// (OK) or a failure that the caller resolves with a fallback.
type Selection struct {
	Number int
	OK     bool
	Err    error
	// Raw is the last model reply, when there was one
	Raw string
}

// Selected wraps a successful answer
func Selected(number int, raw string) Selection {
	return Selection{Number: number, OK: true, Raw: raw}
}

// Failed wraps a transport or parse failure
func Failed(err error, raw string) Selection {
	return Selection{Err: err, Raw: raw}
}

// SelectionSchema is the JSON schema of a marker answer on an n-sided grid
func SelectionSchema(n int) json.RawMessage {
	schema := map[string]any{
		"title":       "ZoomSelection",
		"description": "Zoom selection model",
		"type":        "object",
		"properties": map[string]any{
			"number": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"maximum":     grid.MarkerCount(n),
				"description": "Number of the dot closest to the place we want to click.",
			},
		},
		"required": []string{"number"},
	}
	data, _ := json.Marshal(schema)
	return data
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[int]*jsonschema.Schema{}
)

func compiledSchema(n int) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := schemaCache[n]; ok {
		return s, nil
	}

	url := fmt.Sprintf("zoom_selection_%d.json", n)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(SelectionSchema(n))); err != nil {
		return nil, fmt.Errorf("failed to add selection schema: %w", err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile selection schema: %w", err)
	}
	schemaCache[n] = s
	return s, nil
}

// ParseSelection extracts the marker number from a model reply and checks
// it against the selection schema of an n-sided grid.
func ParseSelection(raw string, n int) (int, error) {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return 0, fmt.Errorf("no JSON object in response")
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	schema, err := compiledSchema(n)
	if err != nil {
		return 0, err
	}
	if err := schema.Validate(doc); err != nil {
		return 0, fmt.Errorf("response does not match schema: %w", err)
	}

	var sel struct {
		Number json.Number `json:"number"`
	}
	if err := json.Unmarshal([]byte(cleaned), &sel); err != nil {
		return 0, fmt.Errorf("invalid selection: %w", err)
	}
	number, err := sel.Number.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", sel.Number, err)
	}
	return int(number), nil
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas and
// keeps the outermost object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
