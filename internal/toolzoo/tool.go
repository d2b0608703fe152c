// Package toolzoo is the authoritative index of every known tool across all
// downstream servers. It supports semantic, keyword, and hybrid search over
// normalized tool schemas.
package toolzoo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Tool is the normalized descriptor of one downstream capability.
//
// ID is the fully-qualified "<server>.<localName>" identifier and is what
// appears on the wire; it is stable and globally unique within one gateway
// process.
type Tool struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DisplayName  string          `json:"display_name"`
	Description  string          `json:"description"`
	ServerID     string          `json:"server_id"`
	InputSchema  json.RawMessage `json:"input_schema"`
	Tags         []string        `json:"tags,omitempty"`
	Domain       string          `json:"domain,omitempty"`
	SchemaTokens int             `json:"schema_tokens"`
}

// RichDescription composes the text that gets embedded and keyword-indexed:
// description, tags, domain, and parameter names, per the Register contract.
func (t *Tool) RichDescription() string {
	var b strings.Builder
	b.WriteString(t.Description)
	if t.Domain != "" {
		b.WriteString(" domain:")
		b.WriteString(t.Domain)
	}
	if len(t.Tags) > 0 {
		b.WriteString(" tags:")
		b.WriteString(strings.Join(t.Tags, ","))
	}
	for _, name := range parameterNames(t.InputSchema) {
		b.WriteString(" param:")
		b.WriteString(name)
	}
	return b.String()
}

// ParamSummary returns the tool's input parameter names as a comma-joined
// list, for surfacing in a self-correction error string. Returns "none" for
// a tool that takes no parameters.
func (t *Tool) ParamSummary() string {
	names := parameterNames(t.InputSchema)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func parameterNames(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}
	var decoded struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &decoded); err != nil {
		return nil
	}
	names := make([]string, 0, len(decoded.Properties))
	for name := range decoded.Properties {
		names = append(names, name)
	}
	return names
}

// vectorID returns a stable id for the vector-store row backing this tool,
// independent of the wire identifier so a tool's index row survives a
// display-name change without an orphaned vector.
func vectorID(serverID, name string) string {
	sum := sha256.Sum256([]byte(serverID + ":" + name))
	return hex.EncodeToString(sum[:])[:16]
}

// ScoredTool pairs a Tool with a relevance score from a search operation.
type ScoredTool struct {
	Tool  *Tool
	Score float64
}

// SearchFilters narrows SemanticSearch/HybridSearch results.
type SearchFilters struct {
	Domain string
	Tags   []string
}
