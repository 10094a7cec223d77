// Package parser extracts front matter and titles from artifact content.
package parser

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veddartha/cairn/internal/models"
)

// Result holds the output of parsing an artifact file.
type Result struct {
	FrontMatter map[string]any
	Body        string
	Title       string
	Type        models.ResourceType
	Alias       string
	Tags        []string
}

// Parse extracts front matter, body, title, and the resource type from raw
// artifact bytes. The path is only used for extension-based type fallback.
func Parse(path string, data []byte) (*Result, error) {
	fm, body := splitFrontMatter(data)

	return &Result{
		FrontMatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Type:        deriveType(fm, path),
		Alias:       stringField(fm, "alias"),
		Tags:        tagList(fm),
	}, nil
}

// splitFrontMatter separates YAML front matter (between leading --- delimiters)
// from the body. Missing or invalid front matter yields the whole content as body.
func splitFrontMatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}

	return fm, body
}

// deriveTitle returns the front matter "title" if present, otherwise the
// first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if t := stringField(fm, "title"); t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// deriveType resolves the resource type: an explicit front matter "type"
// declaration wins, otherwise the file extension decides.
func deriveType(fm map[string]any, path string) models.ResourceType {
	switch models.ResourceType(stringField(fm, "type")) {
	case models.TypeNote, models.TypeKit, models.TypeWalkthrough,
		models.TypeDiagram, models.TypeAgent, models.TypeTask, models.TypePlan:
		return models.ResourceType(stringField(fm, "type"))
	}
	return models.TypeForExtension(path)
}

// tagList collects string entries from the front matter "tags" field.
func tagList(fm map[string]any) []string {
	if fm == nil {
		return nil
	}
	raw, ok := fm["tags"].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func stringField(fm map[string]any, key string) string {
	if fm == nil {
		return ""
	}
	if s, ok := fm[key].(string); ok {
		return s
	}
	return ""
}
