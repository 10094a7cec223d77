// Package models defines the domain types for Cairn.
package models

import (
	"path/filepath"
	"time"
)

// ResourceType classifies an artifact by what it represents.
type ResourceType string

// Known resource types. Anything unrecognized falls back to TypeFile.
const (
	TypeNote        ResourceType = "note"
	TypeKit         ResourceType = "kit"
	TypeWalkthrough ResourceType = "walkthrough"
	TypeDiagram     ResourceType = "diagram"
	TypeAgent       ResourceType = "agent"
	TypeTask        ResourceType = "task"
	TypePlan        ResourceType = "plan"
	TypeFile        ResourceType = "file"
)

// Artifact is one filesystem-backed content unit tracked by the cache.
//
// Path is the identity key: absolute, cleaned with filepath.Clean. Name is
// filesystem truth (base name including extension); the front matter "alias"
// field, when present, is a display override and may diverge from Name.
type Artifact struct {
	Path        string         `json:"path"`
	Name        string         `json:"name"`
	Type        ResourceType   `json:"type"`
	FrontMatter map[string]any `json:"front_matter,omitempty"`
	Checksum    string         `json:"checksum"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Alias returns the front matter display override, or "" when absent.
func (a Artifact) Alias() string {
	if a.FrontMatter == nil {
		return ""
	}
	if s, ok := a.FrontMatter["alias"].(string); ok {
		return s
	}
	return ""
}

// FileMetadata is a lightweight representation returned by list operations.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TypeForExtension maps a file extension to a resource type. Front matter
// "type" declarations take precedence over this mapping (see parser).
func TypeForExtension(path string) ResourceType {
	switch filepath.Ext(path) {
	case ".md", ".markdown":
		return TypeNote
	case ".canvas", ".excalidraw":
		return TypeDiagram
	default:
		return TypeFile
	}
}
