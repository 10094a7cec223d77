package mcpserver

// ArtifactFormatContract describes the canonical artifact front matter
// format that LLM consumers should follow when producing artifact content.
const ArtifactFormatContract = `# Cairn Artifact Format Contract

Artifacts tracked by Cairn are plain files under the project directory.
Markdown artifacts SHOULD carry YAML front matter.

## Structure

` + "```" + `markdown
---
type: note                 # OPTIONAL - note | kit | walkthrough | diagram | agent | task | plan
title: Human-readable name # OPTIONAL - falls back to the first H1 heading
alias: Display override    # OPTIONAL - shown instead of the file name
tags:                      # OPTIONAL - YAML list
  - tag-one
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. The ` + "`" + `---` + "`" + ` fences, when present, must be the first thing in the file.
2. ` + "`" + `type` + "`" + ` must be one of the known resource types; unknown values fall back
   to extension-based classification (.md is a note, .canvas and .excalidraw
   are diagrams, everything else is a plain file).
3. The file name is filesystem truth; ` + "`" + `alias` + "`" + ` only overrides display.
4. Renaming is title-driven: the file name tracks the sanitized title, so
   avoid characters that are illegal in file names (/ \ : * ? " < > |).
5. Encoding is UTF-8 with a trailing newline.
`
