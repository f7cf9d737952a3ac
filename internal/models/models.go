package models

import (
	"fmt"
	"time"
)

// Node labels in the dev graph. Each label owns a natural key declared
// UNIQUE by the schema manager.
const (
	LabelGitCommit   = "GitCommit"
	LabelFile        = "File"
	LabelDirectory   = "Directory"
	LabelDocument    = "Document"
	LabelChunk       = "Chunk"
	LabelSymbol      = "Symbol"
	LabelLibrary     = "Library"
	LabelRequirement = "Requirement"
	LabelSprint      = "Sprint"
	LabelWatermark   = "DerivationWatermark"
)

// Relationship kinds. Temporal kinds require a timestamp property;
// structural kinds must not carry one.
const (
	RelTouched       = "TOUCHED"
	RelImplements    = "IMPLEMENTS"
	RelEvolvesFrom   = "EVOLVES_FROM"
	RelRefactoredTo  = "REFACTORED_TO"
	RelDeprecatedBy  = "DEPRECATED_BY"
	RelContains      = "CONTAINS"
	RelContainsChunk = "CONTAINS_CHUNK"
	RelPartOf        = "PART_OF"
	RelMentions      = "MENTIONS"
	RelContainsDoc   = "CONTAINS_DOC"
	RelIncludes      = "INCLUDES"
	RelInvolvesFile  = "INVOLVES_FILE"
	RelDefinedIn     = "DEFINED_IN"
	RelImports       = "IMPORTS"
	RelUsesLibrary   = "USES_LIBRARY"
	RelMentionsSym   = "MENTIONS_SYMBOL"
	RelMentionsFile  = "MENTIONS_FILE"
	RelMentionsCmt   = "MENTIONS_COMMIT"
	RelMentionsLib   = "MENTIONS_LIBRARY"
	RelRelatesTo     = "RELATES_TO"
	RelDependsOn     = "DEPENDS_ON"
	RelCoOccursWith  = "CO_OCCURS_WITH"
)

// TemporalRels is the set of relationship kinds that must carry a
// non-null timestamp. Everything else is structural or derived.
var TemporalRels = map[string]bool{
	RelTouched:      true,
	RelImplements:   true,
	RelEvolvesFrom:  true,
	RelRefactoredTo: true,
	RelDeprecatedBy: true,
}

// StructuralRels must not carry a timestamp property at all.
var StructuralRels = map[string]bool{
	RelContains:      true,
	RelContainsChunk: true,
	RelPartOf:        true,
	RelMentions:      true,
	RelContainsDoc:   true,
	RelIncludes:      true,
	RelInvolvesFile:  true,
}

// UniqueKey returns the natural key property for a node label.
func UniqueKey(label string) string {
	switch label {
	case LabelGitCommit:
		return "hash"
	case LabelFile, LabelDirectory, LabelDocument:
		return "path"
	case LabelChunk:
		return "id"
	case LabelSymbol:
		return "uid"
	case LabelLibrary:
		return "name"
	case LabelRequirement:
		return "id"
	case LabelSprint:
		return "number"
	case LabelWatermark:
		return "key"
	}
	return "uid"
}

// Change types reported by the git history service.
const (
	ChangeAdded    = "A"
	ChangeModified = "M"
	ChangeDeleted  = "D"
	ChangeRenamed  = "R"
	ChangeCopied   = "C"
)

// Commit is one commit from the git history service, oldest-first.
// Timestamp is the committer timestamp normalized to UTC.
type Commit struct {
	Hash        string
	Message     string
	Author      string
	AuthorEmail string
	Timestamp   time.Time
	Branch      string
	Deltas      []FileDelta
}

// FileDelta is a single file change within a commit. PrevPath is set
// only for renames and copies.
type FileDelta struct {
	Path       string
	PrevPath   string
	ChangeType string
	Additions  int
	Deletions  int
}

// BlameLine attributes one line of a file to a commit.
type BlameLine struct {
	Line       int    `json:"line"`
	CommitHash string `json:"commit_hash"`
	Author     string `json:"author"`
}

// File is a tracked file in the working tree.
type File struct {
	Path        string
	Language    string
	IsCode      bool
	IsDoc       bool
	Extension   string
	DecodeError string
}

// Properties renders the File as a property row for a batched upsert.
func (f File) Properties() map[string]any {
	props := map[string]any{
		"path":      f.Path,
		"language":  f.Language,
		"is_code":   f.IsCode,
		"is_doc":    f.IsDoc,
		"extension": f.Extension,
		"uid":       f.Path,
	}
	if f.DecodeError != "" {
		props["decode_error"] = f.DecodeError
	}
	return props
}

// Directory is an interior node of the file tree.
type Directory struct {
	Path  string
	Depth int
}

func (d Directory) Properties() map[string]any {
	return map[string]any{"path": d.Path, "depth": d.Depth, "uid": d.Path}
}

// Document is a Markdown (or similar prose) file that gets chunked by
// heading structure. Documents are also Files; both labels share the path.
type Document struct {
	Path      string
	Title     string
	WordCount int
}

func (d Document) Properties() map[string]any {
	return map[string]any{"path": d.Path, "title": d.Title, "word_count": d.WordCount}
}

// Chunk is one unit of content: a Markdown section or a symbol block of
// a source file. ID is deterministic: "<posix path>#<ordinal>".
type Chunk struct {
	ID           string
	DocPath      string
	Heading      string
	Level        int
	Ordinal      int
	Content      string
	Preview      string
	Length       int
	LastModified time.Time
}

// ChunkID builds the deterministic chunk id from a POSIX path and the
// 0-based in-document ordinal.
func ChunkID(path string, ordinal int) string {
	return fmt.Sprintf("%s#%d", path, ordinal)
}

func (c Chunk) Properties() map[string]any {
	props := map[string]any{
		"id":              c.ID,
		"doc_path":        c.DocPath,
		"heading":         c.Heading,
		"level":           c.Level,
		"ordinal":         c.Ordinal,
		"content":         c.Content,
		"content_preview": c.Preview,
		"length":          c.Length,
	}
	if !c.LastModified.IsZero() {
		props["last_modified_timestamp"] = c.LastModified.UTC().Format(time.RFC3339)
	}
	return props
}

// Symbol types recognized by the extractor.
const (
	SymbolClass     = "class"
	SymbolFunction  = "function"
	SymbolMethod    = "method"
	SymbolInterface = "interface"
)

// Symbol is a top-level declaration in a source file. The compound key
// (file_path, name, line_number) is flattened into uid.
type Symbol struct {
	FilePath   string
	Name       string
	Type       string
	Signature  string
	LineNumber int
}

// UID flattens the compound symbol key into a single unique string.
func (s Symbol) UID() string {
	return fmt.Sprintf("%s:%s:%d", s.FilePath, s.Name, s.LineNumber)
}

func (s Symbol) Properties() map[string]any {
	return map[string]any{
		"uid":         s.UID(),
		"file_path":   s.FilePath,
		"name":        s.Name,
		"type":        s.Type,
		"signature":   s.Signature,
		"line_number": s.LineNumber,
	}
}

// Library is an external dependency declared in a manifest or resolved
// from an import statement. ManifestSources accumulates across manifests.
type Library struct {
	Name            string
	Language        string
	Version         string
	ManifestSources []string
}

// Requirement is either parsed from a requirement id pattern
// (FR-xx-yy) or synthesized from a commit message.
type Requirement struct {
	ID          string
	Title       string
	Description string
	Type        string
}

// Sprint is a dated iteration parsed from sprint documents. Dates are
// kept verbatim as written in the document, never reformatted.
type Sprint struct {
	Number    int
	Name      string
	StartDate string
	EndDate   string
}

// Edge is a generic relationship row addressed by label:key pairs.
type Edge struct {
	FromLabel string
	FromKey   any
	ToLabel   string
	ToKey     any
	Rel       string
	Props     map[string]any
}
