package metadata

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Identifier is a typed identifier attached to a descriptive record. The one
// typed "local" is the call number.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"identifier"`
}

// Name is an agent linked to a record with a role such as "creator".
type Name struct {
	Title string `json:"title"`
	Role  string `json:"role"`
}

// Subject is a subject heading used as a search facet.
type Subject struct {
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
}

// Note is a typed free-text note. Abstracts are notes typed "abstract".
type Note struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Part is one ordered component of a compound object. Title holds the file
// name the part is matched on.
type Part struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title"`
	Order   string `json:"order"`
	Caption string `json:"caption,omitempty"`
}

// Date is a date statement on a record.
type Date struct {
	Expression string `json:"expression,omitempty"`
	Begin      string `json:"begin,omitempty"`
	End        string `json:"end,omitempty"`
}

// Extent describes the physical or digital extent of a record.
type Extent struct {
	Number string `json:"number"`
	Type   string `json:"extent_type"`
}

// Record is a descriptive-metadata record.
type Record struct {
	URI         string       `json:"uri"`
	Title       string       `json:"title"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
	Names       []Name       `json:"names,omitempty"`
	Subjects    []Subject    `json:"subjects,omitempty"`
	Notes       []Note       `json:"notes,omitempty"`
	Parts       []Part       `json:"parts,omitempty"`
	IsCompound  bool         `json:"is_compound"`
	Dates       []Date       `json:"dates,omitempty"`
	Extents     []Extent     `json:"extents,omitempty"`

	// Raw is the document exactly as the repository returned it.
	Raw json.RawMessage `json:"-"`
}

var fold = cases.Fold()

func sameWord(a, b string) bool {
	return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
}

// Identifier returns the first identifier of the given type.
func (r *Record) Identifier(kind string) (string, bool) {
	for _, id := range r.Identifiers {
		if sameWord(id.Type, kind) && strings.TrimSpace(id.Value) != "" {
			return strings.TrimSpace(id.Value), true
		}
	}
	return "", false
}

// CallNumber returns the identifier typed "local".
func (r *Record) CallNumber() string {
	value, _ := r.Identifier("local")
	return value
}

// NamesWithRole returns the titles of names linked with role.
func (r *Record) NamesWithRole(role string) []string {
	var out []string
	for _, name := range r.Names {
		if sameWord(name.Role, role) && strings.TrimSpace(name.Title) != "" {
			out = append(out, strings.TrimSpace(name.Title))
		}
	}
	return out
}

// NotesOfType returns the content of notes with the given type.
func (r *Record) NotesOfType(kind string) []string {
	var out []string
	for _, note := range r.Notes {
		if sameWord(note.Type, kind) && strings.TrimSpace(note.Content) != "" {
			out = append(out, strings.TrimSpace(note.Content))
		}
	}
	return out
}

// SortedParts returns the parts ordered by numeric order, falling back to
// lexical order for non-numeric values.
func (r *Record) SortedParts() []Part {
	parts := append([]Part(nil), r.Parts...)
	sort.SliceStable(parts, func(i, j int) bool {
		a, errA := strconv.Atoi(strings.TrimSpace(parts[i].Order))
		b, errB := strconv.Atoi(strings.TrimSpace(parts[j].Order))
		if errA == nil && errB == nil {
			return a < b
		}
		return parts[i].Order < parts[j].Order
	})
	return parts
}
