// Package stage provides the named-stage store that pipeline steps read
// from and write to. Stages are declared up front in recipe settings,
// populated at most once when protected, and hand out deep copies so a
// processor can never corrupt another step's view of the data.
package stage

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// Error reports a stage access failure: undeclared reference, empty read,
// or a protection violation.
type Error struct {
	Stage string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %q: %s", e.Stage, e.Msg)
}

// Reserved names that would collide with the implicit external
// input/output contexts.
var reservedNames = map[string]bool{
	"current":   true,
	"input":     true,
	"output":    true,
	"temp":      true,
	"temporary": true,
}

// Decl is a stage declaration from recipe settings.
type Decl struct {
	Name        string
	Description string
	Protected   bool
}

// Metadata describes a populated stage.
type Metadata struct {
	Rows        int
	Cols        int
	Description string
	StepName    string
	CreatedAt   time.Time
	Protected   bool
	UsageCount  int
}

// SaveOptions carry per-save context.
type SaveOptions struct {
	Description string
	StepName    string
	// ConfirmReplacement permits overwriting a protected stage that already
	// holds data. Maps to the step's confirm_stage_replacement field.
	ConfirmReplacement bool
}

// Store holds all stages for a single run. It is not safe for concurrent
// use; pipeline execution is strictly sequential.
type Store struct {
	log      *slog.Logger
	declared map[string]Decl
	order    []string
	data     map[string]*table.Table
	meta     map[string]*Metadata

	lastSaved string
}

// NewStore creates an empty store. A nil logger falls back to slog.Default.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		log:      log,
		declared: make(map[string]Decl),
		data:     make(map[string]*table.Table),
		meta:     make(map[string]*Metadata),
	}
}

// Declare registers a stage before first use.
func (s *Store) Declare(d Decl) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return &Error{Stage: d.Name, Msg: "stage name cannot be empty"}
	}
	if reservedNames[strings.ToLower(name)] {
		return &Error{Stage: name, Msg: "stage name is reserved"}
	}
	if _, ok := s.declared[name]; ok {
		return &Error{Stage: name, Msg: "stage already declared"}
	}
	s.declared[name] = d
	s.order = append(s.order, name)
	return nil
}

// Declared reports whether the stage was declared.
func (s *Store) Declared(name string) bool {
	_, ok := s.declared[name]
	return ok
}

// Protected reports whether the stage was declared protected.
func (s *Store) Protected(name string) bool {
	return s.declared[name].Protected
}

// Exists reports whether the stage holds data.
func (s *Store) Exists(name string) bool {
	_, ok := s.data[name]
	return ok
}

// Save stores a deep copy of the table under the stage name.
func (s *Store) Save(name string, t *table.Table, opts SaveOptions) error {
	if !s.Declared(name) {
		return &Error{Stage: name, Msg: s.undeclaredHint()}
	}
	if t == nil {
		return &Error{Stage: name, Msg: "cannot save nil data"}
	}
	if s.Protected(name) && s.Exists(name) {
		if !opts.ConfirmReplacement {
			return &Error{Stage: name, Msg: "protected stage cannot be overwritten; set confirm_stage_replacement: true to override"}
		}
		s.log.Warn("overwriting protected stage with explicit confirmation", "stage", name)
	}
	s.data[name] = t.Clone()
	usage := 0
	if prev, ok := s.meta[name]; ok {
		usage = prev.UsageCount
	}
	s.meta[name] = &Metadata{
		Rows:        t.NumRows(),
		Cols:        t.NumCols(),
		Description: opts.Description,
		StepName:    opts.StepName,
		CreatedAt:   time.Now(),
		Protected:   s.Protected(name),
		UsageCount:  usage,
	}
	s.lastSaved = name
	s.log.Info("stage saved", "stage", name, "rows", t.NumRows(), "cols", t.NumCols())
	return nil
}

// LastSaved returns the name of the most recently saved stage, or "" when
// nothing has been saved yet.
func (s *Store) LastSaved() string {
	return s.lastSaved
}

// Load returns a deep copy of the stage data.
func (s *Store) Load(name string) (*table.Table, error) {
	if !s.Declared(name) {
		return nil, &Error{Stage: name, Msg: s.undeclaredHint()}
	}
	t, ok := s.data[name]
	if !ok {
		msg := "stage empty: declared but no step has saved data to it yet"
		if hint := s.suggest(name); hint != "" {
			msg += "; " + hint
		}
		return nil, &Error{Stage: name, Msg: msg}
	}
	s.meta[name].UsageCount++
	s.log.Info("stage loaded", "stage", name, "rows", t.NumRows(), "usage", s.meta[name].UsageCount)
	return t.Clone(), nil
}

// Meta returns metadata for a populated stage.
func (s *Store) Meta(name string) (Metadata, bool) {
	m, ok := s.meta[name]
	if !ok {
		return Metadata{}, false
	}
	return *m, true
}

// DeclaredNames returns declared stage names in declaration order.
func (s *Store) DeclaredNames() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// PopulatedNames returns the names of stages holding data, sorted.
func (s *Store) PopulatedNames() []string {
	var out []string
	for name := range s.data {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// UnusedStages returns populated stages that were never loaded.
func (s *Store) UnusedStages() []string {
	var out []string
	for name, m := range s.meta {
		if _, ok := s.data[name]; ok && m.UsageCount == 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Summary describes the store for the run report.
type Summary struct {
	Declared  int
	Populated int
	Unused    []string
	Protected []string
}

// Summarize builds the completion-report view of the store.
func (s *Store) Summarize() Summary {
	var protected []string
	for _, name := range s.order {
		if s.declared[name].Protected {
			protected = append(protected, name)
		}
	}
	return Summary{
		Declared:  len(s.declared),
		Populated: len(s.data),
		Unused:    s.UnusedStages(),
		Protected: protected,
	}
}

func (s *Store) undeclaredHint() string {
	if len(s.order) == 0 {
		return "stage not declared; add it to settings.stages"
	}
	return fmt.Sprintf("stage not declared; declared stages: %s", strings.Join(s.order, ", "))
}

// suggest finds declared names that look like a typo of the target.
func (s *Store) suggest(target string) string {
	var hits []string
	lt := strings.ToLower(target)
	for _, name := range s.PopulatedNames() {
		ln := strings.ToLower(name)
		if strings.Contains(ln, lt) || strings.Contains(lt, ln) {
			hits = append(hits, name)
			continue
		}
		if abs(len(ln)-len(lt)) <= 2 && editsWithin(ln, lt, 2) {
			hits = append(hits, name)
		}
	}
	if len(hits) == 0 {
		return ""
	}
	if len(hits) > 3 {
		hits = hits[:3]
	}
	return "did you mean: " + strings.Join(hits, ", ")
}

func editsWithin(a, b string, n int) bool {
	diffs := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			diffs++
		}
	}
	return diffs <= n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
