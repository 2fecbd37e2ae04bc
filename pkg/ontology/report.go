package ontology

import (
	"fmt"
	"sort"
	"time"
)

// Category classifies a compile diagnostic.
type Category string

// Diagnostic categories. Schema, reference, conflict, and structural
// violations are fatal for the whole run; duplicates are resolved by
// priority; applicability violations are fatal per draft and abort the run
// only past the configured threshold.
const (
	CategorySchema        Category = "schema"
	CategoryReference     Category = "reference"
	CategoryConflict      Category = "conflict"
	CategoryStructural    Category = "structural"
	CategoryDuplicate     Category = "duplicate"
	CategoryApplicability Category = "applicability"
)

// Severity captures how a violation affects the run.
type Severity string

// Violation severities determine publish behavior and logging.
const (
	// SeverityBlock prevents the artifact from being published.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but does not block publishing.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Locator points a diagnostic back at its source record.
type Locator struct {
	File   string `json:"file,omitempty"`
	Record int    `json:"record,omitempty"`
	ID     string `json:"id,omitempty"`
}

func (l Locator) String() string {
	switch {
	case l.File == "" && l.ID == "":
		return "<unknown>"
	case l.File == "":
		return l.ID
	case l.ID == "":
		return fmt.Sprintf("%s#%d", l.File, l.Record)
	default:
		return fmt.Sprintf("%s#%d (%s)", l.File, l.Record, l.ID)
	}
}

// Violation reports one failed validation with enough context to fix the
// offending record without re-running to discover the next error.
type Violation struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Locator  Locator  `json:"locator,omitempty"`
}

// Collision records a duplicate-id resolution between two drafts.
type Collision struct {
	ID      string     `json:"id"`
	Kept    Provenance `json:"kept"`
	Dropped Provenance `json:"dropped"`
	Detail  string     `json:"detail,omitempty"`
}

// Report aggregates every diagnostic produced by one compiler run.
type Report struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Counts     map[string]int   `json:"counts"`
	Violations []Violation      `json:"violations,omitempty"`
	Collisions []Collision      `json:"collisions,omitempty"`
	Errors     map[Category]int `json:"errors_by_category"`
}

// NewReport constructs an empty report for the given run id.
func NewReport(runID string) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Counts:    make(map[string]int),
		Errors:    make(map[Category]int),
	}
}

// Add appends a violation and bumps its category counter.
func (r *Report) Add(v Violation) {
	r.Violations = append(r.Violations, v)
	if v.Severity == SeverityBlock {
		r.Errors[v.Category]++
	}
}

// AddAll appends every violation from vs.
func (r *Report) AddAll(vs []Violation) {
	for _, v := range vs {
		r.Add(v)
	}
}

// Count records an artifact statistic (node totals, edge totals, ...).
func (r *Report) Count(key string, n int) {
	r.Counts[key] = n
}

// HasFatal reports whether any blocking violation in a fatal category was
// recorded. Duplicate collisions never block; applicability violations block
// only when marked so by the generator's threshold check.
func (r *Report) HasFatal() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Sorted returns the violations ordered by category, locator, and message so
// report serialization is deterministic.
func (r *Report) Sorted() []Violation {
	out := make([]Violation, len(r.Violations))
	copy(out, r.Violations)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Locator.String() != out[j].Locator.String() {
			return out[i].Locator.String() < out[j].Locator.String()
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// CompileError is returned when a run ends with blocking violations. The
// artifact is never published in that case.
type CompileError struct {
	Report *Report
}

func (e *CompileError) Error() string {
	n := 0
	for _, v := range e.Report.Violations {
		if v.Severity == SeverityBlock {
			n++
		}
	}
	return fmt.Sprintf("compile blocked by %d violation(s)", n)
}
