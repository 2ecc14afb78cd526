package diagram

import (
	"fmt"
	"math"
	"strings"

	"github.com/matzehuels/topofeat/pkg/errors"
)

// Reason classifies why a pair is invalid.
type Reason string

const (
	ReasonNonFinite     Reason = "non-finite value"
	ReasonBirthAfterEnd Reason = "birth > death"
)

// Issue locates one invalid pair inside a collection.
type Issue struct {
	Diagram int
	Point   int
	Pair    Pair
	Reason  Reason
}

func (i Issue) String() string {
	return fmt.Sprintf("diagram %d, point %d (%g, %g): %s", i.Diagram, i.Point, i.Pair.Birth, i.Pair.Death, i.Reason)
}

// ValidationError lists every invalid pair found by [Validate].
type ValidationError struct {
	Issues []Issue
}

// maxListed caps how many issues Error spells out; Issues always holds all.
const maxListed = 10

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d invalid point(s)", len(e.Issues))
	for i, issue := range e.Issues {
		if i == maxListed {
			fmt.Fprintf(&b, "; and %d more", len(e.Issues)-maxListed)
			break
		}
		b.WriteString("; ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// Diagrams returns the sorted, de-duplicated indices of the offending diagrams.
func (e *ValidationError) Diagrams() []int {
	var out []int
	for _, issue := range e.Issues {
		if len(out) == 0 || out[len(out)-1] != issue.Diagram {
			out = append(out, issue.Diagram)
		}
	}
	return out
}

// CheckPair reports why p is invalid, or "" when it is valid.
func CheckPair(p Pair) Reason {
	if math.IsNaN(p.Birth) || math.IsInf(p.Birth, 0) || math.IsNaN(p.Death) || math.IsInf(p.Death, 0) {
		return ReasonNonFinite
	}
	if p.Birth > p.Death {
		return ReasonBirthAfterEnd
	}
	return ""
}

// Validate checks every pair of every diagram in c. It does not stop at the
// first problem: the returned error is an [errors.ErrCodeInvalidDiagram]
// wrapping a *ValidationError with all issues in diagram/point order.
func Validate(c Collection) error {
	var issues []Issue
	for i, d := range c.Diagrams {
		issues = appendIssues(issues, i, d)
	}
	if len(issues) == 0 {
		return nil
	}
	verr := &ValidationError{Issues: issues}
	return errors.Wrap(errors.ErrCodeInvalidDiagram, verr, "invalid diagrams %v", verr.Diagrams())
}

// ValidateDiagram checks a single diagram. Issues report Diagram index 0.
func ValidateDiagram(d Diagram) error {
	return Validate(Collection{Diagrams: []Diagram{d}})
}

func appendIssues(issues []Issue, idx int, d Diagram) []Issue {
	for j, p := range d {
		if reason := CheckPair(p); reason != "" {
			issues = append(issues, Issue{Diagram: idx, Point: j, Pair: p, Reason: reason})
		}
	}
	return issues
}
