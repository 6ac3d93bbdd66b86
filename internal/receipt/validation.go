package receipt

// Severity of a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a single problem found while validating a record
type Issue struct {
	Severity       Severity `json:"severity"`
	Field          string   `json:"field"`
	Message        string   `json:"message"`
	CurrentValue   any      `json:"currentValue"`
	SuggestedValue any      `json:"suggestedValue,omitempty"`
	AutoFixable    bool     `json:"autoFixable"`
	Rule           string   `json:"rule,omitempty"`
	Math           bool     `json:"-"` // arithmetic consistency problem
}

// Validation is the outcome of running the validator over a record
type Validation struct {
	Passed      bool    `json:"passed"`
	NeedsReview bool    `json:"needs_review"`
	Confidence  float64 `json:"confidence"`
	Issues      []Issue `json:"issues"`
	Fixes       []Issue `json:"fixes,omitempty"` // issues resolved by auto-fix or recovery
}

// Errors counts the issues with error severity
func (v Validation) Errors() int {
	n := 0
	for _, issue := range v.Issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}
