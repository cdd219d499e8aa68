package models

// Severity ranks validation issues. A critical issue makes the update invalid.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IssueKind is the typed class of a validation issue.
type IssueKind string

const (
	IssueFormat             IssueKind = "format"
	IssueRange              IssueKind = "range"
	IssueStaleness          IssueKind = "staleness"
	IssueOutlier            IssueKind = "outlier"
	IssueCrossSource        IssueKind = "cross_source"
	IssueConsensusDeviation IssueKind = "consensus_deviation"
)

// ValidationIssue is one typed problem found in an update.
type ValidationIssue struct {
	Kind     IssueKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Field    string    `json:"field"`
	Message  string    `json:"message"`
}

// ValidationResult is the full verdict for one update. Confidence starts at
// the input confidence and is only ever reduced by issues; IsValid is false
// exactly when a critical issue is present. Data-quality problems are values
// here, never Go errors.
type ValidationResult struct {
	IsValid        bool              `json:"is_valid"`
	Errors         []ValidationIssue `json:"errors,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	Confidence     float64           `json:"confidence"`
	AdjustedUpdate *PriceUpdate      `json:"adjusted_update,omitempty"`
}

// HasCritical reports whether any recorded issue is critical.
func (r *ValidationResult) HasCritical() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
