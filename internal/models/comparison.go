package models

import "time"

type ComparisonStatus string

const (
	ComparisonStatusPending    ComparisonStatus = "pending"
	ComparisonStatusProcessing ComparisonStatus = "processing"
	ComparisonStatusCompleted  ComparisonStatus = "completed"
	ComparisonStatusFailed     ComparisonStatus = "failed"
)

// Severity is the scorer's coarse classification of detected change.
type Severity string

const (
	SeverityNoChange  Severity = "NO_CHANGE"
	SeverityExcellent Severity = "EXCELLENT"
	SeverityGood      Severity = "GOOD"
	SeverityModerate  Severity = "MODERATE"
	SeverityPoor      Severity = "POOR"
	SeverityCritical  Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityNoChange, SeverityExcellent, SeverityGood, SeverityModerate, SeverityPoor, SeverityCritical:
		return true
	}
	return false
}

// ImageRef snapshots the identity of an image at the moment a comparison
// consumed it, so the comparison stays meaningful even if the source catalog
// record is deleted later.
type ImageRef struct {
	ObjectKey  string     `json:"objectKey"`
	ImageID    string     `json:"imageId"`
	Filename   string     `json:"filename"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
}

// Analysis carries the scorer's numeric breakdown plus the derived verdict.
type Analysis struct {
	DifferencePercentage float64 `json:"differencePercentage"`
	AffectedArea         float64 `json:"affectedArea"`
	ContourCount         int     `json:"contourCount"`
	ChangeDetected       bool    `json:"changeDetected"`
	Message              string  `json:"message,omitempty"`
	Recommendations      string  `json:"recommendations"`
}

type ComparisonError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Comparison is one scoring run of a baseline/current pair. Created in
// processing status before the scorer is invoked, then moved exactly once to
// completed or failed. Notes is the only field mutable after that.
type Comparison struct {
	ID                 string
	Location           string
	StructureComponent string
	Baseline           ImageRef
	Current            ImageRef
	Difference         *ImageRef
	SSIMScore          float64
	Severity           Severity
	Analysis           Analysis
	ProcessingTimeMs   int64
	Status             ComparisonStatus
	AlertFlag          bool
	Error              *ComparisonError
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ComparisonFilter narrows comparison list queries. Nil pointer fields mean
// "any"; AlertFlag is a pointer so false can be filtered on explicitly.
type ComparisonFilter struct {
	Location  string
	Severity  Severity
	Status    ComparisonStatus
	AlertFlag *bool
}

// Recommendation maps a severity to its fixed conservation advice. The
// identical-image case is handled by the caller before consulting the table.
func Recommendation(severity Severity) string {
	switch severity {
	case SeverityNoChange:
		return "No structural change detected. Images are identical. Structure is in excellent condition."
	case SeverityExcellent:
		return "No significant changes detected. Continue regular monitoring."
	case SeverityGood:
		return "Minor variations detected. No immediate action required. Schedule next inspection."
	case SeverityModerate:
		return "Moderate changes detected. Recommend detailed inspection within 3 months."
	case SeverityPoor:
		return "Significant structural changes detected. Professional assessment recommended within 1 month."
	case SeverityCritical:
		return "URGENT: Critical deterioration detected. Immediate professional intervention required."
	}
	return "Review required to determine appropriate action."
}

// RecommendationIdentical is the override used when the identical-image rule
// fires, regardless of any severity the scorer reported alongside.
func RecommendationIdentical() string {
	return Recommendation(SeverityNoChange)
}
