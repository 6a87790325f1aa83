package models

import "fmt"

// Attribute names of the mutable work item fields. These are the DynamoDB
// attribute names and JSON keys; the SQLite repository maps them to columns.
const (
	AttrAnalysisStatus                = "analysisStatus"
	AttrAnalysisProgress              = "analysisProgress"
	AttrIaCGenerationStatus           = "iacGenerationStatus"
	AttrIaCGenerationProgress         = "iacGenerationProgress"
	AttrTokenCount                    = "tokenCount"
	AttrExceedsTokenLimit             = "exceedsTokenLimit"
	AttrSupportingDocumentID          = "supportingDocumentId"
	AttrSupportingDocumentAdded       = "supportingDocumentAdded"
	AttrSupportingDocumentName        = "supportingDocumentName"
	AttrSupportingDocumentType        = "supportingDocumentType"
	AttrSupportingDocumentDescription = "supportingDocumentDescription"
	AttrIaCGeneratedFileType          = "iacGeneratedFileType"
	AttrLastModified                  = "lastModified"
)

// WorkItemUpdate is a partial update. Nil fields are left untouched.
type WorkItemUpdate struct {
	AnalysisStatus                *Status `json:"analysisStatus,omitempty"`
	AnalysisProgress              *int    `json:"analysisProgress,omitempty"`
	IaCGenerationStatus           *Status `json:"iacGenerationStatus,omitempty"`
	IaCGenerationProgress         *int    `json:"iacGenerationProgress,omitempty"`
	TokenCount                    *int    `json:"tokenCount,omitempty"`
	SupportingDocumentID          *string `json:"supportingDocumentId,omitempty"`
	SupportingDocumentAdded       *bool   `json:"supportingDocumentAdded,omitempty"`
	SupportingDocumentName        *string `json:"supportingDocumentName,omitempty"`
	SupportingDocumentType        *string `json:"supportingDocumentType,omitempty"`
	SupportingDocumentDescription *string `json:"supportingDocumentDescription,omitempty"`
	IaCGeneratedFileType          *string `json:"iacGeneratedFileType,omitempty"`

	// Set by the service only; client input is discarded.
	ExceedsTokenLimit *bool   `json:"-"`
	LastModified      *string `json:"-"`

	// Preconditions checked atomically with the write.
	IfAnalysisStatus      *Status `json:"-"`
	IfIaCGenerationStatus *Status `json:"-"`
}

// Assignment is one attribute written by an update.
type Assignment struct {
	Attr  string
	Value any
}

// Assignments lists the attributes set by u in a fixed order.
func (u WorkItemUpdate) Assignments() []Assignment {
	var out []Assignment
	add := func(attr string, set bool, value func() any) {
		if set {
			out = append(out, Assignment{Attr: attr, Value: value()})
		}
	}

	add(AttrAnalysisStatus, u.AnalysisStatus != nil, func() any { return string(*u.AnalysisStatus) })
	add(AttrAnalysisProgress, u.AnalysisProgress != nil, func() any { return *u.AnalysisProgress })
	add(AttrIaCGenerationStatus, u.IaCGenerationStatus != nil, func() any { return string(*u.IaCGenerationStatus) })
	add(AttrIaCGenerationProgress, u.IaCGenerationProgress != nil, func() any { return *u.IaCGenerationProgress })
	add(AttrTokenCount, u.TokenCount != nil, func() any { return *u.TokenCount })
	add(AttrExceedsTokenLimit, u.ExceedsTokenLimit != nil, func() any { return *u.ExceedsTokenLimit })
	add(AttrSupportingDocumentID, u.SupportingDocumentID != nil, func() any { return *u.SupportingDocumentID })
	add(AttrSupportingDocumentAdded, u.SupportingDocumentAdded != nil, func() any { return *u.SupportingDocumentAdded })
	add(AttrSupportingDocumentName, u.SupportingDocumentName != nil, func() any { return *u.SupportingDocumentName })
	add(AttrSupportingDocumentType, u.SupportingDocumentType != nil, func() any { return *u.SupportingDocumentType })
	add(AttrSupportingDocumentDescription, u.SupportingDocumentDescription != nil, func() any { return *u.SupportingDocumentDescription })
	add(AttrIaCGeneratedFileType, u.IaCGeneratedFileType != nil, func() any { return *u.IaCGeneratedFileType })
	add(AttrLastModified, u.LastModified != nil, func() any { return *u.LastModified })

	return out
}

// Empty reports whether u assigns nothing a caller asked for.
func (u WorkItemUpdate) Empty() bool {
	for _, a := range u.Assignments() {
		if a.Attr != AttrLastModified && a.Attr != AttrExceedsTokenLimit {
			return false
		}
	}
	return true
}

// Validate checks status values and progress ranges.
func (u WorkItemUpdate) Validate() error {
	if u.AnalysisStatus != nil && !u.AnalysisStatus.Valid() {
		return fmt.Errorf("unknown analysis status %q", *u.AnalysisStatus)
	}
	if u.IaCGenerationStatus != nil && !u.IaCGenerationStatus.Valid() {
		return fmt.Errorf("unknown IaC generation status %q", *u.IaCGenerationStatus)
	}
	if u.AnalysisProgress != nil && (*u.AnalysisProgress < 0 || *u.AnalysisProgress > 100) {
		return fmt.Errorf("analysis progress %d out of range 0-100", *u.AnalysisProgress)
	}
	if u.IaCGenerationProgress != nil && (*u.IaCGenerationProgress < 0 || *u.IaCGenerationProgress > 100) {
		return fmt.Errorf("IaC generation progress %d out of range 0-100", *u.IaCGenerationProgress)
	}
	if u.TokenCount != nil && *u.TokenCount < 0 {
		return fmt.Errorf("token count must not be negative")
	}
	return nil
}

// Ptr returns a pointer to v. Convenient for building updates.
func Ptr[T any](v T) *T {
	return &v
}
