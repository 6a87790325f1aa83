package models

import "fmt"

type UploadMode string

const (
	UploadModeSingleFile    UploadMode = "SINGLE_FILE"
	UploadModeMultipleFiles UploadMode = "MULTIPLE_FILES"
	UploadModeZipFile       UploadMode = "ZIP_FILE"
)

func (m UploadMode) Valid() bool {
	switch m {
	case UploadModeSingleFile, UploadModeMultipleFiles, UploadModeZipFile:
		return true
	}
	return false
}

// Packed reports whether uploads in this mode have a packed content artifact.
func (m UploadMode) Packed() bool {
	return m == UploadModeMultipleFiles || m == UploadModeZipFile
}

// WorkItem is the metadata record of one uploaded analysis job. The same
// struct is the SQLite row, the DynamoDB item and the JSON snapshot.
type WorkItem struct {
	UserID     string     `json:"userId" db:"user_id" dynamodbav:"userId"`
	FileID     string     `json:"fileId" db:"file_id" dynamodbav:"fileId"`
	FileName   string     `json:"fileName" db:"file_name" dynamodbav:"fileName,omitempty"`
	FileType   string     `json:"fileType" db:"file_type" dynamodbav:"fileType,omitempty"`
	UploadMode UploadMode `json:"uploadMode" db:"upload_mode" dynamodbav:"uploadMode,omitempty"`

	AnalysisStatus        Status `json:"analysisStatus" db:"analysis_status" dynamodbav:"analysisStatus,omitempty"`
	AnalysisProgress      int    `json:"analysisProgress" db:"analysis_progress" dynamodbav:"analysisProgress"`
	IaCGenerationStatus   Status `json:"iacGenerationStatus" db:"iac_generation_status" dynamodbav:"iacGenerationStatus,omitempty"`
	IaCGenerationProgress int    `json:"iacGenerationProgress" db:"iac_generation_progress" dynamodbav:"iacGenerationProgress"`

	TokenCount        int  `json:"tokenCount" db:"token_count" dynamodbav:"tokenCount"`
	ExceedsTokenLimit bool `json:"exceedsTokenLimit" db:"exceeds_token_limit" dynamodbav:"exceedsTokenLimit"`

	SupportingDocumentID          string `json:"supportingDocumentId,omitempty" db:"supporting_document_id" dynamodbav:"supportingDocumentId,omitempty"`
	SupportingDocumentAdded       bool   `json:"supportingDocumentAdded" db:"supporting_document_added" dynamodbav:"supportingDocumentAdded"`
	SupportingDocumentName        string `json:"supportingDocumentName,omitempty" db:"supporting_document_name" dynamodbav:"supportingDocumentName,omitempty"`
	SupportingDocumentType        string `json:"supportingDocumentType,omitempty" db:"supporting_document_type" dynamodbav:"supportingDocumentType,omitempty"`
	SupportingDocumentDescription string `json:"supportingDocumentDescription,omitempty" db:"supporting_document_description" dynamodbav:"supportingDocumentDescription,omitempty"`

	IaCGeneratedFileType string `json:"iacGeneratedFileType,omitempty" db:"iac_generated_file_type" dynamodbav:"iacGeneratedFileType,omitempty"`

	UploadDate   string `json:"uploadDate" db:"upload_date" dynamodbav:"uploadDate,omitempty"`
	LastModified string `json:"lastModified" db:"last_modified" dynamodbav:"lastModified,omitempty"`
	S3Prefix     string `json:"s3Prefix" db:"s3_prefix" dynamodbav:"s3Prefix,omitempty"`
}

// UploadResult is returned by the packed upload paths.
type UploadResult struct {
	FileID            string `json:"fileId"`
	TokenCount        int    `json:"tokenCount"`
	ExceedsTokenLimit bool   `json:"exceedsTokenLimit"`
}

// Content is a blob read back from the object store. Data holds the raw
// bytes; Text holds the display form (UTF-8 text or a data URI) when the
// content was requested for in-app viewing.
type Content struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
	Text        string `json:"content,omitempty"`
	// Packed is true when the packed artifact was served in place of the
	// original upload.
	Packed bool `json:"packed"`
}

// SupportingDocument is the sidecar stored next to a supporting document blob.
type SupportingDocument struct {
	ID          string `json:"supportingDocumentId"`
	MainFileID  string `json:"mainFileId"`
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	Description string `json:"description,omitempty"`
	Size        int64  `json:"size"`
	UploadDate  string `json:"uploadDate"`
}

func (m UploadMode) String() string {
	return string(m)
}

func ParseUploadMode(s string) (UploadMode, error) {
	m := UploadMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown upload mode %q", s)
	}
	return m, nil
}
