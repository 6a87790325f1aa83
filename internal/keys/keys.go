// Package keys derives work item identities and the object store layout
// rooted at "{userId}/{fileId}".
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	metadataObject        = "metadata.json"
	originalContentObject = "original_content"
	packedContentObject   = "packed_content"
	analysisResultsObject = "analysis/analysis_results.json"
	iacTemplatePrefix     = "iac_templates/generated_template."
	supportingDocsSegment = "supporting_documents/"
	sidecarSuffix         = "_metadata.json"

	supportingDocIDPrefix = "supporting_doc"
)

// Layout is the set of object keys belonging to one work item.
type Layout struct {
	Root            string
	Metadata        string
	OriginalContent string
	AnalysisResults string
	PackedContent   string
}

// Locations maps (userID, fileID) to the work item's storage keys.
func Locations(userID, fileID string) Layout {
	root := userID + "/" + fileID
	return Layout{
		Root:            root,
		Metadata:        root + "/" + metadataObject,
		OriginalContent: root + "/" + originalContentObject,
		AnalysisResults: root + "/" + analysisResultsObject,
		PackedContent:   root + "/" + packedContentObject,
	}
}

// Prefix is the listing prefix covering every object of the work item. The
// trailing slash keeps "u/f1" from matching "u/f10".
func (l Layout) Prefix() string {
	return l.Root + "/"
}

func (l Layout) IaCDocument(ext string) string {
	return l.Root + "/" + iacTemplatePrefix + ext
}

func (l Layout) SupportingDocument(docID string) string {
	return l.Root + "/" + supportingDocsSegment + docID
}

func (l Layout) SupportingDocumentMetadata(docID string) string {
	return l.Root + "/" + supportingDocsSegment + docID + sidecarSuffix
}

// ValidateID rejects identifiers that would break the key layout.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier is empty")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("identifier %q contains a path separator", id)
	}
	return nil
}

// UserIDHash returns the stable user id for an email address. Case and
// surrounding whitespace do not change the result.
func UserIDHash(email string) string {
	return hashHex(strings.ToLower(strings.TrimSpace(email)))
}

// FileID derives a work item id from the uploaded file name and the
// creation time at nanosecond resolution.
func FileID(fileName string, createdAt time.Time) string {
	return hashHex(fileName + strconv.FormatInt(createdAt.UnixNano(), 10))
}

// SupportingDocumentID derives the id of a supporting document attached to
// mainFileID.
func SupportingDocumentID(mainFileID, fileName string, createdAt time.Time) string {
	return hashHex(supportingDocIDPrefix + mainFileID + fileName + strconv.FormatInt(createdAt.UnixNano(), 10))
}

// IaCExtension maps a generated template type to its stored file extension.
func IaCExtension(fileType string) string {
	t := strings.ToLower(fileType)
	switch {
	case strings.Contains(t, "yaml"):
		return "yaml"
	case strings.Contains(t, "json"):
		return "json"
	default:
		return "tf"
	}
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
