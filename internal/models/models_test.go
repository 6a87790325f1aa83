package models

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusNotStarted, StatusFailed, true},
		{StatusNotStarted, StatusCompleted, false},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusNotStarted, false},
		{StatusCompleted, StatusNotStarted, false},
		{StatusCompleted, StatusInProgress, true},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusInProgress, true},
		{StatusFailed, StatusNotStarted, false},
		{StatusInProgress, Status("DONE"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssignmentsOnlyIncludesSetFields(t *testing.T) {
	u := WorkItemUpdate{
		AnalysisStatus:   Ptr(StatusInProgress),
		AnalysisProgress: Ptr(40),
		LastModified:     Ptr("2026-01-01T00:00:00Z"),
	}

	got := u.Assignments()
	want := []Assignment{
		{AttrAnalysisStatus, "IN_PROGRESS"},
		{AttrAnalysisProgress, 40},
		{AttrLastModified, "2026-01-01T00:00:00Z"},
	}

	if len(got) != len(want) {
		t.Fatalf("got %d assignments, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assignment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestUpdateEmpty(t *testing.T) {
	if !(WorkItemUpdate{LastModified: Ptr("x")}).Empty() {
		t.Errorf("update with only lastModified should be empty")
	}
	if (WorkItemUpdate{TokenCount: Ptr(0)}).Empty() {
		t.Errorf("update with token count should not be empty")
	}
}

func TestUpdateValidate(t *testing.T) {
	tests := []struct {
		name    string
		u       WorkItemUpdate
		wantErr bool
	}{
		{"valid", WorkItemUpdate{AnalysisStatus: Ptr(StatusCompleted), AnalysisProgress: Ptr(100)}, false},
		{"unknown status", WorkItemUpdate{IaCGenerationStatus: Ptr(Status("DONE"))}, true},
		{"progress above range", WorkItemUpdate{AnalysisProgress: Ptr(101)}, true},
		{"progress below range", WorkItemUpdate{IaCGenerationProgress: Ptr(-1)}, true},
		{"negative tokens", WorkItemUpdate{TokenCount: Ptr(-5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.u.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkItemDynamoAttributes(t *testing.T) {
	item := WorkItem{
		UserID:         "u1",
		FileID:         "f1",
		FileName:       "main.tf",
		UploadMode:     UploadModeSingleFile,
		AnalysisStatus: StatusNotStarted,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		t.Fatalf("MarshalMap: %v", err)
	}

	for _, key := range []string{"userId", "fileId", "fileName", "uploadMode", "analysisStatus"} {
		if _, ok := av[key]; !ok {
			t.Errorf("expected attribute %q not found", key)
		}
	}
	for _, key := range []string{"supportingDocumentId", "iacGeneratedFileType", "fileType"} {
		if _, ok := av[key]; ok {
			t.Errorf("empty attribute %q should be omitted", key)
		}
	}

	// Zero counters and false flags are real values, not absent ones.
	for _, key := range []string{"analysisProgress", "iacGenerationProgress", "tokenCount"} {
		n, ok := av[key].(*types.AttributeValueMemberN)
		if !ok || n.Value != "0" {
			t.Errorf("attribute %q = %#v, want N 0", key, av[key])
		}
	}
	for _, key := range []string{"exceedsTokenLimit", "supportingDocumentAdded"} {
		b, ok := av[key].(*types.AttributeValueMemberBOOL)
		if !ok || b.Value {
			t.Errorf("attribute %q = %#v, want BOOL false", key, av[key])
		}
	}
}

func TestParseUploadMode(t *testing.T) {
	if m, err := ParseUploadMode("ZIP_FILE"); err != nil || m != UploadModeZipFile {
		t.Errorf("ParseUploadMode(ZIP_FILE) = %q, %v", m, err)
	}
	if _, err := ParseUploadMode("TARBALL"); err == nil {
		t.Errorf("ParseUploadMode(TARBALL) returned nil error")
	}
	if !UploadModeZipFile.Packed() || UploadModeSingleFile.Packed() {
		t.Errorf("Packed() mismatch")
	}
}
