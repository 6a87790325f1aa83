package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/BerylCAtieno/iac-workitem-api/internal/keys"
	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

// StoreSupportingDocument attaches a document to a work item. The blob and
// its sidecar are written before the link fields are updated; a document that
// was linked before is removed once the new link is in place.
func (s *workItemService) StoreSupportingDocument(ctx context.Context, userID, mainFileID, fileName, fileType string, data []byte, description string) (string, error) {
	if err := s.check(userID, mainFileID); err != nil {
		return "", err
	}
	if fileName == "" {
		return "", utils.NewBadRequestError("File name is required")
	}
	if len(data) == 0 {
		return "", utils.NewBadRequestError("Supporting document is empty")
	}
	if int64(len(data)) > s.maxDocSize {
		return "", utils.NewBadRequestError(fmt.Sprintf("Supporting document exceeds the %s limit", humanize.Bytes(uint64(s.maxDocSize))))
	}

	item, err := s.GetWorkItem(ctx, userID, mainFileID)
	if err != nil {
		return "", err
	}
	previous := item.SupportingDocumentID

	now := s.now()
	docID := keys.SupportingDocumentID(mainFileID, fileName, now)
	layout := keys.Locations(userID, mainFileID)
	log := s.logger.With("user_id", userID, "file_id", mainFileID, "supporting_document_id", docID)

	sidecar, err := json.Marshal(models.SupportingDocument{
		ID:          docID,
		MainFileID:  mainFileID,
		FileName:    fileName,
		FileType:    fileType,
		Description: description,
		Size:        int64(len(data)),
		UploadDate:  now.Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Error("Failed to encode supporting document metadata", "error", err)
		return "", utils.NewInternalError("Failed to store supporting document")
	}

	blobKey := layout.SupportingDocument(docID)
	sidecarKey := layout.SupportingDocumentMetadata(docID)

	tx := newSaga(log)
	tx.add("supporting_document",
		func(ctx context.Context) error { return s.storage.Upload(ctx, blobKey, data, fileType) },
		func(ctx context.Context) error { return s.storage.DeleteMany(ctx, []string{blobKey}) })
	tx.add("supporting_document_metadata",
		func(ctx context.Context) error { return s.storage.Upload(ctx, sidecarKey, sidecar, contentTypeJSON) },
		func(ctx context.Context) error { return s.storage.DeleteMany(ctx, []string{sidecarKey}) })
	tx.add("link",
		func(ctx context.Context) error {
			_, err := s.applyUpdate(ctx, userID, mainFileID, models.WorkItemUpdate{
				SupportingDocumentID:          &docID,
				SupportingDocumentAdded:       models.Ptr(true),
				SupportingDocumentName:        &fileName,
				SupportingDocumentType:        &fileType,
				SupportingDocumentDescription: &description,
			})
			return err
		},
		nil)

	if err := tx.execute(ctx); err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return "", appErr
		}
		return "", s.upstream("Failed to store supporting document", err, "user_id", userID, "file_id", mainFileID)
	}

	if previous != "" && previous != docID {
		stale := []string{layout.SupportingDocument(previous), layout.SupportingDocumentMetadata(previous)}
		if err := s.storage.DeleteMany(ctx, stale); err != nil {
			log.Warn("Failed to delete superseded supporting document", "previous_id", previous, "error", err)
		} else {
			log.Info("Superseded supporting document deleted", "previous_id", previous)
		}
	}

	log.Info("Supporting document linked", "file_name", fileName, "size", len(data))
	return docID, nil
}

// GetSupportingDocument returns the linked supporting document. The requested
// id must match the one linked on the work item.
func (s *workItemService) GetSupportingDocument(ctx context.Context, userID, mainFileID, supportingDocID string) (*models.Content, error) {
	if err := s.check(userID, mainFileID, supportingDocID); err != nil {
		return nil, err
	}

	item, err := s.GetWorkItem(ctx, userID, mainFileID)
	if err != nil {
		return nil, err
	}
	if !item.SupportingDocumentAdded || item.SupportingDocumentID == "" {
		return nil, utils.NewNotFoundError("No supporting document linked to this work item")
	}
	if item.SupportingDocumentID != supportingDocID {
		s.logger.Warn("Supporting document id mismatch",
			"user_id", userID,
			"file_id", mainFileID,
			"requested_id", supportingDocID)
		return nil, utils.NewValidationMismatchError("Supporting document id does not match the linked document")
	}

	obj, err := s.download(ctx, keys.Locations(userID, mainFileID).SupportingDocument(supportingDocID),
		"Supporting document not found", "Failed to retrieve supporting document", userID, mainFileID)
	if err != nil {
		return nil, err
	}

	content := viewContent(obj)
	if content.ContentType == "" {
		content.ContentType = item.SupportingDocumentType
	}
	return content, nil
}
