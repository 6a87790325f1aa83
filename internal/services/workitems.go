package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/BerylCAtieno/iac-workitem-api/internal/config"
	"github.com/BerylCAtieno/iac-workitem-api/internal/extractor"
	"github.com/BerylCAtieno/iac-workitem-api/internal/keys"
	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
	"github.com/BerylCAtieno/iac-workitem-api/internal/packer"
	"github.com/BerylCAtieno/iac-workitem-api/internal/repository"
	"github.com/BerylCAtieno/iac-workitem-api/internal/storage"
	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeZip    = "application/zip"
	contentTypePacked = "text/plain; charset=utf-8"

	multipleFilesName = "multiple_files.zip"
)

type WorkItemService interface {
	CreateWorkItem(ctx context.Context, userID, fileName, fileType string, data []byte, mode models.UploadMode) (*models.WorkItem, error)
	HandleSingleFileUpload(ctx context.Context, userID, fileName, fileType string, data []byte) (*models.UploadResult, error)
	HandleMultipleFilesUpload(ctx context.Context, userID string, files []packer.File) (*models.UploadResult, error)
	HandleZipUpload(ctx context.Context, userID, fileName string, data []byte) (*models.UploadResult, error)

	GetWorkItem(ctx context.Context, userID, fileID string) (*models.WorkItem, error)
	ListWorkItems(ctx context.Context, userID string) ([]*models.WorkItem, error)
	UpdateWorkItem(ctx context.Context, userID, fileID string, upd models.WorkItemUpdate) (*models.WorkItem, error)
	ResetWorkItem(ctx context.Context, userID, fileID string) (*models.WorkItem, error)
	DeleteWorkItem(ctx context.Context, userID, fileID string) error

	StoreOriginalContent(ctx context.Context, userID, fileID string, data []byte, contentType string) error
	GetOriginalContent(ctx context.Context, userID, fileID string, forDownload bool) (*models.Content, error)
	StorePackedContent(ctx context.Context, userID, fileID, packed string) error
	GetPackedContent(ctx context.Context, userID, fileID string) (string, error)
	StoreAnalysisResults(ctx context.Context, userID, fileID string, results json.RawMessage) error
	GetAnalysisResults(ctx context.Context, userID, fileID string) (json.RawMessage, error)
	StoreIaCDocument(ctx context.Context, userID, fileID, content, fileType string) error
	GetIaCDocument(ctx context.Context, userID, fileID, ext string) (string, error)

	StoreSupportingDocument(ctx context.Context, userID, mainFileID, fileName, fileType string, data []byte, description string) (string, error)
	GetSupportingDocument(ctx context.Context, userID, mainFileID, supportingDocID string) (*models.Content, error)
}

type workItemService struct {
	repo       repository.Repository
	storage    storage.Storage
	packer     *packer.Packer
	logger     *utils.Logger
	enabled    bool
	tokenLimit int
	maxDocSize int64
	now        func() time.Time
}

func NewService(repo repository.Repository, store storage.Storage, cfg *config.Config, logger *utils.Logger) WorkItemService {
	return &workItemService{
		repo:       repo,
		storage:    store,
		packer:     packer.New(cfg.MaxFileSize, cfg.MaxTotalUnpackedSize),
		logger:     logger,
		enabled:    cfg.StorageEnabled,
		tokenLimit: cfg.TokenLimit,
		maxDocSize: cfg.MaxSupportingDocSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// check runs before every operation: a disabled service fails before any
// store is touched, and ids must be safe to embed in object keys.
func (s *workItemService) check(ids ...string) error {
	if !s.enabled {
		return utils.NewDisabledError()
	}
	for _, id := range ids {
		if err := keys.ValidateID(id); err != nil {
			return utils.NewBadRequestError("Invalid identifier")
		}
	}
	return nil
}

// upstream logs the cause of a store failure and returns the stable message.
func (s *workItemService) upstream(message string, err error, args ...any) error {
	s.logger.Error(message, append(args, "error", err)...)
	return utils.NewUpstreamError(message, err, storage.IsTransient(err) || repository.IsTransient(err))
}

func (s *workItemService) newWorkItem(userID, fileName, fileType string, mode models.UploadMode, tokenCount int) *models.WorkItem {
	now := s.now()
	fileID := keys.FileID(fileName, now)
	stamp := now.Format(time.RFC3339Nano)

	return &models.WorkItem{
		UserID:                userID,
		FileID:                fileID,
		FileName:              fileName,
		FileType:              fileType,
		UploadMode:            mode,
		AnalysisStatus:        models.StatusNotStarted,
		AnalysisProgress:      0,
		IaCGenerationStatus:   models.StatusNotStarted,
		IaCGenerationProgress: 0,
		TokenCount:            tokenCount,
		ExceedsTokenLimit:     packer.ExceedsTokenLimit(tokenCount, s.tokenLimit),
		UploadDate:            stamp,
		LastModified:          stamp,
		S3Prefix:              keys.Locations(userID, fileID).Root,
	}
}

// persist writes a new work item as a saga: metadata record, original
// content, optional packed content and the metadata snapshot.
func (s *workItemService) persist(ctx context.Context, item *models.WorkItem, original []byte, originalType string, packed *string) error {
	layout := keys.Locations(item.UserID, item.FileID)
	log := s.logger.With("user_id", item.UserID, "file_id", item.FileID)

	snapshot, err := json.Marshal(item)
	if err != nil {
		log.Error("Failed to encode metadata snapshot", "error", err)
		return utils.NewInternalError("Failed to create work item")
	}

	deleteKey := func(key string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			return s.storage.DeleteMany(ctx, []string{key})
		}
	}

	tx := newSaga(log)
	tx.add("metadata",
		func(ctx context.Context) error { return s.repo.Create(ctx, item) },
		func(ctx context.Context) error { return s.repo.Delete(ctx, item.UserID, item.FileID) })
	tx.add("original_content",
		func(ctx context.Context) error {
			return s.storage.Upload(ctx, layout.OriginalContent, original, originalType)
		},
		deleteKey(layout.OriginalContent))
	if packed != nil {
		tx.add("packed_content",
			func(ctx context.Context) error {
				return s.storage.Upload(ctx, layout.PackedContent, []byte(*packed), contentTypePacked)
			},
			deleteKey(layout.PackedContent))
	}
	tx.add("metadata_snapshot",
		func(ctx context.Context) error {
			return s.storage.Upload(ctx, layout.Metadata, snapshot, contentTypeJSON)
		},
		deleteKey(layout.Metadata))

	if err := tx.execute(ctx); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			log.Warn("Work item id collision", "error", err)
			return utils.NewConflictError("A work item with this id already exists", err)
		}
		return s.upstream("Failed to create work item", err, "user_id", item.UserID, "file_id", item.FileID)
	}

	return nil
}

func (s *workItemService) CreateWorkItem(ctx context.Context, userID, fileName, fileType string, data []byte, mode models.UploadMode) (*models.WorkItem, error) {
	if err := s.check(userID); err != nil {
		return nil, err
	}
	if fileName == "" {
		return nil, utils.NewBadRequestError("File name is required")
	}
	if !mode.Valid() {
		return nil, utils.NewBadRequestError("Unknown upload mode")
	}

	item := s.newWorkItem(userID, fileName, fileType, mode, 0)
	if err := s.persist(ctx, item, data, fileType, nil); err != nil {
		return nil, err
	}

	s.logger.Info("Work item created",
		"user_id", userID,
		"file_id", item.FileID,
		"file_name", fileName,
		"upload_mode", mode,
		"size", len(data))

	return item, nil
}

func (s *workItemService) HandleSingleFileUpload(ctx context.Context, userID, fileName, fileType string, data []byte) (*models.UploadResult, error) {
	if err := s.check(userID); err != nil {
		return nil, err
	}
	if fileName == "" {
		return nil, utils.NewBadRequestError("File name is required")
	}
	if len(data) == 0 {
		return nil, utils.NewBadRequestError("Uploaded file is empty")
	}

	// Only text-bearing uploads count against the token budget; diagrams
	// and unreadable documents are estimated at zero.
	tokens := 0
	text, kind, err := extractor.Extract(fileName, data)
	switch {
	case err != nil:
		s.logger.Warn("Could not extract text for token estimate", "file_name", fileName, "error", err)
	case kind != extractor.KindBinary:
		tokens = packer.EstimateTokens(text)
	}

	item := s.newWorkItem(userID, fileName, fileType, models.UploadModeSingleFile, tokens)
	if err := s.persist(ctx, item, data, fileType, nil); err != nil {
		return nil, err
	}

	s.logger.Info("Single file uploaded", "user_id", userID, "file_id", item.FileID, "token_count", tokens)

	return &models.UploadResult{FileID: item.FileID, TokenCount: item.TokenCount, ExceedsTokenLimit: item.ExceedsTokenLimit}, nil
}

func (s *workItemService) HandleMultipleFilesUpload(ctx context.Context, userID string, files []packer.File) (*models.UploadResult, error) {
	if err := s.check(userID); err != nil {
		return nil, err
	}

	result, err := s.packer.PackFiles(files)
	if err != nil {
		return nil, s.packingError(err, "user_id", userID, "files", len(files))
	}

	return s.storePacked(ctx, userID, multipleFilesName, models.UploadModeMultipleFiles, result)
}

func (s *workItemService) HandleZipUpload(ctx context.Context, userID, fileName string, data []byte) (*models.UploadResult, error) {
	if err := s.check(userID); err != nil {
		return nil, err
	}
	if fileName == "" {
		return nil, utils.NewBadRequestError("File name is required")
	}

	result, err := s.packer.PackArchive(data)
	if err != nil {
		return nil, s.packingError(err, "user_id", userID, "file_name", fileName)
	}

	return s.storePacked(ctx, userID, fileName, models.UploadModeZipFile, result)
}

func (s *workItemService) storePacked(ctx context.Context, userID, fileName string, mode models.UploadMode, result *packer.Result) (*models.UploadResult, error) {
	item := s.newWorkItem(userID, fileName, contentTypeZip, mode, result.TokenCount)
	if err := s.persist(ctx, item, result.Original, contentTypeZip, &result.Packed); err != nil {
		return nil, err
	}

	s.logger.Info("Packed upload stored",
		"user_id", userID,
		"file_id", item.FileID,
		"upload_mode", mode,
		"files", result.FileCount,
		"token_count", result.TokenCount,
		"exceeds_token_limit", item.ExceedsTokenLimit)

	return &models.UploadResult{
		FileID:            item.FileID,
		TokenCount:        item.TokenCount,
		ExceedsTokenLimit: item.ExceedsTokenLimit,
	}, nil
}

func (s *workItemService) packingError(err error, args ...any) error {
	s.logger.Warn("Failed to pack upload", append(args, "error", err)...)

	switch {
	case errors.Is(err, packer.ErrEmpty):
		return utils.NewPackingError("No files found in upload", err)
	case errors.Is(err, packer.ErrTooLarge):
		return utils.NewPackingError("Upload exceeds the size limit: "+err.Error(), err)
	case errors.Is(err, packer.ErrBadPath):
		return utils.NewPackingError("Upload contains an invalid or duplicate file path", err)
	default:
		return utils.NewPackingError("Upload could not be read; the archive or one of its files is corrupt", err)
	}
}

func (s *workItemService) GetWorkItem(ctx context.Context, userID, fileID string) (*models.WorkItem, error) {
	if err := s.check(userID, fileID); err != nil {
		return nil, err
	}

	item, err := s.repo.Get(ctx, userID, fileID)
	if err != nil {
		return nil, s.upstream("Failed to retrieve work item", err, "user_id", userID, "file_id", fileID)
	}
	if item == nil {
		return nil, utils.NewNotFoundError("Work item not found")
	}

	return item, nil
}

func (s *workItemService) ListWorkItems(ctx context.Context, userID string) ([]*models.WorkItem, error) {
	if err := s.check(userID); err != nil {
		return nil, err
	}

	items, err := s.repo.Query(ctx, userID)
	if err != nil {
		return nil, s.upstream("Failed to list work items", err, "user_id", userID)
	}
	if items == nil {
		items = []*models.WorkItem{}
	}

	return items, nil
}

func (s *workItemService) UpdateWorkItem(ctx context.Context, userID, fileID string, upd models.WorkItemUpdate) (*models.WorkItem, error) {
	if err := s.check(userID, fileID); err != nil {
		return nil, err
	}
	if err := upd.Validate(); err != nil {
		return nil, utils.NewBadRequestError(err.Error())
	}

	// Derived and internal fields are never taken from the caller.
	upd.ExceedsTokenLimit = nil
	upd.IfAnalysisStatus = nil
	upd.IfIaCGenerationStatus = nil
	if upd.TokenCount != nil {
		upd.ExceedsTokenLimit = models.Ptr(packer.ExceedsTokenLimit(*upd.TokenCount, s.tokenLimit))
	}

	if upd.Empty() {
		return s.GetWorkItem(ctx, userID, fileID)
	}

	if upd.AnalysisStatus != nil || upd.IaCGenerationStatus != nil {
		current, err := s.GetWorkItem(ctx, userID, fileID)
		if err != nil {
			return nil, err
		}
		if upd.AnalysisStatus != nil {
			if !current.AnalysisStatus.CanTransitionTo(*upd.AnalysisStatus) {
				return nil, utils.NewConflictError("Illegal analysis status transition from "+string(current.AnalysisStatus)+" to "+string(*upd.AnalysisStatus), nil)
			}
			upd.IfAnalysisStatus = models.Ptr(current.AnalysisStatus)
		}
		if upd.IaCGenerationStatus != nil {
			if !current.IaCGenerationStatus.CanTransitionTo(*upd.IaCGenerationStatus) {
				return nil, utils.NewConflictError("Illegal IaC generation status transition from "+string(current.IaCGenerationStatus)+" to "+string(*upd.IaCGenerationStatus), nil)
			}
			upd.IfIaCGenerationStatus = models.Ptr(current.IaCGenerationStatus)
		}
	}

	return s.applyUpdate(ctx, userID, fileID, upd)
}

// ResetWorkItem returns both processing tracks to NOT_STARTED. It is the only
// way back to that state.
func (s *workItemService) ResetWorkItem(ctx context.Context, userID, fileID string) (*models.WorkItem, error) {
	if err := s.check(userID, fileID); err != nil {
		return nil, err
	}

	item, err := s.applyUpdate(ctx, userID, fileID, models.WorkItemUpdate{
		AnalysisStatus:        models.Ptr(models.StatusNotStarted),
		AnalysisProgress:      models.Ptr(0),
		IaCGenerationStatus:   models.Ptr(models.StatusNotStarted),
		IaCGenerationProgress: models.Ptr(0),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Work item reset", "user_id", userID, "file_id", fileID)
	return item, nil
}

func (s *workItemService) applyUpdate(ctx context.Context, userID, fileID string, upd models.WorkItemUpdate) (*models.WorkItem, error) {
	upd.LastModified = models.Ptr(s.now().Format(time.RFC3339Nano))

	item, err := s.repo.Update(ctx, userID, fileID, upd)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, utils.NewNotFoundError("Work item not found")
	case errors.Is(err, repository.ErrConditionFailed):
		s.logger.Warn("Concurrent status change", "user_id", userID, "file_id", fileID)
		return nil, utils.NewConflictError("Work item status changed concurrently; reload and retry", err)
	case err != nil:
		return nil, s.upstream("Failed to update work item", err, "user_id", userID, "file_id", fileID)
	}

	return item, nil
}

// DeleteWorkItem removes every object under the work item's root, then the
// metadata record. Both phases tolerate absence so the call can be retried.
func (s *workItemService) DeleteWorkItem(ctx context.Context, userID, fileID string) error {
	if err := s.check(userID, fileID); err != nil {
		return err
	}

	layout := keys.Locations(userID, fileID)

	objectKeys, err := s.storage.List(ctx, layout.Prefix())
	if err != nil {
		return s.upstream("Failed to list work item content", err, "user_id", userID, "file_id", fileID)
	}

	if len(objectKeys) == 0 {
		s.logger.Info("No objects found for work item", "user_id", userID, "file_id", fileID)
	} else if err := s.storage.DeleteMany(ctx, objectKeys); err != nil {
		return s.upstream("Failed to delete work item content", err, "user_id", userID, "file_id", fileID, "objects", len(objectKeys))
	}

	if err := s.repo.Delete(ctx, userID, fileID); err != nil {
		return s.upstream("Failed to delete work item", err, "user_id", userID, "file_id", fileID)
	}

	s.logger.Info("Work item deleted", "user_id", userID, "file_id", fileID, "objects", len(objectKeys))
	return nil
}
