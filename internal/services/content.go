package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/BerylCAtieno/iac-workitem-api/internal/extractor"
	"github.com/BerylCAtieno/iac-workitem-api/internal/keys"
	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
	"github.com/BerylCAtieno/iac-workitem-api/internal/storage"
	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

func (s *workItemService) StoreOriginalContent(ctx context.Context, userID, fileID string, data []byte, contentType string) error {
	if err := s.check(userID, fileID); err != nil {
		return err
	}

	key := keys.Locations(userID, fileID).OriginalContent
	if err := s.storage.Upload(ctx, key, data, contentType); err != nil {
		return s.upstream("Failed to store original content", err, "user_id", userID, "file_id", fileID)
	}
	return nil
}

// GetOriginalContent reads the raw upload. Downloads always get the stored
// bytes. For viewing, packed uploads serve their packed text, rebuilt from
// the original archive when the packed object is missing.
func (s *workItemService) GetOriginalContent(ctx context.Context, userID, fileID string, forDownload bool) (*models.Content, error) {
	if err := s.check(userID, fileID); err != nil {
		return nil, err
	}

	if forDownload {
		obj, err := s.download(ctx, keys.Locations(userID, fileID).OriginalContent, "Original content not found", "Failed to retrieve original content", userID, fileID)
		if err != nil {
			return nil, err
		}
		return &models.Content{ContentType: obj.ContentType, Data: obj.Data}, nil
	}

	item, err := s.GetWorkItem(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}

	if item.UploadMode.Packed() {
		packed, err := s.GetPackedContent(ctx, userID, fileID)
		switch {
		case err == nil:
			return packedContent(packed), nil
		case utils.KindOf(err) != utils.KindNotFound:
			return nil, err
		}
		s.logger.Warn("Packed content missing, falling back to original", "user_id", userID, "file_id", fileID)
	}

	obj, err := s.download(ctx, keys.Locations(userID, fileID).OriginalContent, "Original content not found", "Failed to retrieve original content", userID, fileID)
	if err != nil {
		return nil, err
	}

	if item.UploadMode.Packed() {
		if content := s.repack(userID, fileID, obj.Data); content != nil {
			return content, nil
		}
	}

	return viewContent(obj), nil
}

// repack rebuilds the packed text from the stored archive for this response
// only. Reads never write to the object store. It returns nil when the
// archive cannot be packed.
func (s *workItemService) repack(userID, fileID string, archive []byte) *models.Content {
	result, err := s.packer.PackArchive(archive)
	if err != nil {
		s.logger.Warn("Could not rebuild packed content from original", "user_id", userID, "file_id", fileID, "error", err)
		return nil
	}

	return packedContent(result.Packed)
}

func packedContent(packed string) *models.Content {
	return &models.Content{
		ContentType: contentTypePacked,
		Data:        []byte(packed),
		Text:        packed,
		Packed:      true,
	}
}

// viewContent renders an object for in-app display: images as data URIs,
// text as UTF-8. Other content keeps only its raw bytes.
func viewContent(obj *storage.Object) *models.Content {
	c := &models.Content{ContentType: obj.ContentType, Data: obj.Data}

	switch {
	case strings.HasPrefix(obj.ContentType, "image/"):
		c.Text = "data:" + obj.ContentType + ";base64," + base64.StdEncoding.EncodeToString(obj.Data)
	case isTextType(obj.ContentType) || (obj.ContentType == "" && extractor.LooksLikeText(obj.Data)):
		c.Text = extractor.DecodeText(obj.Data)
	}

	return c
}

func isTextType(contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, marker := range []string{"json", "yaml", "xml", "hcl", "terraform", "javascript"} {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

func (s *workItemService) StorePackedContent(ctx context.Context, userID, fileID, packed string) error {
	if err := s.check(userID, fileID); err != nil {
		return err
	}

	key := keys.Locations(userID, fileID).PackedContent
	if err := s.storage.Upload(ctx, key, []byte(packed), contentTypePacked); err != nil {
		return s.upstream("Failed to store packed content", err, "user_id", userID, "file_id", fileID)
	}
	return nil
}

func (s *workItemService) GetPackedContent(ctx context.Context, userID, fileID string) (string, error) {
	if err := s.check(userID, fileID); err != nil {
		return "", err
	}

	obj, err := s.download(ctx, keys.Locations(userID, fileID).PackedContent, "Packed content not found", "Failed to retrieve packed content", userID, fileID)
	if err != nil {
		return "", err
	}
	return string(obj.Data), nil
}

func (s *workItemService) StoreAnalysisResults(ctx context.Context, userID, fileID string, results json.RawMessage) error {
	if err := s.check(userID, fileID); err != nil {
		return err
	}
	if !json.Valid(results) {
		return utils.NewBadRequestError("Analysis results must be valid JSON")
	}

	key := keys.Locations(userID, fileID).AnalysisResults
	if err := s.storage.Upload(ctx, key, results, contentTypeJSON); err != nil {
		return s.upstream("Failed to store analysis results", err, "user_id", userID, "file_id", fileID)
	}
	return nil
}

func (s *workItemService) GetAnalysisResults(ctx context.Context, userID, fileID string) (json.RawMessage, error) {
	if err := s.check(userID, fileID); err != nil {
		return nil, err
	}

	obj, err := s.download(ctx, keys.Locations(userID, fileID).AnalysisResults, "Analysis results not found", "Failed to retrieve analysis results", userID, fileID)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(obj.Data), nil
}

// StoreIaCDocument writes a generated template and records its type on the
// work item so later reads resolve the same extension.
func (s *workItemService) StoreIaCDocument(ctx context.Context, userID, fileID, content, fileType string) error {
	if err := s.check(userID, fileID); err != nil {
		return err
	}
	if _, err := s.GetWorkItem(ctx, userID, fileID); err != nil {
		return err
	}

	ext := keys.IaCExtension(fileType)
	key := keys.Locations(userID, fileID).IaCDocument(ext)
	if err := s.storage.Upload(ctx, key, []byte(content), iacContentType(ext)); err != nil {
		return s.upstream("Failed to store IaC document", err, "user_id", userID, "file_id", fileID)
	}

	if fileType == "" {
		fileType = ext
	}
	if _, err := s.applyUpdate(ctx, userID, fileID, models.WorkItemUpdate{IaCGeneratedFileType: &fileType}); err != nil {
		return err
	}

	s.logger.Info("IaC document stored", "user_id", userID, "file_id", fileID, "extension", ext)
	return nil
}

// GetIaCDocument reads the generated template. The type recorded on the work
// item wins over ext; with neither, the terraform extension is used.
func (s *workItemService) GetIaCDocument(ctx context.Context, userID, fileID, ext string) (string, error) {
	if err := s.check(userID, fileID); err != nil {
		return "", err
	}

	item, err := s.GetWorkItem(ctx, userID, fileID)
	if err != nil {
		return "", err
	}

	switch {
	case item.IaCGeneratedFileType != "":
		ext = keys.IaCExtension(item.IaCGeneratedFileType)
	case ext != "":
		ext = keys.IaCExtension(ext)
	default:
		ext = "tf"
	}

	obj, err := s.download(ctx, keys.Locations(userID, fileID).IaCDocument(ext), "IaC document not found", "Failed to retrieve IaC document", userID, fileID)
	if err != nil {
		return "", err
	}
	return string(obj.Data), nil
}

func iacContentType(ext string) string {
	switch ext {
	case "yaml":
		return "application/yaml"
	case "json":
		return contentTypeJSON
	default:
		return contentTypePacked
	}
}

func (s *workItemService) download(ctx context.Context, key, notFound, failed, userID, fileID string) (*storage.Object, error) {
	obj, err := s.storage.Download(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, utils.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, s.upstream(failed, err, "user_id", userID, "file_id", fileID, "key", key)
	}
	return obj, nil
}
