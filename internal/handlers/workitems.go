package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/BerylCAtieno/iac-workitem-api/internal/config"
	"github.com/BerylCAtieno/iac-workitem-api/internal/keys"
	"github.com/BerylCAtieno/iac-workitem-api/internal/middleware"
	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
	"github.com/BerylCAtieno/iac-workitem-api/internal/packer"
	"github.com/BerylCAtieno/iac-workitem-api/internal/services"
	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

const (
	UserEmailHeader = "X-User-Email"

	// Parts above this size are spooled to disk while parsing.
	multipartMemory = 32 << 20
	// Room for multipart boundaries and form fields on top of the file limit.
	formOverhead = 1 << 20
)

type WorkItemHandler struct {
	service services.WorkItemService
	cfg     *config.Config
	logger  *utils.Logger
}

func NewWorkItemHandler(service services.WorkItemService, cfg *config.Config, logger *utils.Logger) *WorkItemHandler {
	return &WorkItemHandler{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
}

// userID derives the caller's user id from the identity header set by the
// fronting proxy.
func userID(r *http.Request) (string, error) {
	email := strings.TrimSpace(r.Header.Get(UserEmailHeader))
	if email == "" || !strings.Contains(email, "@") {
		return "", utils.NewUnauthorizedError("Missing or invalid " + UserEmailHeader + " header")
	}
	return keys.UserIDHash(email), nil
}

// UploadWorkItem accepts a multipart upload. uploadMode selects how the
// "file" or "files" parts are interpreted.
func (h *WorkItemHandler) UploadWorkItem(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	limit := max(h.cfg.MaxFileSize, h.cfg.MaxTotalUnpackedSize) + formOverhead
	if r.ContentLength > limit {
		h.respondError(w, r, utils.NewBadRequestError("Upload exceeds "+humanize.IBytes(uint64(limit))))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.respondError(w, r, formError(err, limit))
		return
	}
	defer r.MultipartForm.RemoveAll()

	mode := models.UploadModeSingleFile
	if v := r.FormValue("uploadMode"); v != "" {
		if mode, err = models.ParseUploadMode(v); err != nil {
			h.respondError(w, r, utils.NewBadRequestError(err.Error()))
			return
		}
	}

	h.logger.Info("Upload attempt", "user_id", uid, "upload_mode", mode)

	var result *models.UploadResult
	switch mode {
	case models.UploadModeMultipleFiles:
		files, ferr := h.readFiles(r.MultipartForm)
		if ferr != nil {
			h.respondError(w, r, ferr)
			return
		}
		result, err = h.service.HandleMultipleFilesUpload(r.Context(), uid, files)

	default:
		data, header, ferr := h.readFile(r.MultipartForm, "file", h.cfg.MaxFileSize)
		if ferr != nil {
			h.respondError(w, r, ferr)
			return
		}
		if mode == models.UploadModeZipFile {
			result, err = h.service.HandleZipUpload(r.Context(), uid, header.Filename, data)
		} else {
			contentType := determineContentType(header.Filename, header.Header.Get("Content-Type"))
			result, err = h.service.HandleSingleFileUpload(r.Context(), uid, header.Filename, contentType, data)
		}
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, result)
}

func (h *WorkItemHandler) readFile(form *multipart.Form, field string, maxSize int64) ([]byte, *multipart.FileHeader, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil, utils.NewBadRequestError("No file provided")
	}
	data, err := readPart(headers[0], maxSize)
	if err != nil {
		return nil, nil, err
	}
	return data, headers[0], nil
}

// readFiles collects the "files" parts. Browsers drop directories from part
// file names, so relative paths may be sent in parallel "paths" fields.
func (h *WorkItemHandler) readFiles(form *multipart.Form) ([]packer.File, error) {
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, utils.NewBadRequestError("No files provided")
	}
	paths := form.Value["paths"]
	if len(paths) != 0 && len(paths) != len(headers) {
		return nil, utils.NewBadRequestError("paths must be given for every file or not at all")
	}

	files := make([]packer.File, 0, len(headers))
	for i, fh := range headers {
		data, err := readPart(fh, h.cfg.MaxFileSize)
		if err != nil {
			return nil, err
		}
		name := fh.Filename
		if len(paths) != 0 {
			name = paths[i]
		}
		files = append(files, packer.File{Name: name, Data: data})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader, maxSize int64) ([]byte, error) {
	if fh.Size > maxSize {
		return nil, utils.NewBadRequestError(fmt.Sprintf("%s exceeds the %s limit", fh.Filename, humanize.IBytes(uint64(maxSize))))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, utils.NewBadRequestError("Failed to read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, utils.NewInternalError("Failed to read file")
	}
	if int64(len(data)) > maxSize {
		return nil, utils.NewBadRequestError(fmt.Sprintf("%s exceeds the %s limit", fh.Filename, humanize.IBytes(uint64(maxSize))))
	}
	if len(data) == 0 {
		return nil, utils.NewBadRequestError("Uploaded file is empty")
	}
	return data, nil
}

func formError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return utils.NewBadRequestError("Upload exceeds " + humanize.IBytes(uint64(limit)))
	}
	return utils.NewBadRequestError("Invalid form data")
}

func (h *WorkItemHandler) ListWorkItems(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	items, err := h.service.ListWorkItems(r.Context(), uid)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, items)
}

func (h *WorkItemHandler) GetWorkItem(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	item, err := h.service.GetWorkItem(r.Context(), uid, mux.Vars(r)["fileId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, item)
}

func (h *WorkItemHandler) UpdateWorkItem(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var upd models.WorkItemUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, formOverhead)).Decode(&upd); err != nil {
		h.respondError(w, r, utils.NewBadRequestError("Invalid JSON body"))
		return
	}

	item, err := h.service.UpdateWorkItem(r.Context(), uid, mux.Vars(r)["fileId"], upd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, item)
}

func (h *WorkItemHandler) ResetWorkItem(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	item, err := h.service.ResetWorkItem(r.Context(), uid, mux.Vars(r)["fileId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, item)
}

func (h *WorkItemHandler) DeleteWorkItem(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.service.DeleteWorkItem(r.Context(), uid, mux.Vars(r)["fileId"]); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetContent serves the original upload. With download=true the raw bytes
// are sent as an attachment; otherwise the display form is returned as JSON.
func (h *WorkItemHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	fileID := mux.Vars(r)["fileId"]

	if r.URL.Query().Get("download") == "true" {
		item, err := h.service.GetWorkItem(r.Context(), uid, fileID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		content, err := h.service.GetOriginalContent(r.Context(), uid, fileID, true)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondAttachment(w, item.FileName, content)
		return
	}

	content, err := h.service.GetOriginalContent(r.Context(), uid, fileID, false)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondContent(w, fileID, content)
}

func (h *WorkItemHandler) GetPackedContent(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	packed, err := h.service.GetPackedContent(r.Context(), uid, mux.Vars(r)["fileId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, packed)
}

func (h *WorkItemHandler) StoreAnalysisResults(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize))
	if err != nil {
		h.respondError(w, r, utils.NewBadRequestError("Failed to read request body"))
		return
	}

	if err := h.service.StoreAnalysisResults(r.Context(), uid, mux.Vars(r)["fileId"], body); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkItemHandler) GetAnalysisResults(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	results, err := h.service.GetAnalysisResults(r.Context(), uid, mux.Vars(r)["fileId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(results)
}

type iacDocumentRequest struct {
	Content  string `json:"content"`
	FileType string `json:"fileType"`
}

func (h *WorkItemHandler) StoreIaCDocument(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req iacDocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize)).Decode(&req); err != nil {
		h.respondError(w, r, utils.NewBadRequestError("Invalid JSON body"))
		return
	}
	if req.Content == "" {
		h.respondError(w, r, utils.NewBadRequestError("content is required"))
		return
	}

	if err := h.service.StoreIaCDocument(r.Context(), uid, mux.Vars(r)["fileId"], req.Content, req.FileType); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkItemHandler) GetIaCDocument(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	doc, err := h.service.GetIaCDocument(r.Context(), uid, mux.Vars(r)["fileId"], r.URL.Query().Get("ext"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc)
}

func (h *WorkItemHandler) UploadSupportingDocument(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	limit := h.cfg.MaxSupportingDocSize + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.respondError(w, r, formError(err, limit))
		return
	}
	defer r.MultipartForm.RemoveAll()

	data, header, err := h.readFile(r.MultipartForm, "file", h.cfg.MaxSupportingDocSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	contentType := determineContentType(header.Filename, header.Header.Get("Content-Type"))
	docID, err := h.service.StoreSupportingDocument(r.Context(), uid, mux.Vars(r)["fileId"],
		header.Filename, contentType, data, r.FormValue("description"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]string{"supportingDocumentId": docID})
}

func (h *WorkItemHandler) GetSupportingDocument(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	vars := mux.Vars(r)

	content, err := h.service.GetSupportingDocument(r.Context(), uid, vars["fileId"], vars["docId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("download") == "true" {
		h.respondAttachment(w, vars["docId"], content)
		return
	}
	h.respondContent(w, vars["docId"], content)
}

// determineContentType prefers the type implied by the file extension over
// the one reported by the client.
func determineContentType(filename, headerContentType string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".tf", ".hcl", ".tfvars", ".txt", ".md":
		return "text/plain"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".zip":
		return "application/zip"
	case "":
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}

	if headerContentType != "" {
		return headerContentType
	}
	return "application/octet-stream"
}

func (h *WorkItemHandler) respondContent(w http.ResponseWriter, name string, content *models.Content) {
	// Binary content that has no display form is sent as-is.
	if content.Text == "" && len(content.Data) > 0 {
		h.respondAttachment(w, name, content)
		return
	}
	h.respondJSON(w, http.StatusOK, content)
}

func (h *WorkItemHandler) respondAttachment(w http.ResponseWriter, name string, content *models.Content) {
	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content.Data); err != nil {
		h.logger.Error("Failed to write response body", "error", err)
	}
}

func (h *WorkItemHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *WorkItemHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: "Internal server error", Kind: string(utils.KindInternal)}
	status := http.StatusInternalServerError

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		status = appErr.StatusCode
		resp = errorResponse{Error: appErr.Message, Kind: string(appErr.Kind), Retryable: appErr.Retryable}
	}

	args := []any{"request_id", middleware.RequestID(r.Context()), "status", status, "error", err}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request error", args...)
	} else {
		h.logger.Warn("Request error", args...)
	}

	if resp.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	h.respondJSON(w, status, resp)
}
