package router

import (
	"net/http"

	"github.com/BerylCAtieno/iac-workitem-api/internal/config"
	"github.com/BerylCAtieno/iac-workitem-api/internal/handlers"
	"github.com/BerylCAtieno/iac-workitem-api/internal/middleware"
	"github.com/BerylCAtieno/iac-workitem-api/internal/services"
	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"

	"github.com/gorilla/mux"
)

func NewRouter(svc services.WorkItemService, cfg *config.Config, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	h := handlers.NewWorkItemHandler(svc, cfg, logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if cfg.StorageEnabled {
			w.Write([]byte(`{"status":"healthy","storage":"enabled"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy","storage":"disabled"}`))
	}).Methods(http.MethodGet)

	// Work item endpoints
	items := api.PathPrefix("/work-items").Subrouter()
	items.HandleFunc("", h.UploadWorkItem).Methods(http.MethodPost)
	items.HandleFunc("", h.ListWorkItems).Methods(http.MethodGet)
	items.HandleFunc("/{fileId}", h.GetWorkItem).Methods(http.MethodGet)
	items.HandleFunc("/{fileId}", h.UpdateWorkItem).Methods(http.MethodPatch)
	items.HandleFunc("/{fileId}", h.DeleteWorkItem).Methods(http.MethodDelete)
	items.HandleFunc("/{fileId}/reset", h.ResetWorkItem).Methods(http.MethodPost)
	items.HandleFunc("/{fileId}/content", h.GetContent).Methods(http.MethodGet)
	items.HandleFunc("/{fileId}/packed", h.GetPackedContent).Methods(http.MethodGet)
	items.HandleFunc("/{fileId}/analysis", h.StoreAnalysisResults).Methods(http.MethodPut)
	items.HandleFunc("/{fileId}/analysis", h.GetAnalysisResults).Methods(http.MethodGet)
	items.HandleFunc("/{fileId}/iac", h.StoreIaCDocument).Methods(http.MethodPut)
	items.HandleFunc("/{fileId}/iac", h.GetIaCDocument).Methods(http.MethodGet)
	items.HandleFunc("/{fileId}/supporting-documents", h.UploadSupportingDocument).Methods(http.MethodPost)
	items.HandleFunc("/{fileId}/supporting-documents/{docId}", h.GetSupportingDocument).Methods(http.MethodGet)

	// CORS wraps the router so preflight requests are answered before route
	// matching rejects the OPTIONS method.
	return middleware.CORS()(r)
}
