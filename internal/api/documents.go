package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/chunkdim/internal/loader"
	"github.com/kalambet/chunkdim/internal/storage"
)

// CreateDocumentRequest registers a document. Either Content or FileBase64
// must be set; a file is converted to text by its FileName extension.
type CreateDocumentRequest struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	FileName        string `json:"file_name"`
	FileBase64      string `json:"file_base64"`
	PrimaryCategory string `json:"primary_category"`
	Author          string `json:"author"`
	SourceType      string `json:"source_type"`
	SourceURL       string `json:"source_url"`
	DocDate         string `json:"doc_date"`
	DocVersion      string `json:"doc_version"`
}

func handleCreateDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		var req CreateDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		doc := storage.Document{
			Title:           req.Title,
			Content:         req.Content,
			PrimaryCategory: req.PrimaryCategory,
			Author:          req.Author,
			SourceType:      req.SourceType,
			SourceURL:       req.SourceURL,
			DocDate:         req.DocDate,
			DocVersion:      req.DocVersion,
		}

		switch {
		case req.FileBase64 != "":
			if req.FileName == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "file_name is required with file_base64")
				return
			}
			raw, err := base64.StdEncoding.DecodeString(req.FileBase64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			loaded, err := loader.Load(req.FileName, raw)
			if err != nil {
				httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
				return
			}
			doc.Content = loaded.Content
			if doc.Title == "" {
				doc.Title = loaded.Title
			}
			if doc.SourceType == "" {
				doc.SourceType = loaded.SourceType
			}
		case strings.TrimSpace(req.Content) == "":
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of content or file_base64 is required")
			return
		}

		doc.ID = newID(deps)
		if doc.Title == "" {
			doc.Title = "Untitled Document"
		}
		if err := deps.Store.CreateDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}
		saved, err := deps.Store.GetDocument(doc.ID)
		if err != nil {
			storeError(w, err, "document")
			return
		}
		deps.Logger.Info("document created", "document_id", doc.ID, "source_type", doc.SourceType)
		writeJSON(w, http.StatusCreated, newDocumentView(saved, false))
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments(parseIntParam(r, "limit", 20, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, mapViews(docs, func(d storage.Document) documentView {
			return newDocumentView(d, false)
		}))
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Store.GetDocument(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "document")
			return
		}
		writeJSON(w, http.StatusOK, newDocumentView(doc, true))
	}
}

func handleListChunks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetDocument(id); err != nil {
			storeError(w, err, "document")
			return
		}
		chunks, err := deps.Store.GetChunksByDocument(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list chunks: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, mapViews(chunks, newChunkView))
	}
}

func handleGetChunk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Store.GetChunk(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "chunk")
			return
		}
		writeJSON(w, http.StatusOK, newChunkView(c))
	}
}

func handleListTemplates(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tpls, err := deps.Store.ListTemplates()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list templates: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, mapViews(tpls, newTemplateView))
	}
}

func newID(deps Deps) string {
	if deps.NewID != nil {
		return deps.NewID()
	}
	return uuid.NewString()
}
