package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"organizer/internal/models"
	"organizer/internal/service"
)

type folderRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID string `json:"parentId"`
}

// handleListFiles returns the whole tree, or one folder's children when
// ?parentId= is present (empty meaning the root).
func (s *Server) handleListFiles(c *gin.Context) {
	parentID, byParent := c.GetQuery("parentId")
	items, err := s.files.List(c.Request.Context(), ownerID(c), parentID, byParent)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if items == nil {
		items = []models.FileItem{}
	}
	respondSuccess(c, http.StatusOK, items)
}

// handleCreateFolder adds a folder to the tree.
func (s *Server) handleCreateFolder(c *gin.Context) {
	var req folderRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	folder, err := s.files.CreateFolder(c.Request.Context(), ownerID(c), req.Name, req.ParentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, folder)
}

// handleUploadFile accepts a multipart form with a "file" part and optional
// title, date and parentId fields.
func (s *Server) handleUploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	header, err := c.FormFile("file")
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = fmt.Errorf("file: %w: %w", models.ErrValidation, err)
		}
		s.respondError(c, err)
		return
	}
	body, err := header.Open()
	if err != nil {
		s.respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer body.Close()

	item, err := s.files.Upload(c.Request.Context(), ownerID(c), service.Upload{
		Filename: header.Filename,
		Title:    c.PostForm("title"),
		Date:     c.PostForm("date"),
		ParentID: c.PostForm("parentId"),
		Body:     body,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, item)
}

// handleFileContent streams an uploaded file. Media is shown inline, anything
// else is offered as a download.
func (s *Server) handleFileContent(c *gin.Context) {
	item, f, err := s.files.Open(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer f.Close()

	disposition := "attachment"
	if item.Media {
		disposition = "inline"
	}
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": item.Name}))
	if item.ContentType != "" {
		c.Header("Content-Type", item.ContentType)
	}
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, item.Name, item.CreatedAt, f)
}

// handleDeleteFile removes a node and everything below it.
func (s *Server) handleDeleteFile(c *gin.Context) {
	id, err := requireQuery(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}
	ids, err := s.files.Delete(c.Request.Context(), ownerID(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"success": true, "deleted": ids})
}
