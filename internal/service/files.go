package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"organizer/internal/blob"
	"organizer/internal/models"
	"organizer/internal/recurrence"
	"organizer/internal/storage"
)

// sniffLen is how much of an upload is read to detect its content type.
const sniffLen = 3072

// Files manages the folder tree and uploaded content.
type Files struct {
	store  storage.FileStore
	blobs  *blob.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewFiles returns a Files service. A nil logger discards output.
func NewFiles(store storage.FileStore, blobs *blob.Store, logger *slog.Logger) *Files {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Files{store: store, blobs: blobs, logger: logger, now: time.Now}
}

// Upload is one file posted to a folder.
type Upload struct {
	Filename string
	Title    string
	Date     string
	ParentID string
	Body     io.Reader
}

// ContentURL is the API path serving the bytes of file id.
func ContentURL(id string) string {
	return "/api/files/" + id + "/content"
}

// List returns the owner's tree. With byParent set only the direct children
// of parentID are returned, and an empty parentID means the root.
func (s *Files) List(ctx context.Context, ownerID, parentID string, byParent bool) ([]models.FileItem, error) {
	items, err := s.store.ListFiles(ctx, ownerID)
	if err != nil || !byParent {
		return items, err
	}
	out := make([]models.FileItem, 0, len(items))
	for _, it := range items {
		if it.ParentID == parentID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Files) checkParent(ctx context.Context, ownerID, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, err := s.store.GetFile(ctx, parentID, ownerID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("parent folder %s: %w", parentID, models.ErrValidation)
	}
	if err != nil {
		return err
	}
	if parent.Kind != models.KindFolder {
		return fmt.Errorf("parent %s is not a folder: %w", parentID, models.ErrValidation)
	}
	return nil
}

// CreateFolder adds a folder under parentID, or at the root when it is empty.
func (s *Files) CreateFolder(ctx context.Context, ownerID, name, parentID string) (models.FileItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.FileItem{}, fmt.Errorf("folder name is required: %w", models.ErrValidation)
	}
	parentID = strings.TrimSpace(parentID)
	if err := s.checkParent(ctx, ownerID, parentID); err != nil {
		return models.FileItem{}, err
	}
	return s.store.CreateFile(ctx, ownerID, models.FileItem{
		Name:     name,
		Kind:     models.KindFolder,
		ParentID: parentID,
	})
}

// UploadName is the stored name of an upload: the title with the uploaded
// file's extension, or the original name when no title is given.
func UploadName(filename, title string, mtype *mimetype.MIME) string {
	filename = filepath.Base(strings.TrimSpace(filename))
	title = strings.TrimSpace(title)
	if title == "" {
		return filename
	}
	ext := filepath.Ext(filename)
	if ext == "" && mtype != nil {
		ext = mtype.Extension()
	}
	if ext == "" || strings.HasSuffix(strings.ToLower(title), strings.ToLower(ext)) {
		return title
	}
	return title + ext
}

// Upload stores up.Body as a blob and records it in the tree.
func (s *Files) Upload(ctx context.Context, ownerID string, up Upload) (models.FileItem, error) {
	if up.Body == nil || strings.TrimSpace(up.Filename) == "" {
		return models.FileItem{}, fmt.Errorf("file is required: %w", models.ErrValidation)
	}
	parentID := strings.TrimSpace(up.ParentID)
	if err := s.checkParent(ctx, ownerID, parentID); err != nil {
		return models.FileItem{}, err
	}
	date := strings.TrimSpace(up.Date)
	if date == "" {
		date = string(recurrence.Key(s.now()))
	} else if _, err := recurrence.ParseDate(date); err != nil {
		return models.FileItem{}, fmt.Errorf("date: %w: %w", models.ErrValidation, err)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return models.FileItem{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mtype := mimetype.Detect(head)

	id := models.NewID()
	size, err := s.blobs.Put(ctx, ownerID, id, io.MultiReader(bytes.NewReader(head), up.Body))
	if err != nil {
		return models.FileItem{}, err
	}

	item, err := s.store.CreateFile(ctx, ownerID, models.FileItem{
		ID:          id,
		Name:        UploadName(up.Filename, up.Title, mtype),
		Kind:        models.KindFile,
		ParentID:    parentID,
		Date:        date,
		ContentType: mtype.String(),
		Size:        size,
		URL:         ContentURL(id),
	})
	if err != nil {
		if derr := s.blobs.Delete(ownerID, id); derr != nil {
			s.logger.Warn("orphan blob", slog.String("id", id), slog.Any("error", derr))
		}
		return models.FileItem{}, err
	}
	return item, nil
}

// Open returns a file's metadata and a reader over its content.
func (s *Files) Open(ctx context.Context, ownerID, id string) (models.FileItem, *os.File, error) {
	item, err := s.store.GetFile(ctx, id, ownerID)
	if err != nil {
		return models.FileItem{}, nil, err
	}
	if item.Kind != models.KindFile {
		return models.FileItem{}, nil, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	f, err := s.blobs.Open(ownerID, id)
	if err != nil {
		return models.FileItem{}, nil, err
	}
	return item, f, nil
}

// Delete removes a node with all of its descendants and their contents.
// It returns the removed ids.
func (s *Files) Delete(ctx context.Context, ownerID, id string) ([]string, error) {
	items, err := s.store.ListFiles(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.FileItem, len(items))
	children := make(map[string][]string)
	for _, it := range items {
		byID[it.ID] = it
		children[it.ParentID] = append(children[it.ParentID], it.ID)
	}
	if _, ok := byID[id]; !ok {
		return nil, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}

	ids := []string{id}
	seen := map[string]bool{id: true}
	for i := 0; i < len(ids); i++ {
		for _, child := range children[ids[i]] {
			if !seen[child] {
				seen[child] = true
				ids = append(ids, child)
			}
		}
	}

	if err := s.store.DeleteFiles(ctx, ownerID, ids); err != nil {
		return nil, err
	}
	for _, removed := range ids {
		if byID[removed].Kind != models.KindFile {
			continue
		}
		if err := s.blobs.Delete(ownerID, removed); err != nil {
			s.logger.Warn("delete blob", slog.String("id", removed), slog.Any("error", err))
		}
	}
	return ids, nil
}
