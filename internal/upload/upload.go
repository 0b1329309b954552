package upload

import (
	apiError "diagnostic-service/internal/errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	MaxFileSize = 10 * 1024 * 1024 // 10 MB
	MaxFiles    = 5
)

var (
	allowedExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}
	allowedMimeTypes  = []string{"application/pdf", "image/jpeg", "image/png"}
)

// StoredFile is the metadata the workflow needs about one written file.
type StoredFile struct {
	OriginalName string
	StoredName   string
	Path         string
	MimeType     string
	Size         int64
}

// Store writes uploaded files under a single root directory. Filenames
// embed the owning patient id, a timestamp and a random suffix, so no
// locking is needed for concurrent writes.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// EnsureDir creates the storage root. Called once at startup, not per request.
func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// Save validates the whole batch first and only then writes: a request with
// one bad file is rejected entirely, no partial acceptance.
func (s *Store) Save(namespace string, files []*multipart.FileHeader) ([]StoredFile, error) {
	if len(files) > MaxFiles {
		return nil, apiError.BadRequest(
			"Demasiados archivos",
			fmt.Sprintf("Se permiten como máximo %d archivos por petición", MaxFiles),
			nil,
		)
	}

	for _, fh := range files {
		if err := validateFile(fh); err != nil {
			return nil, err
		}
	}

	stored := make([]StoredFile, 0, len(files))
	for _, fh := range files {
		sf, err := s.saveOne(namespace, fh)
		if err != nil {
			// files already written for this batch are orphans, remove them
			s.Remove(stored)
			return nil, apiError.Internal(err)
		}
		stored = append(stored, sf)
	}

	return stored, nil
}

// Remove deletes stored files, best effort. Used as the compensating action
// when a later stage of the workflow fails.
func (s *Store) Remove(files []StoredFile) {
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil {
			log.Printf("Error al eliminar el archivo %s: %v", f.Path, err)
		}
	}
}

// RemovePath deletes a single blob by path.
func (s *Store) RemovePath(path string) error {
	return os.Remove(path)
}

func validateFile(fh *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	mimeType := fh.Header.Get("Content-Type")

	if !slices.Contains(allowedExtensions, ext) || !slices.Contains(allowedMimeTypes, mimeType) {
		return apiError.BadRequest(
			"Tipo de archivo no permitido",
			"Solo se permiten archivos PDF, JPG o PNG",
			fmt.Errorf("file %q ext=%q mime=%q", fh.Filename, ext, mimeType),
		)
	}

	if fh.Size > MaxFileSize {
		return apiError.BadRequest(
			"Archivo demasiado grande",
			fmt.Sprintf("Cada archivo puede pesar como máximo %d MB", MaxFileSize/(1024*1024)),
			fmt.Errorf("file %q size=%d", fh.Filename, fh.Size),
		)
	}

	return nil
}

func (s *Store) saveOne(namespace string, fh *multipart.FileHeader) (StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	storedName := fmt.Sprintf(
		"diagnostic-%s-%d-%d%s",
		namespace,
		time.Now().UnixMilli(),
		rand.Int63n(1_000_000_000),
		ext,
	)
	path := filepath.Join(s.dir, storedName)

	src, err := fh.Open()
	if err != nil {
		return StoredFile{}, err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return StoredFile{}, err
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return StoredFile{}, err
	}

	return StoredFile{
		OriginalName: fh.Filename,
		StoredName:   storedName,
		Path:         path,
		MimeType:     fh.Header.Get("Content-Type"),
		Size:         size,
	}, nil
}
