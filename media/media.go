// Package media stores uploaded files (room maps, general maps and documents)
// under the media directory.
package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	MapsDir      = "maps"
	DocumentsDir = "documents"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

type Store struct {
	Dir      string
	MaxWidth int
}

func New(dir string, maxWidth int) *Store {
	return &Store{Dir: dir, MaxWidth: maxWidth}
}

// Path returns the location on disk of a stored file.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(rel))
}

// UniqueName keeps the original name readable while making it unique.
func UniqueName(folder, original string) string {
	safe := unsafeChars.ReplaceAllString(filepath.Base(original), "_")
	return fmt.Sprintf("%s/%s-%s-%s", folder, time.Now().Format("20060102"), uuid.NewString(), safe)
}

// SaveImage decodes an uploaded image and writes it, scaled down to MaxWidth
// when wider. The returned path is relative to Dir.
func (s *Store) SaveImage(fh *multipart.FileHeader, folder string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if s.MaxWidth > 0 && img.Bounds().Dx() > s.MaxWidth {
		img = imaging.Resize(img, s.MaxWidth, 0, imaging.Lanczos)
	}

	rel := UniqueName(folder, normalizeExt(fh.Filename))
	dst := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := imaging.Save(img, dst); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return rel, nil
}

// SaveFile copies an upload as is.
func (s *Store) SaveFile(fh *multipart.FileHeader, folder string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	rel := UniqueName(folder, fh.Filename)
	dst := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	return rel, out.Close()
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(s.Path(rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// normalizeExt maps the upload extension to one imaging can encode.
func normalizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif":
		return base + ext
	default:
		return base + ".png"
	}
}
