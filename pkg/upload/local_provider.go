package upload

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"time"
)

const StaticsFsPath = "/uploads/"

type LocalUploader struct {
	uploadDirPath string
}

func NewLocalUploader(opts *Config) (*LocalUploader, error) {
	if opts.LocalDir == "" {
		return nil, errors.New("upload local_dir is required")
	}
	return &LocalUploader{uploadDirPath: opts.LocalDir}, nil
}

func (u *LocalUploader) Put(ctx context.Context, file *File, subPath string) (*Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := generateHash()
	name := generateFileName(file.Name, hash)
	stored := describe(file, Local, filepath.Join(u.uploadDirPath, subPath, name))
	if err := saveFile(stored.StoragePath, file.Content); err != nil {
		return nil, err
	}
	stored.URL = path.Join(StaticsFsPath, subPath, name)

	if !file.IsImage() {
		return stored, nil
	}
	width, height, thumb, err := thumbnail(file.Content, DefaultThumbnailWidthInPx, DefaultThumbnailHeightInPx)
	if err != nil {
		// Undecodable images are kept without a thumbnail.
		return stored, nil
	}
	thumbName := generateThumbnailName(file.Name, hash)
	stored.Width, stored.Height = width, height
	stored.ThumbnailStoragePath = filepath.Join(u.uploadDirPath, subPath, thumbName)
	if err := saveFile(stored.ThumbnailStoragePath, thumb); err != nil {
		return nil, err
	}
	stored.ThumbnailURL = path.Join(StaticsFsPath, subPath, thumbName)
	return stored, nil
}

func (u *LocalUploader) Remove(_ context.Context, stored *Stored) error {
	if err := os.Remove(stored.StoragePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if stored.ThumbnailStoragePath != "" {
		if err := os.Remove(stored.ThumbnailStoragePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// PresignGet returns the static path; local files are served directly.
func (u *LocalUploader) PresignGet(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	rel, err := filepath.Rel(u.uploadDirPath, objectKey)
	if err != nil {
		return "", err
	}
	return path.Join(StaticsFsPath, filepath.ToSlash(rel)), nil
}

func saveFile(dst string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, content, 0o644)
}
