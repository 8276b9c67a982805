package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/samber/lo"
)

type Provider string

const (
	Local Provider = "local"
	S3    Provider = "s3"

	HashLength = 32

	DefaultThumbnailWidthInPx  = 400
	DefaultThumbnailHeightInPx = 400
)

type File struct {
	Name    string `json:"name"`
	Mime    string `json:"mime"`
	Content []byte `json:"-"`
}

func (file *File) IsImage() bool {
	return strings.HasPrefix(file.Mime, "image/")
}

// Stored describes an object after upload. StoragePath is the key used to
// remove it or presign it later.
type Stored struct {
	Name                 string   `json:"name"`
	Mime                 string   `json:"mime"`
	Ext                  string   `json:"ext"`
	URL                  string   `json:"url"`
	ThumbnailURL         string   `json:"thumbnail_url,omitempty"`
	Width                int64    `json:"width,omitempty"`
	Height               int64    `json:"height,omitempty"`
	Size                 int64    `json:"size"`
	StoragePath          string   `json:"storage_path"`
	ThumbnailStoragePath string   `json:"thumbnail_storage_path,omitempty"`
	Provider             Provider `json:"provider"`
}

type Client interface {
	Put(ctx context.Context, file *File, subPath string) (*Stored, error)
	Remove(ctx context.Context, stored *Stored) error
	PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

type Config struct {
	Provider string `json:"provider" yaml:"provider" env:"UPLOAD_PROVIDER"`
	LocalDir string `json:"local_dir" yaml:"local_dir" env:"UPLOAD_LOCAL_DIR"`

	S3AccessKey   string `json:"s3_access_key" yaml:"s3_access_key" env:"UPLOAD_S3_ACCESS_KEY"`
	S3SecretKey   string `json:"s3_secret_key" yaml:"s3_secret_key" env:"UPLOAD_S3_SECRET_KEY"`
	S3EndpointURL string `json:"s3_endpoint_url" yaml:"s3_endpoint_url" env:"UPLOAD_S3_ENDPOINT_URL"`
	S3BucketName  string `json:"s3_bucket_name" yaml:"s3_bucket_name" env:"UPLOAD_S3_BUCKET_NAME"`
	S3PathPrefix  string `json:"s3_path_prefix" yaml:"s3_path_prefix" env:"UPLOAD_S3_PATH_PREFIX"`
	S3Region      string `json:"s3_region" yaml:"s3_region" env:"UPLOAD_S3_REGION"`
}

func New(config *Config) (Client, error) {
	switch Provider(config.Provider) {
	case Local:
		return NewLocalUploader(config)
	case S3:
		return NewS3Provider(config)
	default:
		return nil, fmt.Errorf("unsupported upload provider: %s", config.Provider)
	}
}

func getExt(fileName string) string {
	return path.Ext(fileName)
}

func generateHash() string {
	return lo.RandomString(HashLength, lo.AlphanumericCharset)
}

func generateFileName(filename, hash string) string {
	return hash + "_" + strings.ReplaceAll(path.Base(filename), " ", "-")
}

func generateThumbnailName(filename, hash string) string {
	name := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	return "thumb_" + hash + "_" + strings.ReplaceAll(name, " ", "-") + ".png"
}

// thumbnail decodes an image and returns its size and a PNG thumbnail.
func thumbnail(content []byte, width, height uint) (w, h int64, png []byte, err error) {
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return 0, 0, nil, err
	}

	thumb := resize.Thumbnail(width, height, img, resize.Lanczos3)
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, thumb, imaging.PNG); err != nil {
		return 0, 0, nil, err
	}
	return int64(img.Bounds().Dx()), int64(img.Bounds().Dy()), buf.Bytes(), nil
}

func describe(file *File, provider Provider, storagePath string) *Stored {
	return &Stored{
		Name:        file.Name,
		Mime:        file.Mime,
		Ext:         getExt(file.Name),
		Size:        int64(len(file.Content)),
		StoragePath: storagePath,
		Provider:    provider,
	}
}
