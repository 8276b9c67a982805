package upload

import (
	"bytes"
	"context"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyEndpoints "github.com/aws/smithy-go/endpoints"
)

type S3Uploader struct {
	s3Client        *s3.Client
	s3PresignClient *s3.PresignClient
	uploader        *manager.Uploader
	bucketName      string
	pathPrefix      string
}

type ResolverV2 struct{}

func (*ResolverV2) ResolveEndpoint(ctx context.Context, params s3.EndpointParameters) (
	smithyEndpoints.Endpoint, error,
) {
	return s3.NewDefaultEndpointResolverV2().ResolveEndpoint(ctx, params)
}

func NewS3Provider(opts *Config) (*S3Uploader, error) {
	creds := credentials.NewStaticCredentialsProvider(opts.S3AccessKey, opts.S3SecretKey, "")

	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithCredentialsProvider(creds))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.S3EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.S3EndpointURL)
		}
		o.Region = opts.S3Region
		o.EndpointResolverV2 = &ResolverV2{}
	})

	return &S3Uploader{
		s3Client:        client,
		s3PresignClient: s3.NewPresignClient(client),
		uploader:        manager.NewUploader(client),
		bucketName:      opts.S3BucketName,
		pathPrefix:      opts.S3PathPrefix,
	}, nil
}

func (u *S3Uploader) put(ctx context.Context, content []byte, objectKey, contentType string) (*manager.UploadOutput, error) {
	return u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(content),
		ACL:         types.ObjectCannedACLPrivate,
	})
}

func (u *S3Uploader) Put(ctx context.Context, file *File, subPath string) (*Stored, error) {
	hash := generateHash()
	stored := describe(file, S3, path.Join(u.pathPrefix, subPath, generateFileName(file.Name, hash)))

	out, err := u.put(ctx, file.Content, stored.StoragePath, file.Mime)
	if err != nil {
		return nil, err
	}
	stored.URL = out.Location

	if !file.IsImage() {
		return stored, nil
	}
	width, height, thumb, err := thumbnail(file.Content, DefaultThumbnailWidthInPx, DefaultThumbnailHeightInPx)
	if err != nil {
		return stored, nil
	}
	stored.Width, stored.Height = width, height
	stored.ThumbnailStoragePath = path.Join(u.pathPrefix, subPath, generateThumbnailName(file.Name, hash))
	thumbOut, err := u.put(ctx, thumb, stored.ThumbnailStoragePath, "image/png")
	if err != nil {
		_ = u.Remove(ctx, &Stored{StoragePath: stored.StoragePath})
		return nil, err
	}
	stored.ThumbnailURL = thumbOut.Location
	return stored, nil
}

func (u *S3Uploader) Remove(ctx context.Context, stored *Stored) error {
	objects := []types.ObjectIdentifier{{Key: aws.String(stored.StoragePath)}}
	if stored.ThumbnailStoragePath != "" {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(stored.ThumbnailStoragePath)})
	}

	_, err := u.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(u.bucketName),
		Delete: &types.Delete{Objects: objects},
	})
	return err
}

func (u *S3Uploader) PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	req, err := u.s3PresignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucketName),
		Key:    aws.String(objectKey),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
