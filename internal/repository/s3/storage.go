package s3

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
)

const (
	metaFilename     = "Filename"
	metaBusinessID   = "Business-Id"
	metaDerivativeID = "Derivative-Id"
	metaPhotoID      = "Photo-Id"
	metaWidth        = "Width"
	metaHeight       = "Height"
)

// Storage keys each object by its id; the display name lives in object
// metadata. One session is shared by all in-flight requests.
type Storage struct {
	s       *session.Session
	buckets map[entity.Namespace]string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	AccessSecret string
	Region       string
	Buckets      map[entity.Namespace]string
}

func New(ctx context.Context, c StorageConfig) (*Storage, error) {
	s, err := session.NewSession(
		aws.NewConfig().
			WithEndpoint(c.Endpoint).
			WithCredentials(credentials.NewStaticCredentials(c.AccessKey, c.AccessSecret, "")).
			WithRegion(c.Region).
			WithS3ForcePathStyle(true),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}

	storage := &Storage{
		s:       s,
		buckets: c.Buckets,
	}

	for ns, bucket := range c.Buckets {
		if err := storage.ensureBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("ensure bucket `%s` for %s: %w", bucket, ns, err)
		}
	}

	return storage, nil
}

func (s *Storage) ensureBucket(ctx context.Context, bucket string) error {
	_, err := s3.New(s.s).CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: &bucket,
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeBucketAlreadyOwnedByYou, s3.ErrCodeBucketAlreadyExists:
				return nil
			}
		}

		return fmt.Errorf("create bucket: %w", err)
	}

	return nil
}

func (s *Storage) bucket(ns entity.Namespace) (string, error) {
	bucket, ok := s.buckets[ns]
	if !ok {
		return "", fmt.Errorf("unknown namespace `%s`", ns)
	}

	return bucket, nil
}

func (s *Storage) Put(ctx context.Context, ns entity.Namespace, id, name string, r io.Reader, meta repository.ObjectMeta) (string, error) {
	bucket, err := s.bucket(ns)
	if err != nil {
		return "", fmt.Errorf("%w: %w", entity.ErrStorageWrite, err)
	}

	if id == "" {
		id = uuid.NewString()
	}

	if _, err := s3manager.NewUploader(s.s).UploadWithContext(ctx, &s3manager.UploadInput{
		Body:        r,
		Bucket:      &bucket,
		Key:         &id,
		ContentType: &meta.ContentType,
		Metadata:    toUserMeta(name, meta),
	}); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w: %w", ns, id, entity.ErrStorageWrite, err)
	}

	return id, nil
}

func (s *Storage) Get(ctx context.Context, ns entity.Namespace, idOrName string) (*repository.ObjectReader, error) {
	bucket, err := s.bucket(ns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrStorageRead, err)
	}

	id := entity.StripExt(idOrName)

	output, err := s3.New(s.s).GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &id,
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("get object %s/%s: %w", ns, id, entity.ErrNotFound)
		}

		return nil, fmt.Errorf("get object %s/%s: %w: %w", ns, id, entity.ErrStorageRead, err)
	}

	info := objectInfo(id, aws.StringValue(output.ContentType), aws.Int64Value(output.ContentLength), output.Metadata)

	return &repository.ObjectReader{
		ObjectInfo: *info,
		Content:    output.Body,
	}, nil
}

func (s *Storage) Stat(ctx context.Context, ns entity.Namespace, idOrName string) (*repository.ObjectInfo, error) {
	bucket, err := s.bucket(ns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrStorageRead, err)
	}

	id := entity.StripExt(idOrName)

	output, err := s3.New(s.s).HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &id,
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, "NotFound":
				return nil, fmt.Errorf("head object %s/%s: %w", ns, id, entity.ErrNotFound)
			}
		}

		return nil, fmt.Errorf("head object %s/%s: %w: %w", ns, id, entity.ErrStorageRead, err)
	}

	return objectInfo(id, aws.StringValue(output.ContentType), aws.Int64Value(output.ContentLength), output.Metadata), nil
}

func toUserMeta(name string, meta repository.ObjectMeta) map[string]*string {
	m := map[string]*string{
		metaFilename: aws.String(name),
	}
	if meta.BusinessID != "" {
		m[metaBusinessID] = aws.String(meta.BusinessID)
	}
	if meta.DerivativeID != "" {
		m[metaDerivativeID] = aws.String(meta.DerivativeID)
	}
	if meta.PhotoID != "" {
		m[metaPhotoID] = aws.String(meta.PhotoID)
	}
	if meta.Width > 0 {
		m[metaWidth] = aws.String(strconv.Itoa(meta.Width))
	}
	if meta.Height > 0 {
		m[metaHeight] = aws.String(strconv.Itoa(meta.Height))
	}

	return m
}

func objectInfo(id, contentType string, size int64, user map[string]*string) *repository.ObjectInfo {
	width, _ := strconv.Atoi(aws.StringValue(user[metaWidth]))
	height, _ := strconv.Atoi(aws.StringValue(user[metaHeight]))

	return &repository.ObjectInfo{
		ID:   id,
		Name: aws.StringValue(user[metaFilename]),
		Size: size,
		Meta: repository.ObjectMeta{
			ContentType:  contentType,
			Filename:     aws.StringValue(user[metaFilename]),
			BusinessID:   aws.StringValue(user[metaBusinessID]),
			DerivativeID: aws.StringValue(user[metaDerivativeID]),
			PhotoID:      aws.StringValue(user[metaPhotoID]),
			Width:        width,
			Height:       height,
		},
	}
}
