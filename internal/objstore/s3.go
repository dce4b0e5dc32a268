package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// S3 is a Store backed by Amazon S3. Completion markers are object tags.
type S3 struct {
	client    *s3.Client
	presigner *s3.PresignClient
}

// NewS3 wraps an S3 client. presigner may be nil, in which case PresignGet fails.
func NewS3(client *s3.Client, presigner *s3.PresignClient) *S3 {
	return &S3{client: client, presigner: presigner}
}

// Provider implements Store.
func (s *S3) Provider() Provider { return ProviderS3 }

// List implements Store using ListObjectsV2.
func (s *S3) List(ctx context.Context, container string, opts ListOptions) (*ListResult, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(container),
	}
	if opts.Prefix != "" {
		in.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		in.ContinuationToken = aws.String(opts.ContinuationToken)
	} else if opts.StartAfter != "" {
		in.StartAfter = aws.String(opts.StartAfter)
	}
	if opts.MaxKeys > 0 {
		in.MaxKeys = aws.Int32(int32(opts.MaxKeys))
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("S3 ListObjectsV2: %w", err)
	}

	res := &ListResult{
		IsTruncated:       aws.ToBool(out.IsTruncated),
		ContinuationToken: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		res.Objects = append(res.Objects, ObjectInfo{
			Container:    container,
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return res, nil
}

// Head implements Store.
func (s *S3) Head(ctx context.Context, container, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &container, Key: &key,
	})
	if err != nil {
		return nil, s3Error("HeadObject", key, err)
	}
	return &ObjectInfo{
		Container:    container,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

// GetRange implements Store with an HTTP Range request.
func (s *S3) GetRange(ctx context.Context, container, key string, offset, length int64) ([]byte, error) {
	log.Debug().Str("bucket", container).Str("key", key).Int64("offset", offset).Int64("length", length).Msg("Range read from S3")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &container,
		Key:    &key,
		Range:  aws.String(rangeHeader(offset, length)),
	})
	if err != nil {
		return nil, s3Error("GetObject", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// rangeHeader formats an inclusive byte range.
func rangeHeader(offset, length int64) string {
	if length <= 0 {
		return fmt.Sprintf("bytes=%d-", offset)
	}
	return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
}

// Download implements Store.
func (s *S3) Download(ctx context.Context, container, key, localPath string) error {
	log.Debug().Str("bucket", container).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &container, Key: &key,
	})
	if err != nil {
		return s3Error("GetObject", key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return fmt.Errorf("download: %w", err)
	}
	return f.Close()
}

// Put implements Store. Body should be seekable (file or bytes reader) so the
// SDK can sign the payload.
func (s *S3) Put(ctx context.Context, container, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: &container,
		Key:    &key,
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return nil
}

// GetTags implements Store.
func (s *S3) GetTags(ctx context.Context, container, key string) (Tags, error) {
	out, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: &container, Key: &key,
	})
	if err != nil {
		return nil, s3Error("GetObjectTagging", key, err)
	}
	return fromS3Tags(out.TagSet), nil
}

// PutTags implements Store, replacing the full tag set.
func (s *S3) PutTags(ctx context.Context, container, key string, tags Tags) error {
	_, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  &container,
		Key:     &key,
		Tagging: &s3types.Tagging{TagSet: toS3Tags(tags)},
	})
	if err != nil {
		return s3Error("PutObjectTagging", key, err)
	}
	return nil
}

// PresignGet implements URLSigner.
func (s *S3) PresignGet(ctx context.Context, container, key string, ttl time.Duration) (string, error) {
	if s.presigner == nil {
		return "", errors.New("S3 presigner not configured")
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &container, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return req.URL, nil
}

func fromS3Tags(in []s3types.Tag) Tags {
	out := make(Tags, 0, len(in))
	for _, t := range in {
		out = append(out, Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return out
}

func toS3Tags(in Tags) []s3types.Tag {
	out := make([]s3types.Tag, 0, len(in))
	for _, t := range in {
		out = append(out, s3types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return out
}

// s3Error maps missing-object responses to ErrNotFound.
func s3Error(op, key string, err error) error {
	if isS3NotFound(err) {
		return fmt.Errorf("S3 %s %s: %w", op, key, ErrNotFound)
	}
	return fmt.Errorf("S3 %s %s: %w", op, key, err)
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
