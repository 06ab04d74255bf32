package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// minPartSize is the S3 minimum multipart part size.
const minPartSize int64 = 5 * 1024 * 1024

// Objects implements domain.BlobWriter, domain.BlobReader and
// domain.BlobDeleter on one bucket.
type Objects struct {
	c *Client
}

// NewObjects returns the object API for c's bucket.
func NewObjects(c *Client) *Objects {
	return &Objects{c: c}
}

var (
	_ domain.BlobWriter  = (*Objects)(nil)
	_ domain.BlobReader  = (*Objects)(nil)
	_ domain.BlobDeleter = (*Objects)(nil)
)

// Put uploads data in a single PutObject.
func (o *Objects) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := o.c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.c.bucket),
		Key:         aws.String(o.c.key(path)),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart uploads through the transfer manager; partSize is raised to
// the S3 minimum.
func (o *Objects) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	uploader := manager.NewUploader(o.c.s3, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.c.bucket),
		Key:    aws.String(o.c.key(path)),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// Get opens the object at path. The caller closes the body.
func (o *Objects) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := o.c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.c.bucket),
		Key:    aws.String(o.c.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return out.Body, nil
}

// List walks every page under prefix. Returned paths are relative to the
// client prefix.
func (o *Objects) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	strip := ""
	if o.c.prefix != "" {
		strip = o.c.prefix + "/"
	}

	paginator := s3.NewListObjectsV2Paginator(o.c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.c.bucket),
		Prefix: aws.String(o.c.key(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				Path: strings.TrimPrefix(aws.ToString(obj.Key), strip),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Exists issues HeadObject.
func (o *Objects) Exists(ctx context.Context, path string) (bool, error) {
	_, err := o.c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.c.bucket),
		Key:    aws.String(o.c.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: exists %s: %w", path, err)
	}
	return true, nil
}

// Delete removes the object at path. Missing objects are not an error.
func (o *Objects) Delete(ctx context.Context, path string) error {
	_, err := o.c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.c.bucket),
		Key:    aws.String(o.c.key(path)),
	})
	if err != nil {
		return fmt.Errorf("s3blob: delete %s: %w", path, err)
	}
	return nil
}

// isNotFound recognises NoSuchKey, the bare 404 HeadObject returns, and
// providers that only report the HTTP status.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound
}
