package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig configures ObjectSink.
type ObjectConfig struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// ObjectPutter is the part of *minio.Client used by ObjectSink.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectSink uploads received MMS to an S3-compatible bucket: one object per
// attachment plus a metadata.json, all under <prefix><mms id>/.
type ObjectSink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewObjectSink connects to the object store.
func NewObjectSink(cfg ObjectConfig) (*ObjectSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: creating client: %w", err)
	}
	return newObjectSink(client, cfg.Bucket, cfg.Prefix), nil
}

func newObjectSink(client ObjectPutter, bucket, prefix string) *ObjectSink {
	return &ObjectSink{client: client, bucket: bucket, prefix: prefix}
}

func (s *ObjectSink) Name() string { return "s3" }

func (s *ObjectSink) Forward(ctx context.Context, e *Event) error {
	if e.MMS == nil {
		return nil
	}
	dir := s.prefix + e.MMS.ID + "/"

	for i, p := range e.MMS.Attachments {
		key := fmt.Sprintf("%s%02d%s", dir, i, extensionFor(p.ContentType))
		if err := s.put(ctx, key, p.ContentType, p.Data, map[string]string{"mms-id": e.MMS.ID}); err != nil {
			return err
		}
	}

	meta, err := json.Marshal(e.WithoutAttachmentData().MMS)
	if err != nil {
		return fmt.Errorf("s3: encoding metadata: %w", err)
	}
	return s.put(ctx, path.Join(dir, "metadata.json"), "application/json", meta, nil)
}

func (s *ObjectSink) put(ctx context.Context, key, contentType string, data []byte, meta map[string]string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, UserMetadata: meta})
	if err != nil {
		return fmt.Errorf("s3: uploading %s: %w", key, err)
	}
	return nil
}

var preferredExtensions = map[string]string{
	"text/plain": ".txt",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"audio/amr":  ".amr",
	"audio/mpeg": ".mp3",
	"video/3gpp": ".3gp",
	"video/mp4":  ".mp4",
}

// extensionFor picks a file extension for a media type, ".bin" if unknown.
func extensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	if ext, ok := preferredExtensions[ct]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
