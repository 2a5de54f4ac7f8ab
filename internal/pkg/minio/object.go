package minio

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// UploadInfo represents information about an uploaded object
type UploadInfo struct {
	Bucket    string
	Key       string
	ETag      string
	Size      int64
	VersionID string
}

// PutBytes 上传内存中的对象
func (c *Client) PutBytes(ctx context.Context, objectName string, data []byte, contentType string) (UploadInfo, error) {
	if err := c.checkClosed(); err != nil {
		return UploadInfo{}, err
	}
	if objectName == "" {
		return UploadInfo{}, wrapError("PutObject", ErrInvalidObjectName, c.config.Bucket, objectName)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	info, err := c.client.PutObject(ctx, c.config.Bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return UploadInfo{}, wrapError("PutObject", err, c.config.Bucket, objectName)
	}

	c.logger.Debug("object uploaded",
		zap.String("bucket", info.Bucket),
		zap.String("object", info.Key),
		zap.Int64("size", info.Size),
	)

	return UploadInfo{
		Bucket:    info.Bucket,
		Key:       info.Key,
		ETag:      info.ETag,
		Size:      info.Size,
		VersionID: info.VersionID,
	}, nil
}

// GetBytes 读取整个对象, 不存在时 IsNotFound 为 true
func (c *Client) GetBytes(ctx context.Context, objectName string) ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if objectName == "" {
		return nil, wrapError("GetObject", ErrInvalidObjectName, c.config.Bucket, objectName)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	obj, err := c.client.GetObject(ctx, c.config.Bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapError("GetObject", err, c.config.Bucket, objectName)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapError("GetObject", err, c.config.Bucket, objectName)
	}
	return data, nil
}
