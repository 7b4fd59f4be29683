// Package store wraps the AWS S3 client with the narrow set of
// operations the archiver needs: page listing, object streaming,
// whole-object and chunked uploads, and batch deletion.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Options configures client construction. The zero value resolves
// region and credentials from the default AWS chain.
type Options struct {
	// Region overrides the resolved AWS region.
	Region string
	// Endpoint points the client at an S3-compatible store. When set,
	// path-style addressing is enabled unless UsePathStyle is false
	// explicitly via the raw SDK options.
	Endpoint string
	// AccessKey and SecretKey select static credentials. Both must be
	// set together; used with custom endpoints (MinIO and friends).
	AccessKey string
	SecretKey string
	// MaxAttempts bounds SDK retries for transient failures
	// (default 3). Retries happen at this boundary only; the upload
	// sink never retries internally.
	MaxAttempts int
}

// Client provides S3 operations for the archiver.
type Client struct {
	s3Client *s3.Client
}

// NewClient creates a client from the default AWS configuration plus
// the given overrides.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeStandard),
	}
	if opts.MaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(opts.MaxAttempts))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" || opts.SecretKey != "" {
		if opts.AccessKey == "" || opts.SecretKey == "" {
			return nil, errors.New("access key and secret key must be set together")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{s3Client: s3Client}, nil
}

// NewClientFromConfig creates a client from an existing AWS config.
func NewClientFromConfig(cfg aws.Config) *Client {
	return &Client{s3Client: s3.NewFromConfig(cfg)}
}

// ListPage fetches one page of the bucket listing scoped to prefix.
// token is the continuation token from the previous page, nil for the
// first page. Entries without size or last-modified metadata fail the
// page with ErrMissingMetadata.
func (c *Client) ListPage(ctx context.Context, bucket, prefix string, token *string) (*Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(bucket),
		ContinuationToken: token,
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	resp, err := c.s3Client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}

	page := &Page{
		Objects:   make([]Object, 0, len(resp.Contents)),
		NextToken: resp.NextContinuationToken,
	}
	for _, obj := range resp.Contents {
		if obj.Key == nil {
			continue
		}
		if obj.Size == nil || obj.LastModified == nil {
			return nil, fmt.Errorf("object %q: %w", *obj.Key, ErrMissingMetadata)
		}
		page.Objects = append(page.Objects, Object{
			Key:          *obj.Key,
			Size:         *obj.Size,
			LastModified: *obj.LastModified,
		})
	}
	return page, nil
}

// Get returns a streaming reader for an object. The caller owns the
// returned reader and must close it.
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

// Put writes data as a single whole object.
func (c *Client) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// CreateUpload starts a chunked upload session and returns its id.
func (c *Client) CreateUpload(ctx context.Context, bucket, key string) (string, error) {
	resp, err := c.s3Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload for s3://%s/%s: %w", bucket, key, err)
	}
	if resp.UploadId == nil || *resp.UploadId == "" {
		return "", fmt.Errorf("create multipart upload for s3://%s/%s: no upload id in response", bucket, key)
	}
	return *resp.UploadId, nil
}

// UploadPart sends one numbered part of a session and returns the
// store-assigned ETag.
func (c *Client) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, data []byte) (string, error) {
	resp, err := c.s3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("upload part %d of s3://%s/%s: %w", partNumber, bucket, key, err)
	}
	if resp.ETag == nil || *resp.ETag == "" {
		return "", fmt.Errorf("upload part %d of s3://%s/%s: no etag in response", partNumber, bucket, key)
	}
	return *resp.ETag, nil
}

// CompleteUpload finalizes a session with the ordered parts list.
func (c *Client) CompleteUpload(ctx context.Context, bucket, key, uploadID string, parts []Part) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.Number),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := c.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload of s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// AbortUpload discards a session and any parts already uploaded.
func (c *Client) AbortUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := c.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload of s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeleteBatch deletes up to the store's bulk limit of keys in one call.
// It returns the keys confirmed deleted and any per-key failures from
// the response body; err is non-nil only for transport-level failures.
func (c *Client) DeleteBatch(ctx context.Context, bucket string, keys []string) (deleted []string, failures []KeyError, err error) {
	identifiers := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		identifiers[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	resp, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: identifiers},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("delete batch of %d keys from %s: %w", len(keys), bucket, err)
	}

	deleted = make([]string, 0, len(resp.Deleted))
	for _, d := range resp.Deleted {
		if d.Key != nil {
			deleted = append(deleted, *d.Key)
		}
	}
	for _, e := range resp.Errors {
		failures = append(failures, KeyError{
			Key:     aws.ToString(e.Key),
			Code:    aws.ToString(e.Code),
			Message: aws.ToString(e.Message),
		})
	}
	return deleted, failures, nil
}
