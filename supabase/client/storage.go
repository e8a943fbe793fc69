package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StorageClient handles Supabase Storage object calls.
type StorageClient struct {
	client *Client
}

// Storage returns the storage API of the project.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// UploadOptions for file uploads.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

func (s *StorageClient) objectURL(kind, bucket, filePath string) string {
	segments := strings.Split(strings.TrimPrefix(filePath, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	u := s.client.baseURL + "/storage/v1/object"
	if kind != "" {
		u += "/" + kind
	}
	return u + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// Upload stores data at bucket/filePath and returns the object key.
func (s *StorageClient) Upload(ctx context.Context, bucket, filePath string, data []byte, opts *UploadOptions) (string, error) {
	headers := map[string]string{"Content-Type": "application/octet-stream"}
	if opts != nil {
		if opts.ContentType != "" {
			headers["Content-Type"] = opts.ContentType
		}
		if opts.CacheControl != "" {
			headers["Cache-Control"] = opts.CacheControl
		}
		if opts.Upsert {
			headers["x-upsert"] = "true"
		}
	}
	if data == nil {
		data = []byte{}
	}

	resp, err := s.client.request(ctx, "POST", s.objectURL("", bucket, filePath), data, headers, "storage/"+bucket)
	if err != nil {
		return "", err
	}

	var result struct {
		Key string `json:"Key"`
	}
	if err := resp.JSON(&result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Key == "" {
		result.Key = bucket + "/" + filePath
	}
	return result.Key, nil
}

// CreateSignedURL returns an absolute URL granting temporary read access.
func (s *StorageClient) CreateSignedURL(ctx context.Context, bucket, filePath string, ttl time.Duration) (string, error) {
	if ttl < time.Second {
		return "", fmt.Errorf("signed url ttl must be at least 1s, got %s", ttl)
	}
	body, err := json.Marshal(map[string]int{"expiresIn": int(ttl / time.Second)})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.client.request(ctx, "POST", s.objectURL("sign", bucket, filePath), body, nil, "storage/"+bucket)
	if err != nil {
		return "", err
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := resp.JSON(&result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.SignedURL == "" {
		return "", fmt.Errorf("storage returned no signed url")
	}
	if strings.HasPrefix(result.SignedURL, "http") {
		return result.SignedURL, nil
	}
	return s.client.baseURL + "/storage/v1" + result.SignedURL, nil
}

// Download fetches an object.
func (s *StorageClient) Download(ctx context.Context, bucket, filePath string) ([]byte, error) {
	resp, err := s.client.request(ctx, "GET", s.objectURL("", bucket, filePath), nil, nil, "storage/"+bucket)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete removes objects from a bucket.
func (s *StorageClient) Delete(ctx context.Context, bucket string, filePaths ...string) error {
	if len(filePaths) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string][]string{"prefixes": filePaths})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	reqURL := s.client.baseURL + "/storage/v1/object/" + url.PathEscape(bucket)
	_, err = s.client.request(ctx, "DELETE", reqURL, body, nil, "storage/"+bucket)
	return err
}

// GetPublicURL returns the public URL for an object in a public bucket.
func (s *StorageClient) GetPublicURL(bucket, filePath string) string {
	return s.objectURL("public", bucket, filePath)
}
