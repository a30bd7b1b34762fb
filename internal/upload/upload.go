package upload

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"time"
)

// Slot is a negotiated pair of write/read URLs issued by the upload service.
type Slot struct {
	PutURL  string
	GetURL  string
	Headers map[string]string
}

// Client performs the out-of-band byte transfer for granted slots.
type Client struct {
	http *http.Client
}

// NewClient creates an upload client.
func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Put writes the file bytes to the slot's write URL. The read URL becomes
// usable only after this returns without error.
func (c *Client) Put(ctx context.Context, slot Slot, filename string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.PutURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}

	req.Header.Set("Content-Type", ContentType(filename))
	req.ContentLength = int64(len(data))
	for k, v := range slot.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload transfer failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload failed with status: %d", resp.StatusCode)
	}
	return nil
}

// ContentType guesses a MIME type from the filename extension.
func ContentType(filename string) string {
	t := mime.TypeByExtension(filepath.Ext(filename))
	if t == "" {
		return "application/octet-stream"
	}
	return t
}
