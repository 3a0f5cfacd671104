package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Copier sends a finished dump somewhere outside the backup directory.
type Copier interface {
	Copy(ctx context.Context, path string) error
}

// DirCopier copies dumps into another directory, typically a mounted share.
type DirCopier struct {
	Dir string
}

func (c *DirCopier) Copy(ctx context.Context, path string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(c.Dir, filepath.Base(path)))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// HTTPCopier uploads dumps with PUT <URL>/<file name>.
type HTTPCopier struct {
	client *resty.Client
	url    string
}

func NewHTTPCopier(url string) *HTTPCopier {
	client := resty.New().
		SetTimeout(5 * time.Minute).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)
	return &HTTPCopier{client: client, url: strings.TrimRight(url, "/")}
}

func (c *HTTPCopier) Copy(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Put(c.url + "/" + filepath.Base(path))
	if err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload %s: status %d", filepath.Base(path), resp.StatusCode())
	}
	return nil
}
