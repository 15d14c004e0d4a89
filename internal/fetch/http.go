package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// HeaderResolver 按主机名返回 User-Agent 与 Referer，空值表示不设置。
type HeaderResolver func(host string) (userAgent, referer string)

// HTTPFetcher 通过 GET 下载单个 URL，经临时文件写入 Job.Dest。不做任何重试。
type HTTPFetcher struct {
	client  *http.Client
	headers HeaderResolver
}

// HTTPOption 调整 HTTPFetcher。
type HTTPOption func(*HTTPFetcher)

// WithHeaders 为所有请求设置固定的 User-Agent 与 Referer。
func WithHeaders(userAgent, referer string) HTTPOption {
	return WithHeaderResolver(func(string) (string, string) {
		return userAgent, referer
	})
}

// WithHeaderResolver 按请求主机决定请求头。
func WithHeaderResolver(fn HeaderResolver) HTTPOption {
	return func(h *HTTPFetcher) {
		h.headers = fn
	}
}

// NewHTTPFetcher 使用给定 client 创建下载器；client 为空时使用默认超时的 client。
func NewHTTPFetcher(client *http.Client, opts ...HTTPOption) *HTTPFetcher {
	if client == nil {
		client = NewClient(nil)
	}
	h := &HTTPFetcher{client: client}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch 实现 Fetcher。非 2xx 返回包装了 StatusError 的 NetworkError。
func (h *HTTPFetcher) Fetch(ctx context.Context, job Job, report func(n int64)) (string, error) {
	if job.ID == "" || job.Dest == "" {
		return "", apperr.InvalidInput("job url and destination required")
	}
	target, err := url.Parse(job.ID)
	if err != nil {
		return "", apperr.Network(err, "invalid url %s", job.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", apperr.Network(err, "build request for %s", job.ID)
	}
	h.applyHeaders(req, target.Hostname())

	resp, err := h.client.Do(req)
	if err != nil {
		return "", apperr.Network(err, "fetch %s", job.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", apperr.Network(&apperr.StatusError{URL: job.ID, StatusCode: resp.StatusCode}, "fetch %s", job.ID)
	}

	if err := writeBody(job.Dest, resp.Body, report); err != nil {
		return "", err
	}
	return job.Dest, nil
}

func (h *HTTPFetcher) applyHeaders(req *http.Request, host string) {
	if h.headers == nil {
		return
	}
	userAgent, referer := h.headers(host)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// writeBody 把响应体写入临时文件后重命名，读取失败视为网络错误，写入失败视为 IO 错误。
func writeBody(dest string, body io.Reader, report func(int64)) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apperr.IO(err, "create destination directory")
	}
	tempFile, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return apperr.IO(err, "create temporary file")
	}
	tempName := tempFile.Name()

	copyErr := copyWithProgress(tempFile, body, report)
	closeErr := tempFile.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = apperr.IO(closeErr, "close temporary file")
	}
	if copyErr != nil {
		os.Remove(tempName)
		return copyErr
	}

	if err := os.Rename(tempName, dest); err != nil {
		os.Remove(tempName)
		return apperr.IO(err, "move download into place")
	}
	return nil
}

func copyWithProgress(dst io.Writer, src io.Reader, report func(int64)) error {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return apperr.IO(err, "write download")
			}
			if report != nil {
				report(int64(n))
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return apperr.Network(readErr, "read response body")
		}
	}
}
