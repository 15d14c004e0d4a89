// Package resolver turns a collection locator (a chapter page URL) into the
// ordered list of item URLs to download, and a series page into its chapter
// list. HTMLResolver understands the WordPress manga theme markup.
package resolver

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// Item 是集合中的一个待下载项。
type Item struct {
	SourceURL string
}

// Collection 是解析后的章节：标题与按阅读顺序排列的图片。
type Collection struct {
	Title string
	Items []Item
}

// URLs 按顺序返回所有条目的来源 URL。
func (c Collection) URLs() []string {
	urls := make([]string, len(c.Items))
	for i, it := range c.Items {
		urls[i] = it.SourceURL
	}
	return urls
}

// Chapter 是系列页中的一个章节入口，Index 从 0 开始。
type Chapter struct {
	Index int
	Title string
	URL   string
}

// Series 是系列页解析结果。
type Series struct {
	Title    string
	Chapters []Chapter
}

// Resolver 把集合定位符解析为集合。
type Resolver interface {
	Resolve(ctx context.Context, locator string) (Collection, error)
}

// HTMLResolver 通过 HTTP 获取页面并按主题的固定选择器提取内容。
type HTMLResolver struct {
	client    *http.Client
	userAgent string
}

// Option 调整 HTMLResolver。
type Option func(*HTMLResolver)

// WithUserAgent 为页面请求设置 User-Agent。
func WithUserAgent(ua string) Option {
	return func(r *HTMLResolver) {
		r.userAgent = ua
	}
}

// NewHTMLResolver 使用给定 client 创建解析器，client 为空时使用 http.DefaultClient。
func NewHTMLResolver(client *http.Client, opts ...Option) *HTMLResolver {
	if client == nil {
		client = http.DefaultClient
	}
	r := &HTMLResolver{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 获取章节页并提取标题与图片列表。
func (r *HTMLResolver) Resolve(ctx context.Context, locator string) (Collection, error) {
	body, err := r.get(ctx, locator)
	if err != nil {
		return Collection{}, err
	}
	defer body.Close()
	return ParseChapter(body)
}

// Series 获取系列页并提取标题与章节列表。
func (r *HTMLResolver) Series(ctx context.Context, locator string) (Series, error) {
	body, err := r.get(ctx, locator)
	if err != nil {
		return Series{}, err
	}
	defer body.Close()
	return ParseSeries(body)
}

func (r *HTMLResolver) get(ctx context.Context, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(locator), nil)
	if err != nil {
		return nil, apperr.Network(err, "build request for %s", locator)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.Network(err, "fetch page %s", locator)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, apperr.Network(&apperr.StatusError{URL: locator, StatusCode: resp.StatusCode}, "fetch page %s", locator)
	}
	return resp.Body, nil
}
