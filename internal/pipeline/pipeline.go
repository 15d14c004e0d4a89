// Package pipeline 串联系列解析、章节选择、缓存命中判断、批量下载与渲染。
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mangafetch/mangafetch/internal/apperr"
	"github.com/mangafetch/mangafetch/internal/cache"
	"github.com/mangafetch/mangafetch/internal/fetch"
	"github.com/mangafetch/mangafetch/internal/logging"
	"github.com/mangafetch/mangafetch/internal/platform"
	"github.com/mangafetch/mangafetch/internal/render"
	"github.com/mangafetch/mangafetch/internal/resolver"
)

// Source 同时提供系列页与章节页解析。
type Source interface {
	resolver.Resolver
	Series(ctx context.Context, locator string) (resolver.Series, error)
}

// Options 描述 Pipeline 的依赖；Cache、Source、Fetcher、Renderer 必填。
type Options struct {
	Cache       *cache.Manager
	Source      Source
	Fetcher     fetch.Fetcher
	Renderer    render.Renderer
	OutputDir   string
	Concurrency int
	// TempRoot 是批次临时目录的父目录，为空时使用 platform.TempDir。
	TempRoot string
	Logger   *logrus.Logger
	Progress fetch.ProgressSink
}

// Pipeline 逐章处理所选章节，单章失败不会影响其它章节。
type Pipeline struct {
	opts Options
	ext  string
}

// New 校验依赖并创建 Pipeline。
func New(opts Options) (*Pipeline, error) {
	if opts.Cache == nil || opts.Source == nil || opts.Fetcher == nil || opts.Renderer == nil {
		return nil, apperr.InvalidInput("pipeline requires cache, source, fetcher and renderer")
	}
	if opts.Concurrency < 1 {
		return nil, apperr.InvalidInput("concurrency must be at least 1, got %d", opts.Concurrency)
	}
	if opts.OutputDir == "" {
		return nil, apperr.InvalidInput("output directory required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	ext := ".pdf"
	if named, ok := opts.Renderer.(interface{ Extension() string }); ok {
		ext = named.Extension()
	}
	return &Pipeline{opts: opts, ext: ext}, nil
}

// ChapterReport 记录单章处理结果；Err 非空表示该章被跳过。
type ChapterReport struct {
	Index    int
	Title    string
	URL      string
	Output   string
	CacheHit bool
	Items    int
	Failed   int
	Err      error
}

// Report 汇总一次系列下载。
type Report struct {
	Series   string
	Chapters []ChapterReport
}

// Failed 返回被跳过的章节数量。
func (r Report) Failed() int {
	n := 0
	for _, ch := range r.Chapters {
		if ch.Err != nil {
			n++
		}
	}
	return n
}

// Series 解析系列页。
func (p *Pipeline) Series(ctx context.Context, link string) (resolver.Series, error) {
	return p.opts.Source.Series(ctx, link)
}

// Run 下载 selection 指定的章节；selection 为 nil 时下载全部章节。
func (p *Pipeline) Run(ctx context.Context, link string, selection []int) (Report, error) {
	series, err := p.Series(ctx, link)
	if err != nil {
		return Report{}, err
	}
	return p.Download(ctx, series, selection)
}

// Download 针对已解析的系列处理所选章节。
func (p *Pipeline) Download(ctx context.Context, series resolver.Series, selection []int) (Report, error) {
	if selection == nil {
		selection = resolver.All(len(series.Chapters))
	}
	wanted := make(map[int]struct{}, len(selection))
	for _, idx := range selection {
		wanted[idx] = struct{}{}
	}

	var chosen []resolver.Chapter
	for _, ch := range series.Chapters {
		if _, ok := wanted[ch.Index]; ok {
			chosen = append(chosen, ch)
		}
	}
	if len(chosen) == 0 {
		return Report{Series: series.Title}, apperr.InvalidInput("none of the selected indices match available chapters")
	}

	p.opts.Logger.WithFields(logrus.Fields{
		"action":   "series_download",
		"series":   series.Title,
		"chapters": len(chosen),
	}).Info("downloading selected chapters")

	report := Report{Series: series.Title, Chapters: make([]ChapterReport, 0, len(chosen))}
	for _, ch := range chosen {
		report.Chapters = append(report.Chapters, p.Chapter(ctx, ch))
	}
	return report, nil
}

// Chapter 处理单个章节：缓存新鲜且组成未变时直接使用缓存，否则下载后写入缓存并渲染。
func (p *Pipeline) Chapter(ctx context.Context, ch resolver.Chapter) ChapterReport {
	rep := ChapterReport{Index: ch.Index, Title: ch.Title, URL: ch.URL}
	logger := p.opts.Logger

	coll, err := p.opts.Source.Resolve(ctx, ch.URL)
	if err != nil {
		rep.Err = err
		logger.WithError(err).WithFields(logging.CollectionFields(ch.URL, ch.Title)).
			WithField("action", "chapter_resolve").Error("chapter resolve failed")
		return rep
	}
	if coll.Title != "" {
		rep.Title = coll.Title
	}
	urls := coll.URLs()
	rep.Items = len(urls)

	paths, hit := p.cachedPaths(ch.URL, urls)
	rep.CacheHit = hit
	fields := logging.CollectionFields(ch.URL, rep.Title)
	fields["cache_hit"] = hit

	if !hit {
		paths, rep.Failed, err = p.download(ctx, ch.URL, rep.Title, urls, func(ps []string) error {
			return p.render(&rep, ps)
		})
		if err != nil {
			rep.Err = err
			logger.WithError(err).WithFields(fields).WithField("action", "chapter_download").
				Error("chapter skipped")
			return rep
		}
		logger.WithFields(fields).WithFields(logrus.Fields{
			"action": "chapter_ready",
			"output": rep.Output,
			"items":  len(paths),
			"failed": rep.Failed,
		}).Info("chapter rendered")
		return rep
	}

	if err := p.render(&rep, paths); err != nil {
		rep.Err = err
		logger.WithError(err).WithFields(fields).WithField("action", "chapter_render").Error("chapter render failed")
		return rep
	}
	logger.WithFields(fields).WithFields(logrus.Fields{
		"action": "chapter_ready",
		"output": rep.Output,
		"items":  len(paths),
	}).Info("chapter rendered from cache")
	return rep
}

// cachedPaths 只有在集合新鲜且内容指纹与当前 URL 列表一致时才算命中。
func (p *Pipeline) cachedPaths(key string, urls []string) ([]string, bool) {
	if !p.opts.Cache.IsFresh(key) {
		return nil, false
	}
	coll, ok := p.opts.Cache.Get(key)
	if !ok || coll.Fingerprint != cache.Fingerprint(urls) {
		return nil, false
	}
	return p.opts.Cache.CachedPaths(key)
}

// download 把 urls 下载到独立的批次目录，成功项写入缓存后交给 emit 渲染。
// 批次目录在 emit 返回后删除。
func (p *Pipeline) download(ctx context.Context, key, title string, urls []string, emit func([]string) error) ([]string, int, error) {
	tempRoot := p.opts.TempRoot
	if tempRoot == "" {
		dir, err := platform.TempDir()
		if err != nil {
			return nil, 0, apperr.IO(err, "prepare temp directory")
		}
		tempRoot = dir
	}
	if err := os.MkdirAll(tempRoot, 0o755); err != nil {
		return nil, 0, apperr.IO(err, "prepare temp directory")
	}

	batchID := uuid.NewString()
	batchDir, err := os.MkdirTemp(tempRoot, "batch-"+batchID[:8]+"-")
	if err != nil {
		return nil, 0, apperr.IO(err, "create batch directory")
	}
	defer os.RemoveAll(batchDir)

	runOpts := []fetch.RunOption{fetch.WithBatchID(batchID), fetch.WithLogger(p.opts.Logger)}
	if p.opts.Progress != nil {
		runOpts = append(runOpts, fetch.WithProgress(p.opts.Progress))
	}
	result, err := fetch.Run(ctx, fetch.JobsFor(urls, batchDir), p.opts.Concurrency, p.opts.Fetcher, runOpts...)
	if err != nil {
		return nil, 0, err
	}
	if result.AllFailed() || result.Total == 0 {
		return nil, result.Failed, apperr.Network(firstError(result), "failed to fetch any item for %s", title)
	}

	logger := p.opts.Logger.WithFields(logging.BatchFields(batchID, result.Total, p.opts.Concurrency))
	if err := p.opts.Cache.StoreCollectionMetadata(key, title, urls); err != nil {
		logger.WithError(err).WithField("action", "cache_store").Warn("collection metadata not stored")
	}

	stored := make([]string, 0, result.Succeeded())
	for _, o := range result.Outcomes {
		if o.Err != nil {
			continue
		}
		path, err := p.opts.Cache.StoreItem(key, o.ID, o.Path)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_store",
				"item":   o.ID,
			}).Warn("item not cached, using downloaded copy")
			path = o.Path
		}
		stored = append(stored, path)
	}

	paths := stored
	if cached, ok := p.opts.Cache.CachedPaths(key); ok {
		paths = cached
	} else {
		logger.WithFields(logrus.Fields{
			"action": "chapter_partial",
			"failed": result.Failed,
			"total":  result.Total,
		}).Warn("rendering incomplete chapter")
	}

	if err := emit(paths); err != nil {
		return paths, result.Failed, err
	}
	return paths, result.Failed, nil
}

func (p *Pipeline) render(rep *ChapterReport, paths []string) error {
	name := platform.SanitizeFilename(rep.Title)
	if name == "" {
		name = fmt.Sprintf("chapter-%03d", rep.Index)
	}
	output := filepath.Join(p.opts.OutputDir, name+p.ext)
	if err := p.opts.Renderer.Render(paths, output); err != nil {
		return err
	}
	rep.Output = output
	return nil
}

func firstError(result fetch.Result) error {
	for _, o := range result.Outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return fmt.Errorf("empty batch")
}
