package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangafetch/mangafetch/internal/apperr"
	"github.com/mangafetch/mangafetch/internal/cache"
	"github.com/mangafetch/mangafetch/internal/fetch"
	"github.com/mangafetch/mangafetch/internal/render"
	"github.com/mangafetch/mangafetch/internal/resolver"
)

type fakeSource struct {
	series   resolver.Series
	chapters map[string]resolver.Collection
}

func (f *fakeSource) Series(ctx context.Context, locator string) (resolver.Series, error) {
	return f.series, nil
}

func (f *fakeSource) Resolve(ctx context.Context, locator string) (resolver.Collection, error) {
	coll, ok := f.chapters[locator]
	if !ok {
		return resolver.Collection{}, apperr.NotFound("no chapter at %s", locator)
	}
	return coll, nil
}

func newSource(chapters int, images int) *fakeSource {
	src := &fakeSource{chapters: map[string]resolver.Collection{}}
	src.series.Title = "Test Series"
	for c := 0; c < chapters; c++ {
		link := fmt.Sprintf("https://manga.example.com/test/chapter-%d/", c+1)
		src.series.Chapters = append(src.series.Chapters, resolver.Chapter{
			Index: c,
			Title: fmt.Sprintf("Chapter %d", c+1),
			URL:   link,
		})
		coll := resolver.Collection{Title: fmt.Sprintf("Chapter %d", c+1)}
		for i := 0; i < images; i++ {
			coll.Items = append(coll.Items, resolver.Item{
				SourceURL: fmt.Sprintf("https://cdn.example.com/%d/%03d.jpg", c+1, i),
			})
		}
		src.chapters[link] = coll
	}
	return src
}

type countingFetcher struct {
	calls int32
	fail  func(job fetch.Job) bool
}

func (f *countingFetcher) Fetch(ctx context.Context, job fetch.Job, report func(int64)) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail != nil && f.fail(job) {
		return "", apperr.Network(errors.New("boom"), "fetch %s", job.ID)
	}
	if err := os.WriteFile(job.Dest, []byte(job.ID), 0o644); err != nil {
		return "", err
	}
	report(int64(len(job.ID)))
	return job.Dest, nil
}

func newTestPipeline(t *testing.T, src Source, f fetch.Fetcher) (*Pipeline, *cache.Manager, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	root := t.TempDir()
	mgr, err := cache.Open(filepath.Join(root, "cache"), time.Hour, cache.WithLogger(logger))
	require.NoError(t, err)

	out := filepath.Join(root, "output")
	p, err := New(Options{
		Cache:       mgr,
		Source:      src,
		Fetcher:     f,
		Renderer:    render.CBZRenderer{},
		OutputDir:   out,
		Concurrency: 2,
		TempRoot:    filepath.Join(root, "tmp"),
		Logger:      logger,
	})
	require.NoError(t, err)
	return p, mgr, out
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestRunDownloadsThenHitsCache(t *testing.T) {
	src := newSource(2, 3)
	fetcher := &countingFetcher{}
	p, mgr, out := newTestPipeline(t, src, fetcher)

	report, err := p.Run(context.Background(), "https://manga.example.com/test/", nil)
	require.NoError(t, err)
	require.Len(t, report.Chapters, 2)
	assert.Equal(t, "Test Series", report.Series)
	assert.Zero(t, report.Failed())
	assert.Equal(t, int32(6), atomic.LoadInt32(&fetcher.calls))

	first := report.Chapters[0]
	assert.False(t, first.CacheHit)
	assert.Equal(t, filepath.Join(out, "chapter-1.cbz"), first.Output)
	assert.Equal(t, []string{"000.jpg", "001.jpg", "002.jpg"}, zipEntries(t, first.Output))
	assert.Equal(t, 6, mgr.Stats().Items)

	report, err = p.Run(context.Background(), "https://manga.example.com/test/", nil)
	require.NoError(t, err)
	for _, ch := range report.Chapters {
		assert.True(t, ch.CacheHit, "chapter %s should come from cache", ch.Title)
		assert.NoError(t, ch.Err)
	}
	assert.Equal(t, int32(6), atomic.LoadInt32(&fetcher.calls))

	leftovers, _ := os.ReadDir(filepath.Join(filepath.Dir(out), "tmp"))
	assert.Empty(t, leftovers)
}

func TestRunSelectsChapters(t *testing.T) {
	src := newSource(3, 1)
	p, _, _ := newTestPipeline(t, src, &countingFetcher{})

	report, err := p.Run(context.Background(), "series", []int{1})
	require.NoError(t, err)
	require.Len(t, report.Chapters, 1)
	assert.Equal(t, "Chapter 2", report.Chapters[0].Title)

	_, err = p.Run(context.Background(), "series", []int{9})
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidInput(err))
}

func TestPartialChapterRendersAndStaysStale(t *testing.T) {
	src := newSource(1, 3)
	fetcher := &countingFetcher{fail: func(job fetch.Job) bool { return job.Index == 1 }}
	p, mgr, _ := newTestPipeline(t, src, fetcher)
	ch := src.series.Chapters[0]

	rep := p.Chapter(context.Background(), ch)
	require.NoError(t, rep.Err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []string{"000.jpg", "001.jpg"}, zipEntries(t, rep.Output))
	assert.False(t, mgr.IsFresh(ch.URL))

	fetcher.fail = nil
	rep = p.Chapter(context.Background(), ch)
	require.NoError(t, rep.Err)
	assert.False(t, rep.CacheHit)
	assert.True(t, mgr.IsFresh(ch.URL))
	assert.Equal(t, int32(6), atomic.LoadInt32(&fetcher.calls))
}

func TestAllFailedChapterIsSkipped(t *testing.T) {
	src := newSource(1, 2)
	fetcher := &countingFetcher{fail: func(fetch.Job) bool { return true }}
	p, mgr, out := newTestPipeline(t, src, fetcher)

	rep := p.Chapter(context.Background(), src.series.Chapters[0])
	require.Error(t, rep.Err)
	assert.True(t, apperr.IsNetwork(rep.Err))
	assert.Empty(t, rep.Output)
	assert.Zero(t, mgr.Stats().Collections)

	_, statErr := os.Stat(filepath.Join(out, "chapter-1.cbz"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestChangedCompositionRefetches(t *testing.T) {
	src := newSource(1, 2)
	fetcher := &countingFetcher{}
	p, _, _ := newTestPipeline(t, src, fetcher)
	ch := src.series.Chapters[0]

	require.NoError(t, p.Chapter(context.Background(), ch).Err)

	coll := src.chapters[ch.URL]
	coll.Items = append(coll.Items, resolver.Item{SourceURL: "https://cdn.example.com/1/999.jpg"})
	src.chapters[ch.URL] = coll

	rep := p.Chapter(context.Background(), ch)
	require.NoError(t, rep.Err)
	assert.False(t, rep.CacheHit)
	assert.Equal(t, 3, rep.Items)
	assert.Equal(t, int32(5), atomic.LoadInt32(&fetcher.calls))
}

func TestUnresolvableChapterReportsError(t *testing.T) {
	src := newSource(1, 1)
	p, _, _ := newTestPipeline(t, src, &countingFetcher{})

	rep := p.Chapter(context.Background(), resolver.Chapter{Index: 5, Title: "Ghost", URL: "https://nowhere"})
	require.Error(t, rep.Err)
	assert.True(t, apperr.IsNotFound(rep.Err))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidInput(err))
}
