package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mangafetch/mangafetch/internal/apperr"
	"github.com/mangafetch/mangafetch/internal/logging"
)

// Outcome 记录单个任务的结果，Path 与 Err 互斥。
type Outcome struct {
	Index int
	ID    string
	Path  string
	Err   error
}

// Result 汇总一次批量下载。Paths 按完成顺序排列，Outcomes 与输入顺序一致。
type Result struct {
	Paths    []string
	Outcomes []Outcome
	Failed   int
	Total    int
}

// AllFailed 区分“全部失败”与“部分成功”；空批次不算失败。
func (r Result) AllFailed() bool {
	return r.Total > 0 && r.Failed == r.Total
}

// Succeeded 返回成功数量。
func (r Result) Succeeded() int {
	return r.Total - r.Failed
}

// OrderedPaths 按输入顺序返回成功项的路径。
func (r Result) OrderedPaths() []string {
	paths := make([]string, 0, r.Succeeded())
	for _, o := range r.Outcomes {
		if o.Err == nil {
			paths = append(paths, o.Path)
		}
	}
	return paths
}

type runConfig struct {
	sink    ProgressSink
	logger  *logrus.Logger
	batchID string
}

// RunOption 调整 Run 的可选行为。
type RunOption func(*runConfig)

// WithProgress 替换默认的日志进度输出。
func WithProgress(sink ProgressSink) RunOption {
	return func(c *runConfig) {
		c.sink = sink
	}
}

// WithLogger 注入结构化日志实例。
func WithLogger(logger *logrus.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBatchID 指定批次 ID，默认随机生成。
func WithBatchID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.batchID = id
		}
	}
}

// Run 以最多 limit 个并发执行全部任务。每个任务恰好尝试一次，单项失败不会中止批次；
// 返回前所有结果都已写入 Result。limit < 1 时不发起任何下载并返回 InvalidInput。
func Run(ctx context.Context, jobs []Job, limit int, f Fetcher, opts ...RunOption) (Result, error) {
	if limit < 1 {
		return Result{}, apperr.InvalidInput("concurrency limit must be at least 1, got %d", limit)
	}
	if f == nil {
		return Result{}, apperr.InvalidInput("fetcher required")
	}

	cfg := runConfig{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.batchID == "" {
		cfg.batchID = uuid.NewString()
	}
	if cfg.sink == nil {
		cfg.sink = LogSink{Logger: cfg.logger, BatchID: cfg.batchID}
	}

	result := Result{
		Outcomes: make([]Outcome, len(jobs)),
		Total:    len(jobs),
	}
	fields := logging.BatchFields(cfg.batchID, len(jobs), limit)
	cfg.logger.WithFields(fields).WithField("action", "fetch_batch").Debug("batch started")

	events := make(chan ProgressEvent, limit*4)
	final := make(chan Snapshot, 1)
	go func() {
		final <- aggregate(events, len(jobs), cfg.sink)
	}()

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(limit)
	for i, job := range jobs {
		g.Go(func() error {
			events <- ProgressEvent{Kind: EventStarted, Index: i, ID: job.ID}
			report := func(n int64) {
				events <- ProgressEvent{Kind: EventBytes, Index: i, ID: job.ID, Bytes: n}
			}
			path, err := fetchOne(ctx, f, job, report)
			if err != nil {
				path = ""
			}

			mu.Lock()
			result.Outcomes[i] = Outcome{Index: i, ID: job.ID, Path: path, Err: err}
			if err != nil {
				result.Failed++
			} else {
				result.Paths = append(result.Paths, path)
			}
			mu.Unlock()

			if err != nil {
				events <- ProgressEvent{Kind: EventFailed, Index: i, ID: job.ID, Err: err}
			} else {
				events <- ProgressEvent{Kind: EventFinished, Index: i, ID: job.ID}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(events)
	snap := <-final

	entry := cfg.logger.WithFields(fields).WithFields(logrus.Fields{
		"action":    "fetch_batch",
		"completed": snap.Completed,
		"failed":    snap.Failed,
		"bytes":     snap.Bytes,
	})
	if result.AllFailed() {
		entry.Error("batch failed")
	} else {
		entry.Info("batch finished")
	}
	return result, nil
}

// fetchOne 把单项下载中的 panic 转换为该项的错误，避免拖垮整个批次。
func fetchOne(ctx context.Context, f Fetcher, job Job, report func(int64)) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			path = ""
			err = fmt.Errorf("fetch %s panicked: %v", job.ID, r)
		}
	}()
	return f.Fetch(ctx, job, report)
}
