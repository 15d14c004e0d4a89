package fetch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mangafetch/mangafetch/internal/platform"
)

const defaultExt = ".jpg"

// Job 描述一次单项下载：ID 为来源 URL，Dest 为落盘路径。
type Job struct {
	Index int
	ID    string
	Dest  string
}

// Fetcher 下载单个 Job，成功时返回最终路径。report 接收新写入的字节数。
type Fetcher interface {
	Fetch(ctx context.Context, job Job, report func(n int64)) (string, error)
}

// FetcherFunc 让普通函数满足 Fetcher。
type FetcherFunc func(ctx context.Context, job Job, report func(n int64)) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, job Job, report func(n int64)) (string, error) {
	return f(ctx, job, report)
}

// JobsFor 按输入顺序为每个 URL 生成 image_%03d<ext> 形式的目标路径。
func JobsFor(urls []string, dir string) []Job {
	jobs := make([]Job, len(urls))
	for i, u := range urls {
		name := fmt.Sprintf("image_%03d%s", i, platform.Extension(u, defaultExt))
		jobs[i] = Job{Index: i, ID: u, Dest: filepath.Join(dir, name)}
	}
	return jobs
}
