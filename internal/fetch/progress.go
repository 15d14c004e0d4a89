package fetch

import (
	"github.com/sirupsen/logrus"
)

// EventKind 区分工作协程上报的事件类型。
type EventKind int

const (
	EventStarted EventKind = iota
	EventBytes
	EventFinished
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventBytes:
		return "bytes"
	case EventFinished:
		return "finished"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressEvent 是工作协程写入事件通道的唯一消息。
type ProgressEvent struct {
	Kind  EventKind
	Index int
	ID    string
	Bytes int64
	Err   error
}

// Snapshot 是聚合后的批次进度，随最新事件一并交给 ProgressSink。
type Snapshot struct {
	Event     ProgressEvent
	Completed int
	Failed    int
	Total     int
	Bytes     int64
}

// Done 表示所有任务都已结束（成功或失败）。
func (s Snapshot) Done() bool {
	return s.Completed+s.Failed >= s.Total
}

// ProgressSink 接收聚合后的进度。只会被聚合协程调用，无需自行加锁。
type ProgressSink interface {
	Progress(Snapshot)
}

// ProgressSinkFunc 让普通函数满足 ProgressSink。
type ProgressSinkFunc func(Snapshot)

func (f ProgressSinkFunc) Progress(s Snapshot) { f(s) }

// LogSink 以结构化日志输出完成与失败事件，字节级事件只在 Trace 级别出现。
type LogSink struct {
	Logger  *logrus.Logger
	BatchID string
}

func (l LogSink) Progress(s Snapshot) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithFields(logrus.Fields{
		"action":    "fetch_progress",
		"batch_id":  l.BatchID,
		"index":     s.Event.Index,
		"item":      s.Event.ID,
		"completed": s.Completed,
		"failed":    s.Failed,
		"total":     s.Total,
	})
	switch s.Event.Kind {
	case EventFinished:
		entry.Debug("item fetched")
	case EventFailed:
		entry.WithError(s.Event.Err).Warn("item fetch failed")
	case EventBytes:
		entry.WithField("bytes", s.Bytes).Trace("item bytes received")
	}
}

// aggregate 串行消费事件并折叠为计数，通道关闭后返回最终快照。
func aggregate(events <-chan ProgressEvent, total int, sink ProgressSink) Snapshot {
	snap := Snapshot{Total: total}
	for ev := range events {
		snap.Event = ev
		switch ev.Kind {
		case EventBytes:
			snap.Bytes += ev.Bytes
		case EventFinished:
			snap.Completed++
		case EventFailed:
			snap.Failed++
		}
		if sink != nil {
			sink.Progress(snap)
		}
	}
	return snap
}
