package cache

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mangafetch/mangafetch/internal/apperr"
	"github.com/mangafetch/mangafetch/internal/hasher"
	"github.com/mangafetch/mangafetch/internal/platform"
)

const defaultItemExt = ".jpg"

// 删除入口，测试中替换以模拟单个删除失败。
var (
	removeAll  = os.RemoveAll
	removeFile = os.Remove
)

// Manager 持有缓存索引，是该缓存根目录在进程内的唯一写入者。
type Manager struct {
	root      string
	indexPath string
	fresh     freshness
	logger    *logrus.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// Option 调整 Manager 的可选依赖。
type Option func(*Manager)

// WithLogger 注入结构化日志实例，默认使用 logrus 标准 logger。
func WithLogger(logger *logrus.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock 替换时间来源，便于测试过期逻辑。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.fresh.now = now
		}
	}
}

// Open 以 rootDir 为缓存根目录创建 Manager，必要时创建目录并加载已有索引。
// 索引损坏时返回 ParsingError，不会被静默丢弃。
func Open(rootDir string, maxAge time.Duration, opts ...Option) (*Manager, error) {
	if rootDir == "" {
		return nil, apperr.InvalidInput("cache root required")
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, apperr.IO(err, "resolve cache root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperr.IO(err, "create cache root %s", abs)
	}

	m := &Manager{
		root:      abs,
		indexPath: filepath.Join(abs, indexFileName),
		fresh:     freshness{maxAge: maxAge, now: time.Now},
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	collections, err := loadIndex(m.indexPath)
	if err != nil {
		return nil, err
	}
	m.collections = collections
	return m, nil
}

// Root 返回缓存根目录的绝对路径。
func (m *Manager) Root() string {
	return m.root
}

// MaxAge 返回当前的最大保留期。
func (m *Manager) MaxAge() time.Duration {
	return m.fresh.maxAge
}

// IsFresh 判断集合是否存在、未超过保留期、组成完整且所有文件仍在磁盘上。
// 没有任何制品的集合不算新鲜。
func (m *Manager) IsFresh(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[key]
	if !ok || !m.fresh.withinMaxAge(coll) {
		return false
	}
	_, ok = m.resolvePaths(coll)
	return ok
}

// CachedPaths 返回集合全部制品的绝对路径；只要有一个缺失或集合为空就返回 false。
// 已知期望组成时按期望顺序返回，否则按写入顺序。
func (m *Manager) CachedPaths(key string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[key]
	if !ok {
		return nil, false
	}
	return m.resolvePaths(coll)
}

func (m *Manager) resolvePaths(coll *Collection) ([]string, bool) {
	items := coll.Items
	if len(coll.ExpectedItems) > 0 {
		ordered := make([]Item, 0, len(coll.ExpectedItems))
		for _, u := range coll.ExpectedItems {
			it, ok := coll.item(u)
			if !ok {
				return nil, false
			}
			ordered = append(ordered, it)
		}
		items = ordered
	}
	if len(items) == 0 {
		return nil, false
	}

	paths := make([]string, 0, len(items))
	for _, it := range items {
		full := m.absPath(it.Path)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			return nil, false
		}
		paths = append(paths, full)
	}
	return paths, true
}

// StoreItem 将 srcPath 的内容复制到内容寻址路径，记录校验和与大小并持久化索引。
// 失败时内存索引可能已前进而磁盘索引未更新，调用方应视为“可能需要重试”。
func (m *Manager) StoreItem(key, itemURL, srcPath string) (string, error) {
	if key == "" || itemURL == "" {
		return "", apperr.InvalidInput("collection key and item url required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rel := storagePath(key, itemURL)
	full := m.absPath(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", apperr.IO(err, "create shard directory")
	}

	checksum, size, err := copyIntoPlace(srcPath, full)
	if err != nil {
		return "", err
	}

	coll := m.ensureCollection(key)
	coll.upsertItem(Item{
		SourceURL: itemURL,
		Path:      rel,
		Checksum:  checksum,
		SizeBytes: uint64(size),
	})
	coll.LastUpdated = m.fresh.stamp()

	if err := saveIndex(m.indexPath, m.collections); err != nil {
		return "", err
	}
	return full, nil
}

// StoreCollectionMetadata 更新集合标题、期望组成与内容指纹，不要求制品已写入。
func (m *Manager) StoreCollectionMetadata(key, title string, itemURLs []string) error {
	if key == "" {
		return apperr.InvalidInput("collection key required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.ensureCollection(key)
	if title != "" {
		coll.Title = title
	}
	coll.ExpectedItems = append([]string(nil), itemURLs...)
	coll.Fingerprint = Fingerprint(itemURLs)
	coll.LastUpdated = m.fresh.stamp()

	return saveIndex(m.indexPath, m.collections)
}

// Validate 重新计算所有制品的校验和；不一致或文件缺失计为无效。只读，不修复。
func (m *Manager) Validate() (valid, invalid int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, coll := range m.collections {
		for _, it := range coll.Items {
			sum, err := hasher.File(m.absPath(it.Path))
			if err != nil || sum != it.Checksum {
				invalid++
				m.logger.WithFields(logrus.Fields{
					"action":     "cache_validate",
					"collection": key,
					"item":       it.SourceURL,
				}).Debug("cache item invalid")
				continue
			}
			valid++
		}
	}
	return valid, invalid
}

// Clear 删除缓存根目录下除索引外的所有内容，然后清空并持久化索引。
// 单个删除失败不会中断清理，全部尝试后返回聚合错误（首个错误在前）。
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return apperr.IO(err, "list cache root")
	}

	var errs []error
	for _, entry := range entries {
		if entry.Name() == indexFileName {
			continue
		}
		target := filepath.Join(m.root, entry.Name())
		if err := removeAll(target); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_clear",
				"path":   target,
			}).Warn("cache entry removal failed")
			errs = append(errs, err)
		}
	}

	m.collections = make(map[string]*Collection)
	if err := saveIndex(m.indexPath, m.collections); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return apperr.IO(errors.Join(errs...), "clear cache")
	}
	return nil
}

// SweepExpired 删除所有过期集合及其文件，返回删除的文件数量。
// 文件删除为尽力而为，失败会记录日志并在最后聚合返回；索引只在结束时持久化一次。
func (m *Manager) SweepExpired() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	var errs []error
	for key, coll := range m.collections {
		if !m.fresh.expired(coll) {
			continue
		}
		for _, it := range coll.Items {
			full := m.absPath(it.Path)
			if err := removeFile(full); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					m.logger.WithError(err).WithFields(logrus.Fields{
						"action": "cache_sweep",
						"path":   full,
					}).Warn("cached file removal failed")
					errs = append(errs, err)
				}
			} else {
				removed++
			}
			if parent := filepath.Dir(full); parent != m.root {
				_ = removeFile(parent) // 非空目录会失败，忽略
			}
		}
		delete(m.collections, key)
		m.logger.WithFields(logrus.Fields{
			"action":     "cache_sweep",
			"collection": key,
		}).Debug("expired collection removed")
	}

	if err := saveIndex(m.indexPath, m.collections); err != nil {
		return removed, err
	}
	if len(errs) > 0 {
		return removed, apperr.IO(errors.Join(errs...), "sweep expired cache entries")
	}
	return removed, nil
}

// Get 返回集合元数据的副本。
func (m *Manager) Get(key string) (Collection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[key]
	if !ok {
		return Collection{}, false
	}
	return coll.clone(), true
}

// List 返回按键排序的全部集合副本。
func (m *Manager) List() []Collection {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.collections))
	for key := range m.collections {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Collection, 0, len(keys))
	for _, key := range keys {
		result = append(result, m.collections[key].clone())
	}
	return result
}

// Stats 汇总当前索引。
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Collections: len(m.collections)}
	for _, coll := range m.collections {
		stats.Items += len(coll.Items)
		for _, it := range coll.Items {
			stats.TotalBytes += it.SizeBytes
		}
	}
	return stats
}

func (m *Manager) ensureCollection(key string) *Collection {
	coll, ok := m.collections[key]
	if !ok {
		coll = &Collection{
			Title:       titleFromKey(key),
			SourceKey:   key,
			LastUpdated: m.fresh.stamp(),
		}
		m.collections[key] = coll
	}
	return coll
}

func (m *Manager) absPath(rel string) string {
	return filepath.Join(m.root, filepath.FromSlash(rel))
}

// Fingerprint 对有序 URL 列表计算内容指纹，组成或顺序变化都会改变结果。
func Fingerprint(itemURLs []string) string {
	return hasher.String(strings.Join(itemURLs, "\n"))
}

// storagePath 生成 <hash(key)[0:2]>/<hash(itemURL)><ext> 形式的相对路径。
func storagePath(key, itemURL string) string {
	shard := hasher.String(key)[:2]
	return path.Join(shard, hasher.String(itemURL)+platform.Extension(itemURL, defaultItemExt))
}

// titleFromKey 从 URL 中的 chapter-N 片段推导默认标题。
func titleFromKey(key string) string {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, "chapter-") {
			return strings.Replace(seg, "chapter-", "Chapter ", 1)
		}
	}
	return "Unknown Chapter"
}

// copyIntoPlace 经临时文件复制 src 到 dst，并在复制时计算摘要。
func copyIntoPlace(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, apperr.IO(err, "open source %s", src)
	}
	defer in.Close()

	tempFile, err := os.CreateTemp(filepath.Dir(dst), ".cache-*")
	if err != nil {
		return "", 0, apperr.IO(err, "create temporary artifact")
	}
	tempName := tempFile.Name()

	checksum, written, err := hasher.Tee(tempFile, in)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return "", 0, apperr.IO(err, "copy artifact to %s", dst)
	}

	if err := os.Rename(tempName, dst); err != nil {
		os.Remove(tempName)
		return "", 0, apperr.IO(err, "move artifact into place")
	}
	return checksum, written, nil
}
