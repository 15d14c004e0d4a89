package cache

// Item 描述一个已缓存的制品，Path 为相对缓存根目录的斜杠路径。
type Item struct {
	SourceURL string `json:"source_url"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum"`
	SizeBytes uint64 `json:"size_bytes"`
}

// Collection 表示一个集合（如一话漫画）的缓存元数据。
// LastUpdated 为 Unix 秒，任何变更都会刷新它。
type Collection struct {
	Title       string `json:"title"`
	SourceKey   string `json:"source_key"`
	LastUpdated int64  `json:"last_updated"`
	Fingerprint string `json:"fingerprint"`
	// ExpectedItems 由 StoreCollectionMetadata 记录，为空表示未知组成。
	ExpectedItems []string `json:"expected_items,omitempty"`
	Items         []Item   `json:"items"`
}

// Stats 汇总索引中的条目数量与体积，供 CLI 与诊断接口输出。
type Stats struct {
	Collections int    `json:"collections"`
	Items       int    `json:"items"`
	TotalBytes  uint64 `json:"total_bytes"`
}

func (c *Collection) clone() Collection {
	out := *c
	out.ExpectedItems = append([]string(nil), c.ExpectedItems...)
	out.Items = append([]Item(nil), c.Items...)
	return out
}

// upsertItem 按 SourceURL 替换或追加条目。
func (c *Collection) upsertItem(item Item) {
	for i := range c.Items {
		if c.Items[i].SourceURL == item.SourceURL {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			break
		}
	}
	c.Items = append(c.Items, item)
}

func (c *Collection) item(sourceURL string) (Item, bool) {
	for _, it := range c.Items {
		if it.SourceURL == sourceURL {
			return it, true
		}
	}
	return Item{}, false
}
