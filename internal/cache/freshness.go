package cache

import "time"

// freshness 按 Unix 秒比较集合年龄与最大保留期。
// maxAge <= 0 表示不保留：任何条目都不新鲜，清扫时全部视为过期。
type freshness struct {
	maxAge time.Duration
	now    func() time.Time
}

func (f freshness) age(c *Collection) int64 {
	age := f.now().Unix() - c.LastUpdated
	if age < 0 {
		return 0
	}
	return age
}

func (f freshness) maxAgeSeconds() int64 {
	return int64(f.maxAge / time.Second)
}

func (f freshness) withinMaxAge(c *Collection) bool {
	if f.maxAge <= 0 {
		return false
	}
	return f.age(c) <= f.maxAgeSeconds()
}

func (f freshness) expired(c *Collection) bool {
	if f.maxAge <= 0 {
		return true
	}
	return f.age(c) > f.maxAgeSeconds()
}

func (f freshness) stamp() int64 {
	return f.now().Unix()
}
