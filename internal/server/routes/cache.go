package routes

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/mangafetch/mangafetch/internal/cache"
	"github.com/mangafetch/mangafetch/internal/server"
)

// CacheAdmin 是 cache.Manager 在管理接口上暴露的能力子集。
type CacheAdmin interface {
	Root() string
	MaxAge() time.Duration
	Stats() cache.Stats
	List() []cache.Collection
	Get(key string) (cache.Collection, bool)
	IsFresh(key string) bool
	Validate() (valid, invalid int)
	SweepExpired() (int, error)
	Clear() error
}

// RegisterCacheRoutes 暴露 /-/cache 系列接口，用于查看与维护本地缓存。
func RegisterCacheRoutes(app *fiber.App, mgr CacheAdmin, logger *logrus.Logger) {
	if app == nil || mgr == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/-/cache", func(c fiber.Ctx) error {
		stats := mgr.Stats()
		return c.JSON(fiber.Map{
			"root":            mgr.Root(),
			"max_age_seconds": int64(mgr.MaxAge() / time.Second),
			"collections":     stats.Collections,
			"items":           stats.Items,
			"total_bytes":     stats.TotalBytes,
		})
	})

	app.Get("/-/cache/collections", func(c fiber.Ctx) error {
		key := strings.TrimSpace(c.Query("key"))
		if key == "" {
			return c.JSON(fiber.Map{
				"collections": encodeCollections(mgr, mgr.List()),
			})
		}
		coll, ok := mgr.Get(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "collection_not_found"})
		}
		return c.JSON(encodeCollection(mgr, coll))
	})

	app.Post("/-/cache/validate", func(c fiber.Ctx) error {
		valid, invalid := mgr.Validate()
		logAdmin(logger, c, "cache_validate").WithFields(logrus.Fields{
			"valid":   valid,
			"invalid": invalid,
		}).Info("cache validated")
		return c.JSON(fiber.Map{"valid": valid, "invalid": invalid})
	})

	app.Post("/-/cache/sweep", func(c fiber.Ctx) error {
		removed, err := mgr.SweepExpired()
		if err != nil {
			logAdmin(logger, c, "cache_sweep").WithError(err).Warn("cache sweep incomplete")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "sweep_failed",
				"removed": removed,
				"detail":  err.Error(),
			})
		}
		logAdmin(logger, c, "cache_sweep").WithField("removed", removed).Info("cache swept")
		return c.JSON(fiber.Map{"removed": removed})
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		if err := mgr.Clear(); err != nil {
			logAdmin(logger, c, "cache_clear").WithError(err).Warn("cache clear incomplete")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":  "clear_failed",
				"detail": err.Error(),
			})
		}
		logAdmin(logger, c, "cache_clear").Info("cache cleared")
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func logAdmin(logger *logrus.Logger, c fiber.Ctx, action string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"action":     action,
		"request_id": server.RequestID(c),
	})
}

type itemPayload struct {
	SourceURL string `json:"source_url"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum"`
	SizeBytes uint64 `json:"size_bytes"`
}

type collectionPayload struct {
	Key         string        `json:"key"`
	Title       string        `json:"title"`
	LastUpdated int64         `json:"last_updated"`
	Fingerprint string        `json:"fingerprint"`
	Expected    int           `json:"expected_items"`
	Fresh       bool          `json:"fresh"`
	Items       []itemPayload `json:"items"`
}

func encodeCollections(mgr CacheAdmin, colls []cache.Collection) []collectionPayload {
	result := make([]collectionPayload, 0, len(colls))
	for _, coll := range colls {
		result = append(result, encodeCollection(mgr, coll))
	}
	return result
}

func encodeCollection(mgr CacheAdmin, coll cache.Collection) collectionPayload {
	items := make([]itemPayload, 0, len(coll.Items))
	for _, it := range coll.Items {
		items = append(items, itemPayload{
			SourceURL: it.SourceURL,
			Path:      it.Path,
			Checksum:  it.Checksum,
			SizeBytes: it.SizeBytes,
		})
	}
	return collectionPayload{
		Key:         coll.SourceKey,
		Title:       coll.Title,
		LastUpdated: coll.LastUpdated,
		Fingerprint: coll.Fingerprint,
		Expected:    len(coll.ExpectedItems),
		Fresh:       mgr.IsFresh(coll.SourceKey),
		Items:       items,
	}
}
