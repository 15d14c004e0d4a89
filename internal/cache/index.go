package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

const (
	indexFileName = "index.json"
	indexVersion  = "1"
)

type indexDocument struct {
	Version     string                 `json:"version"`
	Collections map[string]*Collection `json:"collections"`
}

// loadIndex 读取索引文档；文件不存在时返回空索引，格式错误时返回 ParsingError。
func loadIndex(path string) (map[string]*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]*Collection), nil
		}
		return nil, apperr.IO(err, "read cache index %s", path)
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Parsing(err, "parse cache index %s", path)
	}
	if doc.Version != indexVersion {
		return nil, apperr.Parsing(nil, "unsupported cache index version %q (expected %s)", doc.Version, indexVersion)
	}
	if doc.Collections == nil {
		doc.Collections = make(map[string]*Collection)
	}
	for key, coll := range doc.Collections {
		if coll == nil {
			return nil, apperr.Parsing(nil, "cache index entry %q is null", key)
		}
	}
	return doc.Collections, nil
}

// saveIndex 先写临时文件再 rename，保证索引文件始终完整。
func saveIndex(path string, collections map[string]*Collection) error {
	data, err := json.MarshalIndent(indexDocument{
		Version:     indexVersion,
		Collections: collections,
	}, "", "  ")
	if err != nil {
		return apperr.IO(err, "encode cache index")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return apperr.IO(err, "create temporary index")
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return apperr.IO(err, "write temporary index")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperr.IO(err, "replace cache index %s", path)
	}
	return nil
}
