package render

import (
	"archive/zip"
	"io"
	"os"
	"time"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// CBZRenderer 输出 comic-book zip：图片按给定顺序存为 000.jpg、001.png ...
type CBZRenderer struct {
	// Modified 固定条目时间戳，零值时使用当前时间。
	Modified time.Time
}

// Extension 返回该渲染器生成文件的扩展名。
func (CBZRenderer) Extension() string { return ".cbz" }

func (r CBZRenderer) Render(paths []string, output string) error {
	if len(paths) == 0 {
		return apperr.InvalidInput("no images to render")
	}
	return writeAtomic(output, func(w io.Writer) error {
		return r.write(w, paths)
	})
}

func (r CBZRenderer) write(w io.Writer, paths []string) error {
	modified := r.Modified
	if modified.IsZero() {
		modified = time.Now()
	}

	zw := zip.NewWriter(w)
	for i, p := range paths {
		header := &zip.FileHeader{
			Name:     entryName(i, p),
			Method:   zip.Store, // 图片已压缩
			Modified: modified,
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return apperr.IO(err, "create archive entry for %s", p)
		}
		if err := copyFile(entry, p); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return apperr.IO(err, "finalize archive")
	}
	return nil
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperr.IO(err, "open image %s", path)
	}
	defer f.Close()
	if _, err := io.Copy(dst, f); err != nil {
		return apperr.IO(err, "copy image %s", path)
	}
	return nil
}
