// Package render assembles downloaded images into a single readable document.
package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// 支持的输出格式。
const (
	FormatPDF = "pdf"
	FormatCBZ = "cbz"
)

// DefaultFormat 为未配置 OutputFormat 时使用的格式。
const DefaultFormat = FormatPDF

// Renderer 将按阅读顺序排列的图片渲染为 output 指向的文件。
type Renderer interface {
	Render(paths []string, output string) error
}

// ForFormat 按名称返回渲染器，名称大小写不敏感，空串视为默认格式。
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatPDF:
		return PDFRenderer{}, nil
	case FormatCBZ:
		return CBZRenderer{}, nil
	default:
		return nil, apperr.InvalidInput("unsupported output format %q", format)
	}
}

// writeAtomic 先写入同目录的临时文件，成功后再 rename 到 output，失败时不留下半成品。
func writeAtomic(output string, write func(w io.Writer) error) error {
	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.IO(err, "create output directory")
	}

	tempFile, err := os.CreateTemp(dir, ".render-*")
	if err != nil {
		return apperr.IO(err, "create temporary output")
	}
	tempName := tempFile.Name()

	writeErr := write(tempFile)
	closeErr := tempFile.Close()
	if writeErr == nil && closeErr != nil {
		writeErr = apperr.IO(closeErr, "close output")
	}
	if writeErr != nil {
		os.Remove(tempName)
		return writeErr
	}

	if err := os.Rename(tempName, output); err != nil {
		os.Remove(tempName)
		return apperr.IO(err, "move output into place")
	}
	return nil
}

func imageExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".jpg"
	}
	return ext
}

func entryName(i int, path string) string {
	return fmt.Sprintf("%03d%s", i, imageExt(path))
}
