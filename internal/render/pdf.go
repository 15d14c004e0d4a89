package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/webp"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// pageMargin 为 A4 页面四周留白（毫米）。
const pageMargin = 10.0

// PDFRenderer 输出 A4 纵向 PDF，每页一张图片，等比缩放后居中。
// 支持 JPEG、PNG、GIF；WebP 先转为 PNG 再嵌入。
type PDFRenderer struct {
	// Created 固定文档创建时间，零值时使用当前时间。
	Created time.Time
}

// Extension 返回该渲染器生成文件的扩展名。
func (PDFRenderer) Extension() string { return ".pdf" }

func (r PDFRenderer) Render(paths []string, output string) error {
	if len(paths) == 0 {
		return apperr.InvalidInput("no images to render")
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle(strings.TrimSuffix(filepath.Base(output), filepath.Ext(output)), true)
	doc.SetCreator("mangafetch", false)
	created := r.Created
	if created.IsZero() {
		created = time.Now()
	}
	doc.SetCreationDate(created)

	for i, p := range paths {
		if err := addImagePage(doc, fmt.Sprintf("page-%03d", i), p); err != nil {
			return err
		}
	}
	if err := doc.Error(); err != nil {
		return apperr.Parsing(err, "build pdf")
	}

	return writeAtomic(output, func(w io.Writer) error {
		if err := doc.Output(w); err != nil {
			return apperr.IO(err, "write pdf")
		}
		return nil
	})
}

func addImagePage(doc *fpdf.Fpdf, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.IO(err, "open image %s", path)
	}
	imageType, data, err := pdfImage(data)
	if err != nil {
		return apperr.Parsing(err, "decode image %s", path)
	}

	opts := fpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if doc.Err() || info == nil {
		return apperr.Parsing(doc.Error(), "embed image %s", path)
	}

	doc.AddPage()
	x, y, w, h := fitPage(doc, info.Width(), info.Height())
	doc.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return nil
}

// pdfImage 返回 fpdf 可识别的图片类型，必要时转码为 PNG。
func pdfImage(data []byte) (string, []byte, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", nil, err
	}
	switch format {
	case "jpeg":
		return "JPG", data, nil
	case "png":
		return "PNG", data, nil
	case "gif":
		return "GIF", data, nil
	case "webp":
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return "", nil, err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", nil, err
		}
		return "PNG", buf.Bytes(), nil
	default:
		return "", nil, fmt.Errorf("unsupported image format %q", format)
	}
}

// fitPage 计算图片在页面可用区域内等比缩放后的居中位置。
func fitPage(doc *fpdf.Fpdf, imgW, imgH float64) (x, y, w, h float64) {
	pageW, pageH := doc.GetPageSize()
	availW := pageW - 2*pageMargin
	availH := pageH - 2*pageMargin
	if imgW <= 0 || imgH <= 0 {
		return pageMargin, pageMargin, availW, availH
	}

	scale := availW / imgW
	if s := availH / imgH; s < scale {
		scale = s
	}
	w, h = imgW*scale, imgH*scale
	return (pageW - w) / 2, (pageH - h) / 2, w, h
}
