package resolver

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// ParseChapter 读取章节页：标题取 #chapter-heading，图片取 .page-break img 的 src
// （缺失时回退 data-cfsrc），空值被丢弃。没有图片时返回 NotFound。
func ParseChapter(body io.Reader) (Collection, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return Collection{}, apperr.Parsing(err, "parse chapter page")
	}

	heading := findFirst(doc, func(n *html.Node) bool {
		return isElement(n) && attr(n, "id") == "chapter-heading"
	})
	if heading == nil {
		return Collection{}, apperr.NotFound("chapter heading element not found")
	}

	var items []Item
	for _, block := range findAll(doc, withClass("page-break")) {
		for _, img := range findAll(block, withTag("img")) {
			src, ok := attrOK(img, "src")
			if !ok {
				src = attr(img, "data-cfsrc")
			}
			src = strings.TrimSpace(src)
			if src == "" {
				continue
			}
			items = append(items, Item{SourceURL: src})
		}
	}
	if len(items) == 0 {
		return Collection{}, apperr.NotFound("no images found in chapter")
	}

	return Collection{Title: textOf(heading), Items: items}, nil
}

// ParseSeries 读取系列页：标题取 .post-title h1，章节取 .wp-manga-chapter a。
// 页面按最新在前排列，结果反转后从 0 编号。
func ParseSeries(body io.Reader) (Series, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return Series{}, apperr.Parsing(err, "parse series page")
	}

	var title string
	for _, block := range findAll(doc, withClass("post-title")) {
		if h1 := findFirst(block, withTag("h1")); h1 != nil {
			title = textOf(h1)
			break
		}
	}
	if title == "" {
		return Series{}, apperr.NotFound("series title element not found")
	}

	var chapters []Chapter
	for _, block := range findAll(doc, withClass("wp-manga-chapter")) {
		for _, a := range findAll(block, withTag("a")) {
			href, ok := attrOK(a, "href")
			if !ok {
				continue
			}
			chapters = append(chapters, Chapter{Title: textOf(a), URL: strings.TrimSpace(href)})
		}
	}
	if len(chapters) == 0 {
		return Series{}, apperr.NotFound("no chapters found for this series")
	}

	for i, j := 0, len(chapters)-1; i < j; i, j = i+1, j-1 {
		chapters[i], chapters[j] = chapters[j], chapters[i]
	}
	for i := range chapters {
		chapters[i].Index = i
	}
	return Series{Title: title, Chapters: chapters}, nil
}

type matcher func(*html.Node) bool

func isElement(n *html.Node) bool { return n.Type == html.ElementNode }

func withTag(tag string) matcher {
	return func(n *html.Node) bool {
		return isElement(n) && n.Data == tag
	}
}

func withClass(class string) matcher {
	return func(n *html.Node) bool {
		if !isElement(n) {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

// findAll 返回 root 的所有匹配后代（不含 root 本身），文档顺序。
// 匹配节点内部的后代同样会被检查。
func findAll(root *html.Node, match matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if match(child) {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match matcher) *html.Node {
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if match(child) {
			return child
		}
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

// textOf 把所有文本后代以空格拼接并压缩空白。
func textOf(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
