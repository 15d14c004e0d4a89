// Package hasher 提供缓存使用的确定性摘要：字符串摘要用于派生存储路径与指纹，
// 文件摘要以固定缓冲区增量计算，用于完整性校验。
package hasher

import (
	_ "crypto/sha256"
	"errors"
	"io"
	"os"

	"github.com/opencontainers/go-digest"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// bufferSize 与缓存写入路径保持一致，避免大文件整体载入内存。
const bufferSize = 32 * 1024

var algorithm = digest.SHA256

// String 返回字符串的 sha256 小写十六进制摘要。
func String(s string) string {
	return algorithm.FromString(s).Encoded()
}

// File 以流式方式计算文件摘要，仅在 IO 失败时返回错误。
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.IO(err, "open %s", path)
	}
	defer f.Close()

	sum, _, err := Reader(f)
	if err != nil {
		return "", apperr.IO(err, "hash %s", path)
	}
	return sum, nil
}

// Reader 读取 r 直至 EOF，返回摘要与读取的字节数。
func Reader(r io.Reader) (string, int64, error) {
	digester := algorithm.Digester()
	sum, err := copyBuffered(digester.Hash(), r)
	if err != nil {
		return "", sum, err
	}
	return digester.Digest().Encoded(), sum, nil
}

// Tee 在复制 src 到 dst 的同时计算摘要，返回摘要与写入字节数。
func Tee(dst io.Writer, src io.Reader) (string, int64, error) {
	digester := algorithm.Digester()
	written, err := copyBuffered(io.MultiWriter(dst, digester.Hash()), src)
	if err != nil {
		return "", written, err
	}
	return digester.Digest().Encoded(), written, nil
}

func copyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, bufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
