// Package apperr 定义 mangafetch 的错误分类：IO、解析、网络、资源缺失与前置条件。
// 所有错误都基于 platformerrors 的错误码，调用方通过 IsXxx 判定类别，
// 同时保留 errors.Is/errors.As 对底层原因的访问。
package apperr

import (
	"errors"
	"fmt"

	platformerrors "github.com/jmgilman/go/errors"
)

// 补充 platformerrors 未覆盖的两个类别。
const (
	CodeIO      platformerrors.ErrorCode = "IO_ERROR"
	CodeParsing platformerrors.ErrorCode = "PARSING_ERROR"
)

// IO 包装文件系统或持久化文档读写失败。
func IO(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return platformerrors.Wrapf(err, CodeIO, format, args...)
}

// Parsing 包装索引文档或响应内容解析失败。
func Parsing(err error, format string, args ...interface{}) error {
	if err == nil {
		return platformerrors.Newf(CodeParsing, format, args...)
	}
	return platformerrors.Wrapf(err, CodeParsing, format, args...)
}

// Network 包装传输层失败或非成功状态码。
func Network(err error, format string, args ...interface{}) error {
	if err == nil {
		return platformerrors.Newf(platformerrors.CodeNetwork, format, args...)
	}
	return platformerrors.Wrapf(err, platformerrors.CodeNetwork, format, args...)
}

// NotFound 表示期望存在的元素或资源缺失。
func NotFound(format string, args ...interface{}) error {
	return platformerrors.Newf(platformerrors.CodeNotFound, format, args...)
}

// InvalidInput 表示调用前置条件不满足，例如并发上限小于 1。
func InvalidInput(format string, args ...interface{}) error {
	return platformerrors.Newf(platformerrors.CodeInvalidInput, format, args...)
}

func IsIO(err error) bool      { return hasCode(err, CodeIO) }
func IsParsing(err error) bool { return hasCode(err, CodeParsing) }
func IsNetwork(err error) bool { return hasCode(err, platformerrors.CodeNetwork) }
func IsNotFound(err error) bool {
	return hasCode(err, platformerrors.CodeNotFound)
}
func IsInvalidInput(err error) bool {
	return hasCode(err, platformerrors.CodeInvalidInput)
}

// hasCode 沿错误链查找任意一层匹配的错误码，外层 fmt.Errorf 包装不影响判定。
func hasCode(err error, code platformerrors.ErrorCode) bool {
	for err != nil {
		var pe platformerrors.PlatformError
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Code() == code {
			return true
		}
		err = errors.Unwrap(pe)
	}
	return false
}

// StatusError 记录上游返回的非 2xx 状态，便于与传输层错误区分。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// IsStatus 判断错误链中是否包含 StatusError，并返回状态码。
func IsStatus(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}
