package fetch

import (
	"net"
	"net/http"
	"time"

	"github.com/mangafetch/mangafetch/internal/config"
)

const defaultTimeout = 60 * time.Second

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewClient 返回带有限超时的 http.Client，页面解析与图片下载共用。
func NewClient(cfg *config.Config) *http.Client {
	timeout := defaultTimeout
	if cfg != nil && cfg.Global.FetchTimeout.DurationValue() > 0 {
		timeout = cfg.Global.FetchTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// NewConfiguredFetcher 按配置组装 HTTPFetcher：超时来自 FetchTimeout，请求头按主机解析。
func NewConfiguredFetcher(cfg *config.Config) *HTTPFetcher {
	return NewHTTPFetcher(NewClient(cfg), WithHeaderResolver(cfg.HeadersFor))
}
