package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入下载流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if g.CacheMaxAge.DurationValue() < 0 {
		return newFieldError("Global.CacheMaxAge", "不能为负数")
	}
	if g.Concurrency < 1 {
		return newFieldError("Global.Concurrency", "必须大于等于 1")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}
	if strings.TrimSpace(g.OutputDir) == "" {
		return newFieldError("Global.OutputDir", "不能为空")
	}
	switch strings.ToLower(strings.TrimSpace(g.OutputFormat)) {
	case "", "pdf", "cbz":
	default:
		return newFieldError("Global.OutputFormat", "仅支持 pdf 或 cbz")
	}
	if g.Referer != "" {
		if err := validateReferer(g.Referer); err != nil {
			return fmt.Errorf("Global.Referer: %w", err)
		}
	}

	seenHosts := map[string]struct{}{}
	for i := range c.Sites {
		site := &c.Sites[i]
		if err := validateHost(site.Host); err != nil {
			return fmt.Errorf("%s: %w", siteField(site.Name, "Host"), err)
		}
		if _, exists := seenHosts[site.Host]; exists {
			return newFieldError(siteField(site.Name, "Host"), "重复")
		}
		seenHosts[site.Host] = struct{}{}

		if site.Referer != "" {
			if err := validateReferer(site.Referer); err != nil {
				return fmt.Errorf("%s: %w", siteField(site.Name, "Referer"), err)
			}
		}
	}

	return nil
}

func validateHost(host string) error {
	if host == "" {
		return errors.New("Host 不能为空")
	}
	if strings.Contains(host, "/") {
		return errors.New("Host 不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("Host 不允许包含空格")
	}
	if strings.HasPrefix(host, "http") {
		return errors.New("Host 不应包含协议头")
	}
	return nil
}

func validateReferer(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
