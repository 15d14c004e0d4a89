package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述下载、缓存、日志与管理端口等全局参数。
type GlobalConfig struct {
	ListenPort    int      `mapstructure:"ListenPort"`
	LogLevel      string   `mapstructure:"LogLevel"`
	LogFilePath   string   `mapstructure:"LogFilePath"`
	LogMaxSize    int      `mapstructure:"LogMaxSize"`
	LogMaxBackups int      `mapstructure:"LogMaxBackups"`
	LogCompress   bool     `mapstructure:"LogCompress"`
	CacheDir      string   `mapstructure:"CacheDir"`
	CacheMaxAge   Duration `mapstructure:"CacheMaxAge"`
	Concurrency   int      `mapstructure:"Concurrency"`
	FetchTimeout  Duration `mapstructure:"FetchTimeout"`
	OutputDir     string   `mapstructure:"OutputDir"`
	OutputFormat  string   `mapstructure:"OutputFormat"`
	UserAgent     string   `mapstructure:"UserAgent"`
	Referer       string   `mapstructure:"Referer"`
}

// SiteConfig 为特定图片主机覆盖请求头，部分 CDN 会校验 Referer。
type SiteConfig struct {
	Name      string `mapstructure:"Name"`
	Host      string `mapstructure:"Host"`
	UserAgent string `mapstructure:"UserAgent"`
	Referer   string `mapstructure:"Referer"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Sites  []SiteConfig `mapstructure:"Site"`
}

// Site 按主机名查找覆盖项，大小写不敏感。
func (c *Config) Site(host string) (SiteConfig, bool) {
	if c == nil {
		return SiteConfig{}, false
	}
	host = strings.ToLower(strings.TrimSpace(host))
	for _, site := range c.Sites {
		if strings.ToLower(site.Host) == host {
			return site, true
		}
	}
	return SiteConfig{}, false
}

// HeadersFor 返回对 host 生效的 User-Agent 与 Referer，站点未覆盖时回退全局值。
func (c *Config) HeadersFor(host string) (userAgent, referer string) {
	if c == nil {
		return "", ""
	}
	userAgent, referer = c.Global.UserAgent, c.Global.Referer
	if site, ok := c.Site(host); ok {
		if site.UserAgent != "" {
			userAgent = site.UserAgent
		}
		if site.Referer != "" {
			referer = site.Referer
		}
	}
	return userAgent, referer
}
