package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mangafetch/mangafetch/internal/cache"
	"github.com/mangafetch/mangafetch/internal/config"
	"github.com/mangafetch/mangafetch/internal/fetch"
	"github.com/mangafetch/mangafetch/internal/logging"
	"github.com/mangafetch/mangafetch/internal/pipeline"
	"github.com/mangafetch/mangafetch/internal/render"
	"github.com/mangafetch/mangafetch/internal/resolver"
	"github.com/mangafetch/mangafetch/internal/server"
	"github.com/mangafetch/mangafetch/internal/server/routes"
	"github.com/mangafetch/mangafetch/internal/version"
)

const (
	configEnv         = "MANGAFETCH_CONFIG"
	defaultConfigFile = "config.toml"
	chapterPageSize   = 20
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath    string
	checkOnly     bool
	showVersion   bool
	serve         bool
	link          string
	outputDir     string
	format        string
	concurrency   int
	all           bool
	chapters      string
	cacheValidate bool
	cacheSweep    bool
	cacheClear    bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
	stdIn  io.Reader = os.Stdin
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_dir"] = cfg.Global.CacheDir
		fields["concurrency"] = cfg.Global.Concurrency
		fields["sites"] = len(cfg.Sites)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 所有入口共享同一个缓存 Manager，它是该缓存目录在进程内的唯一写入者。
	mgr, err := cache.Open(cfg.Global.CacheDir, cfg.Global.CacheMaxAge.DurationValue(), cache.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	if opts.cacheValidate || opts.cacheSweep || opts.cacheClear {
		return runCacheMaintenance(opts, mgr, logger)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_dir"] = cfg.Global.CacheDir
	fields["concurrency"] = cfg.Global.Concurrency
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if opts.serve {
		if err := startHTTPServer(cfg, mgr, logger); err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
			return 1
		}
		return 0
	}

	if strings.TrimSpace(opts.link) == "" {
		fmt.Fprintln(stdErr, "缺少 -link 参数")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return download(ctx, opts, cfg, mgr, logger)
}

// loadConfig 读取配置并应用命令行覆盖项，覆盖后重新校验。
func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.outputDir != "" {
		cfg.Global.OutputDir = opts.outputDir
	}
	if opts.format != "" {
		cfg.Global.OutputFormat = opts.format
	}
	if opts.concurrency != 0 {
		cfg.Global.Concurrency = opts.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func download(ctx context.Context, opts cliOptions, cfg *config.Config, mgr *cache.Manager, logger *logrus.Logger) int {
	renderer, err := render.ForFormat(cfg.Global.OutputFormat)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化渲染器失败: %v\n", err)
		return 1
	}

	client := fetch.NewClient(cfg)
	p, err := pipeline.New(pipeline.Options{
		Cache:       mgr,
		Source:      resolver.NewHTMLResolver(client, resolver.WithUserAgent(cfg.Global.UserAgent)),
		Fetcher:     fetch.NewConfiguredFetcher(cfg),
		Renderer:    renderer,
		OutputDir:   cfg.Global.OutputDir,
		Concurrency: cfg.Global.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化下载流程失败: %v\n", err)
		return 1
	}

	series, err := p.Series(ctx, opts.link)
	if err != nil {
		fmt.Fprintf(stdErr, "解析系列页面失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdOut, "Manga: %s\n", series.Title)

	selection, err := chooseChapters(opts, series, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "选择章节失败: %v\n", err)
		return 1
	}

	report, err := p.Download(ctx, series, selection)
	if err != nil {
		fmt.Fprintf(stdErr, "下载失败: %v\n", err)
		return 1
	}
	printReport(report)

	if report.Failed() == len(report.Chapters) {
		return 1
	}
	return 0
}

// chooseChapters 依次考虑 -all、-chapters 与交互式输入；返回 nil 表示全部章节。
func chooseChapters(opts cliOptions, series resolver.Series, logger *logrus.Logger) ([]int, error) {
	if opts.all {
		fmt.Fprintf(stdOut, "Downloading all %d chapters\n", len(series.Chapters))
		return nil, nil
	}

	input := opts.chapters
	if strings.TrimSpace(input) == "" {
		line, err := promptSelection(series.Chapters)
		if err != nil {
			return nil, err
		}
		input = line
	}

	selected, warnings, err := resolver.ParseSelection(input, len(series.Chapters))
	for _, w := range warnings {
		logger.WithField("action", "chapter_selection").Warn(w)
	}
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, errors.New("no valid chapters selected")
	}
	fmt.Fprintf(stdOut, "Selected %d chapters for download\n", len(selected))
	return selected, nil
}

// promptSelection 分页列出章节并读取一行选择。
func promptSelection(chapters []resolver.Chapter) (string, error) {
	reader := bufio.NewReader(stdIn)
	fmt.Fprintln(stdOut, "\nAvailable chapters:")
	for i, ch := range chapters {
		fmt.Fprintf(stdOut, "[%d] %s\n", ch.Index, ch.Title)
		if (i+1)%chapterPageSize == 0 && i+1 < len(chapters) {
			fmt.Fprint(stdOut, "Press Enter to see more chapters...")
			if _, err := reader.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
		}
	}
	fmt.Fprintln(stdOut, "\nEnter chapter numbers to download (comma-separated, ranges allowed e.g. '1,3-5,7'):")
	fmt.Fprint(stdOut, "> ")
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printReport(report pipeline.Report) {
	for _, ch := range report.Chapters {
		switch {
		case ch.Err != nil:
			fmt.Fprintf(stdOut, "✗ %s: %v\n", ch.Title, ch.Err)
		case ch.CacheHit:
			fmt.Fprintf(stdOut, "✓ %s (cached) -> %s\n", ch.Title, ch.Output)
		case ch.Failed > 0:
			fmt.Fprintf(stdOut, "✓ %s (%d/%d images) -> %s\n", ch.Title, ch.Items-ch.Failed, ch.Items, ch.Output)
		default:
			fmt.Fprintf(stdOut, "✓ %s -> %s\n", ch.Title, ch.Output)
		}
	}
	fmt.Fprintf(stdOut, "All chapters have been processed (%d failed)\n", report.Failed())
}

func runCacheMaintenance(opts cliOptions, mgr *cache.Manager, logger *logrus.Logger) int {
	code := 0
	if opts.cacheValidate {
		valid, invalid := mgr.Validate()
		logger.WithFields(logrus.Fields{"action": "cache_validate", "valid": valid, "invalid": invalid}).Info("缓存校验完成")
		fmt.Fprintf(stdOut, "valid=%d invalid=%d\n", valid, invalid)
	}
	if opts.cacheSweep {
		removed, err := mgr.SweepExpired()
		fmt.Fprintf(stdOut, "removed=%d\n", removed)
		if err != nil {
			fmt.Fprintf(stdErr, "清理过期缓存失败: %v\n", err)
			code = 1
		}
	}
	if opts.cacheClear {
		if err := mgr.Clear(); err != nil {
			fmt.Fprintf(stdErr, "清空缓存失败: %v\n", err)
			code = 1
		} else {
			fmt.Fprintln(stdOut, "cache cleared")
		}
	}
	return code
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("mangafetch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		opts       cliOptions
		configFlag string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 MANGAFETCH_CONFIG 覆盖）")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&opts.serve, "serve", false, "启动缓存管理 HTTP 服务")
	fs.StringVar(&opts.link, "link", "", "系列页面 URL")
	fs.StringVar(&opts.outputDir, "output-dir", "", "输出目录（覆盖配置 OutputDir）")
	fs.StringVar(&opts.format, "format", "", "输出格式 pdf 或 cbz（覆盖配置 OutputFormat）")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "同时下载的图片数量（覆盖配置 Concurrency，默认 5）")
	fs.BoolVar(&opts.all, "all", false, "下载全部章节")
	fs.StringVar(&opts.chapters, "chapters", "", "章节选择，例如 1,3-5,7")
	fs.BoolVar(&opts.cacheValidate, "cache-validate", false, "校验缓存文件校验和")
	fs.BoolVar(&opts.cacheSweep, "cache-sweep", false, "删除过期缓存")
	fs.BoolVar(&opts.cacheClear, "cache-clear", false, "清空缓存")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if opts.concurrency < 0 {
		return cliOptions{}, fmt.Errorf("concurrency 必须为正数: %d", opts.concurrency)
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	opts.configPath = path

	return opts, nil
}

func startHTTPServer(cfg *config.Config, mgr *cache.Manager, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		ListenPort: port,
		Version:    version.Full(),
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, mgr, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
