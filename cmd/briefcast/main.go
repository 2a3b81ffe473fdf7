package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iabetor/briefcast/internal/config"
	"github.com/iabetor/briefcast/internal/history"
	"github.com/iabetor/briefcast/internal/library"
	"github.com/iabetor/briefcast/internal/llm"
	"github.com/iabetor/briefcast/internal/logger"
	"github.com/iabetor/briefcast/internal/news"
	"github.com/iabetor/briefcast/internal/pipeline"
	"github.com/iabetor/briefcast/internal/player"
	"github.com/iabetor/briefcast/internal/tts"
)

func main() {
	configPath := flag.String("config", "configs/briefcast.yaml", "配置文件路径")
	topic := flag.String("topic", "", "生成并播放指定主题的简报")
	length := flag.Int("length", 60, "目标朗读时长（秒）")
	tone := flag.String("tone", "", "语气风格，如 casual / formal")
	save := flag.Bool("save", false, "播放结束后保存到简报库")
	list := flag.Bool("list", false, "列出简报库中的所有简报")
	play := flag.String("play", "", "重播简报库中指定 id 的简报")
	del := flag.String("delete", "", "删除简报库中指定 id 的简报")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] Briefcast 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	store, err := library.NewStore(cfg.Library.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开简报库失败: %v\n", err)
		os.Exit(1)
	}

	// 无需音频设备的纯库操作先走，避免在 headless 环境初始化声卡
	switch {
	case *list:
		printLibrary(store)
		return
	case *del != "":
		res, err := store.Delete(*del)
		if err != nil {
			fmt.Fprintf(os.Stderr, "删除失败: %v\n", err)
			os.Exit(1)
		}
		if !res.IndexRemoved {
			fmt.Printf("未找到简报: %s\n", *del)
			return
		}
		if !res.Clean() {
			fmt.Printf("已删除索引，但音频文件残留: %v\n", res.BlobErr)
			return
		}
		fmt.Println("已删除。")
		return
	}

	device, err := player.NewDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化音频设备失败: %v\n", err)
		os.Exit(1)
	}
	engine := player.NewEngine(device)
	defer engine.Close()

	requestTimeout := time.Duration(cfg.Timeouts.RequestSecs) * time.Second
	transferTimeout := time.Duration(cfg.Timeouts.TransferSecs) * time.Second

	provider := llm.NewOpenAIProvider(cfg.LLM.APIURL, cfg.LLM.APIKey,
		cfg.LLM.Model, cfg.LLM.MaxTokens, requestTimeout)
	scripter := llm.NewScriptWriter(provider, cfg.LLM.SystemPrompt)

	synth, err := tts.NewEngine(cfg.TTS, transferTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化 TTS 引擎失败: %v\n", err)
		os.Exit(1)
	}

	var opts []pipeline.Option
	if cfg.History.Enabled {
		hist, err := history.Open(cfg.History.DBPath)
		if err != nil {
			logger.Warnf("[main] 打开历史数据库失败，历史记录停用: %v", err)
		} else {
			defer hist.Close()
			opts = append(opts, pipeline.WithHistory(hist))
		}
	}
	if cfg.News.Enabled && len(cfg.News.Feeds) > 0 {
		opts = append(opts, pipeline.WithHeadlines(
			news.NewFetcher(cfg.News.Feeds), cfg.News.MaxHeadlines))
	}

	p := pipeline.New(scripter, synth, engine, store, opts...)

	switch {
	case *play != "":
		b, err := p.Replay(*play)
		if err != nil {
			reportFailure(err)
			os.Exit(1)
		}
		fmt.Printf("正在播放: %s\n", b.Topic)
		waitForFinish(ctx, engine)

	case *topic != "":
		req := pipeline.Request{Topic: *topic, LengthSeconds: *length, Tone: *tone}
		cur, err := p.Generate(ctx, req)
		if err != nil {
			reportFailure(err)
			os.Exit(1)
		}
		fmt.Printf("正在播放: %s\n", cur.Topic)
		waitForFinish(ctx, engine)

		if *save {
			b, err := p.SaveCurrent()
			if err != nil {
				reportFailure(err)
				os.Exit(1)
			}
			fmt.Printf("已保存: %s (%s)\n", b.Topic, b.ID)
		}

	default:
		flag.Usage()
		os.Exit(2)
	}

	logger.Info("[main] Briefcast 已停止")
}

// waitForFinish 阻塞到播放结束或收到关闭信号，期间支持简单的交互控制。
func waitForFinish(ctx context.Context, engine *player.Engine) {
	done := make(chan struct{}, 1)
	engine.SetOnUpdate(func(s player.Snapshot) {
		if s.State == player.StateFinished {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	// p=暂停/继续, q=停止
	go readKeys(ctx, engine)

	// 回调注册前可能已经结束（极短音频），用轮询兜底
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s := engine.Snapshot()
			if s.State == player.StateFinished || s.State == player.StateIdle {
				return
			}
		case <-ctx.Done():
			engine.Stop()
			return
		}
	}
}

// readKeys 读取按行输入的控制命令。
func readKeys(ctx context.Context, engine *player.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "p":
			if engine.Snapshot().Playing {
				engine.Pause()
				fmt.Println("已暂停（输入 p 继续）")
			} else {
				engine.Play()
			}
		case "q":
			engine.Stop()
			return
		}
	}
}

func printLibrary(store *library.Store) {
	entries := store.List()
	if len(entries) == 0 {
		fmt.Println("简报库为空。")
		return
	}
	for _, b := range entries {
		fmt.Printf("%s  %s  %s\n", b.ID, b.CreatedAt, b.Topic)
	}
}

// reportFailure 按失败阶段给出用户可读的错误信息。
func reportFailure(err error) {
	stage := pipeline.FailedStage(err)
	if stage == "" {
		fmt.Fprintf(os.Stderr, "出错: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "生成失败（%s 阶段）: %v\n", stage, err)
}
