package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iabetor/briefcast/internal/history"
	"github.com/iabetor/briefcast/internal/library"
	"github.com/iabetor/briefcast/internal/llm"
	"github.com/iabetor/briefcast/internal/logger"
	"github.com/iabetor/briefcast/internal/news"
	"github.com/iabetor/briefcast/internal/player"
	"github.com/iabetor/briefcast/internal/tts"
	"github.com/iabetor/briefcast/internal/wav"
)

// ScriptGenerator 文稿生成端口。
type ScriptGenerator interface {
	Generate(ctx context.Context, req llm.ScriptRequest) (string, error)
}

// Player 播放引擎端口。
type Player interface {
	Load(data []byte) error
	Play()
	Stop()
	Snapshot() player.Snapshot
	LastLoaded() []byte
}

// Library 简报库端口。
type Library interface {
	Add(topic string, audioData []byte) (library.Briefing, error)
	ReadAudio(id string) ([]byte, error)
	Delete(id string) (library.DeleteResult, error)
	Get(id string) (library.Briefing, bool)
	List() []library.Briefing
}

// History 播放历史端口。可选，为 nil 时不记录。
type History interface {
	Record(event history.Event, topic, briefingID string, duration float64) error
}

// HeadlineSource 新闻头条端口。可选，为 nil 时提示词不带头条。
type HeadlineSource interface {
	Latest(ctx context.Context, limit int) []news.Headline
}

// Request 一次简报生成请求。
type Request struct {
	Topic         string
	LengthSeconds int
	Tone          string
}

// Current 当前活跃简报的元信息（尚未保存时 BriefingID 为空）。
type Current struct {
	Topic      string
	Script     string
	BriefingID string
}

// Pipeline 串联文稿生成、语音合成、容器封装、加载播放与简报库。
// 方法假定在单一控制流（命令行主流程）中调用，不做自身并发保护；
// 播放引擎内部自带锁，异步采样与完成事件不经过本层。
type Pipeline struct {
	scripter     ScriptGenerator
	synth        tts.Engine
	player       Player
	store        Library
	history      History
	headlines    HeadlineSource
	maxHeadlines int

	current Current
}

// Option 配置可选协作方。
type Option func(*Pipeline)

// WithHistory 启用播放历史记录。
func WithHistory(h History) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithHeadlines 启用新闻头条上下文。
func WithHeadlines(src HeadlineSource, max int) Option {
	return func(p *Pipeline) {
		p.headlines = src
		if max > 0 {
			p.maxHeadlines = max
		}
	}
}

// New 创建流水线。
func New(scripter ScriptGenerator, synth tts.Engine, pl Player, store Library, opts ...Option) *Pipeline {
	p := &Pipeline{
		scripter:     scripter,
		synth:        synth,
		player:       pl,
		store:        store,
		maxHeadlines: 5,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Generate 执行完整流水线：文稿 → 合成 → 封装 → 加载 → 自动播放。
// 任一阶段失败立即终止，播放引擎回到 Idle，上一份简报不保留。
func (p *Pipeline) Generate(ctx context.Context, req Request) (Current, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return Current{}, stageErr(StageConfig, fmt.Errorf("%w: 主题不能为空", ErrConfig))
	}

	// 新一轮生成开始即作废当前简报，失败后不会退回旧源
	p.player.Stop()
	p.current = Current{}

	started := time.Now()
	logger.Infof("[pipeline] 开始生成简报: %q", req.Topic)

	scriptReq := llm.ScriptRequest{
		Topic:         req.Topic,
		LengthSeconds: req.LengthSeconds,
		Tone:          req.Tone,
	}
	if p.headlines != nil {
		scriptReq.Headlines = news.Titles(p.headlines.Latest(ctx, p.maxHeadlines))
	}

	script, err := p.scripter.Generate(ctx, scriptReq)
	if err != nil {
		return Current{}, stageErr(StageScript, err)
	}
	logger.Infof("[pipeline] 文稿完成 (%d 字)", len([]rune(script)))

	result, err := p.synth.Synthesize(ctx, script)
	if err != nil {
		return Current{}, stageErr(StageSynthesis, err)
	}

	audio, err := wrapAudio(result)
	if err != nil {
		return Current{}, stageErr(StageEncode, err)
	}

	if err := p.player.Load(audio); err != nil {
		return Current{}, stageErr(StageLoad, err)
	}
	p.player.Play()

	p.current = Current{Topic: req.Topic, Script: script}
	p.record(history.EventGenerated, req.Topic, "")

	logger.Infof("[pipeline] 简报已开始播放 (%d 字节, 耗时 %.1f 秒)",
		len(audio), time.Since(started).Seconds())
	return p.current, nil
}

// SaveCurrent 将当前加载的简报保存到简报库。重复调用会重复保存。
func (p *Pipeline) SaveCurrent() (library.Briefing, error) {
	data := p.player.LastLoaded()
	if len(data) == 0 {
		return library.Briefing{}, stageErr(StageStore, fmt.Errorf("没有可保存的简报"))
	}

	topic := p.current.Topic
	if topic == "" {
		topic = "未命名简报"
	}

	b, err := p.store.Add(topic, data)
	if err != nil {
		return library.Briefing{}, stageErr(StageStore, err)
	}
	p.current.BriefingID = b.ID
	p.record(history.EventSaved, topic, b.ID)
	return b, nil
}

// Replay 从简报库加载指定简报并自动播放。
func (p *Pipeline) Replay(id string) (library.Briefing, error) {
	b, ok := p.store.Get(id)
	if !ok {
		return library.Briefing{}, stageErr(StageStore, fmt.Errorf("简报不存在: %s", id))
	}

	data, err := p.store.ReadAudio(id)
	if err != nil {
		return library.Briefing{}, stageErr(StageStore, err)
	}

	p.player.Stop()
	if err := p.player.Load(data); err != nil {
		return library.Briefing{}, stageErr(StageLoad, err)
	}
	p.player.Play()

	p.current = Current{Topic: b.Topic, BriefingID: b.ID}
	p.record(history.EventReplayed, b.Topic, b.ID)
	return b, nil
}

// Delete 从简报库删除指定简报。
func (p *Pipeline) Delete(id string) (library.DeleteResult, error) {
	res, err := p.store.Delete(id)
	if err != nil {
		return res, stageErr(StageStore, err)
	}
	if p.current.BriefingID == id {
		p.current.BriefingID = ""
	}
	return res, nil
}

// List 返回简报库索引。
func (p *Pipeline) List() []library.Briefing {
	return p.store.List()
}

// Current 返回当前活跃简报的元信息。
func (p *Pipeline) Current() Current {
	return p.current
}

// record 写历史记录。历史是旁路：失败只记日志。
func (p *Pipeline) record(event history.Event, topic, briefingID string) {
	if p.history == nil {
		return
	}
	duration := p.player.Snapshot().Duration
	if err := p.history.Record(event, topic, briefingID, duration); err != nil {
		logger.Warnf("[pipeline] 写入历史失败: %v", err)
	}
}

// wrapAudio 将合成结果转换为播放引擎可加载的字节：
// 原始 PCM 封装为 WAV 容器，压缩格式原样透传。
func wrapAudio(r tts.Result) ([]byte, error) {
	switch r.Encoding {
	case tts.EncodingPCM:
		if r.SampleRate <= 0 || r.Channels <= 0 || r.BitsPerSample <= 0 {
			return nil, fmt.Errorf("PCM 格式参数非法: %d Hz, %d 声道, %d bit",
				r.SampleRate, r.Channels, r.BitsPerSample)
		}
		f := wav.Format{
			SampleRate:    r.SampleRate,
			Channels:      r.Channels,
			BitsPerSample: r.BitsPerSample,
		}
		return wav.Encode(r.Data, f), nil
	case tts.EncodingCompressed:
		return r.Data, nil
	default:
		return nil, fmt.Errorf("未知的音频编码: %q", r.Encoding)
	}
}
