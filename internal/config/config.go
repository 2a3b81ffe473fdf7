package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 Briefcast 的顶层配置结构。
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Audio    AudioConfig    `yaml:"audio"`
	Library  LibraryConfig  `yaml:"library"`
	History  HistoryConfig  `yaml:"history"`
	News     NewsConfig     `yaml:"news"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig 简报文稿生成（大模型）配置。
type LLMConfig struct {
	APIURL       string `yaml:"api_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	Engine  string        `yaml:"engine"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Edge    EdgeConfig    `yaml:"edge"`
	Tencent TencentConfig `yaml:"tencent"`
}

// OpenAIConfig OpenAI TTS 配置（返回原始 PCM）。
type OpenAIConfig struct {
	APIURL string  `yaml:"api_url"`
	APIKey string  `yaml:"api_key"`
	Model  string  `yaml:"model"`
	Voice  string  `yaml:"voice"`
	Speed  float64 `yaml:"speed"`
}

// EdgeConfig Edge TTS 配置（返回 MP3）。
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// TencentConfig 腾讯云 TTS 配置（返回 Base64 MP3）。
type TencentConfig struct {
	SecretID  string  `yaml:"secret_id"`
	SecretKey string  `yaml:"secret_key"`
	VoiceType int64   `yaml:"voice_type"`
	Region    string  `yaml:"region"`
	Speed     float64 `yaml:"speed"`
}

// AudioConfig 原始 PCM 的容器封装参数。
// 与 OpenAI TTS 文档中的原始输出格式一致：24kHz 单声道 16-bit。
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	BitsPerSample int `yaml:"bits_per_sample"`
}

// LibraryConfig 简报库存储配置。
type LibraryConfig struct {
	DataDir string `yaml:"data_dir"`
}

// HistoryConfig 播放历史配置。
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// NewsConfig 新闻上下文配置。
// 启用后会抓取 RSS 头条并附加到文稿生成提示词中。
type NewsConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Feeds        []string `yaml:"feeds"`
	MaxHeadlines int      `yaml:"max_headlines"`
}

// TimeoutsConfig 外部调用超时配置（秒）。
type TimeoutsConfig struct {
	RequestSecs  int `yaml:"request_secs"`
	TransferSecs int `yaml:"transfer_secs"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${BRIEFCAST_LLM_API_KEY}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.LLM.APIURL == "" {
		cfg.LLM.APIURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 800
	}

	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "openai"
	}
	if cfg.TTS.OpenAI.APIURL == "" {
		cfg.TTS.OpenAI.APIURL = cfg.LLM.APIURL
	}
	if cfg.TTS.OpenAI.APIKey == "" {
		cfg.TTS.OpenAI.APIKey = cfg.LLM.APIKey
	}
	if cfg.TTS.OpenAI.Model == "" {
		cfg.TTS.OpenAI.Model = "tts-1"
	}
	if cfg.TTS.OpenAI.Voice == "" {
		cfg.TTS.OpenAI.Voice = "alloy"
	}
	if cfg.TTS.Edge.Voice == "" {
		cfg.TTS.Edge.Voice = "zh-CN-XiaoxiaoNeural"
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 24000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.BitsPerSample == 0 {
		cfg.Audio.BitsPerSample = 16
	}

	if cfg.News.MaxHeadlines == 0 {
		cfg.News.MaxHeadlines = 5
	}

	// 外部调用超时：请求 120 秒，传输 180 秒
	if cfg.Timeouts.RequestSecs == 0 {
		cfg.Timeouts.RequestSecs = 120
	}
	if cfg.Timeouts.TransferSecs == 0 {
		cfg.Timeouts.TransferSecs = 180
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Library.DataDir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Library.DataDir = home + "/.briefcast"
		} else {
			cfg.Library.DataDir = "./.briefcast-data"
		}
	} else if strings.HasPrefix(cfg.Library.DataDir, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Library.DataDir = home + cfg.Library.DataDir[1:]
		}
	}

	if cfg.History.DBPath == "" {
		cfg.History.DBPath = cfg.Library.DataDir + "/briefcast.db"
	}

	// 去除 API Key 两端可能的空白（环境变量展开后常见）
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	cfg.TTS.OpenAI.APIKey = strings.TrimSpace(cfg.TTS.OpenAI.APIKey)
}
