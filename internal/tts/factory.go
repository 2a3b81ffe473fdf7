package tts

import (
	"fmt"
	"time"

	"github.com/iabetor/briefcast/internal/config"
)

// NewEngine 根据配置创建对应的 TTS 引擎。
// timeout 仅对走 HTTP 的引擎生效。
func NewEngine(cfg config.TTSConfig, timeout time.Duration) (Engine, error) {
	switch cfg.Engine {
	case "openai", "":
		return NewOpenAIEngine(cfg.OpenAI.APIURL, cfg.OpenAI.APIKey,
			cfg.OpenAI.Model, cfg.OpenAI.Voice, cfg.OpenAI.Speed, timeout), nil
	case "edge":
		return NewEdgeEngine(cfg.Edge.Voice), nil
	case "tencent":
		return NewTencentEngine(TencentConfig{
			SecretID:  cfg.Tencent.SecretID,
			SecretKey: cfg.Tencent.SecretKey,
			VoiceType: cfg.Tencent.VoiceType,
			Region:    cfg.Tencent.Region,
			Speed:     cfg.Tencent.Speed,
		})
	default:
		return nil, fmt.Errorf("未知的 TTS 引擎: %s", cfg.Engine)
	}
}
