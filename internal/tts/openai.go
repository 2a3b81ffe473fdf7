package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iabetor/briefcast/internal/logger"
)

// OpenAI 兼容 /audio/speech 接口以 response_format=pcm 返回的固定布局。
const (
	openAISampleRate    = 24000
	openAIChannels      = 1
	openAIBitsPerSample = 16
)

// OpenAIEngine 通过 OpenAI 兼容的 /audio/speech 接口合成语音。
// 请求原始 PCM 输出，省去一次解码。
type OpenAIEngine struct {
	apiURL     string
	apiKey     string
	model      string
	voice      string
	speed      float64
	httpClient *http.Client
}

// NewOpenAIEngine 创建 OpenAI 兼容 TTS 引擎。
// timeout 为整个请求的上限，音频传输比纯文本慢，应比 LLM 请求的超时更宽。
func NewOpenAIEngine(apiURL, apiKey, model, voice string, speed float64, timeout time.Duration) *OpenAIEngine {
	if speed <= 0 {
		speed = 1.0
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &OpenAIEngine{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		voice:  voice,
		speed:  speed,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// speechRequest 是发送到 /audio/speech 接口的 JSON 请求体。
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize 将文本合成为 24kHz 单声道 16-bit PCM。
func (e *OpenAIEngine) Synthesize(ctx context.Context, text string) (Result, error) {
	logger.Infof("[tts] openai: 正在合成 %d 个字符，voice=%s", len([]rune(text)), e.voice)

	reqBody := speechRequest{
		Model:          e.model,
		Input:          text,
		Voice:          e.voice,
		ResponseFormat: "pcm",
		Speed:          e.speed,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("[tts] 序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.apiURL+"/audio/speech", bytes.NewReader(bodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("[tts] 创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		kind := ErrProvider
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = ErrAuth
		}
		return Result{}, fmt.Errorf("%w: API 返回状态码 %d: %s", kind, resp.StatusCode, string(body))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: 读取音频数据失败: %v", ErrNetwork, err)
	}
	if len(pcm) == 0 {
		return Result{}, fmt.Errorf("%w: 未返回音频数据", ErrProvider)
	}

	// PCM 是 16-bit 样本流，截掉不完整的尾字节
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	logger.Infof("[tts] openai: 收到 %d 字节 PCM", len(pcm))

	return Result{
		Data:          pcm,
		Encoding:      EncodingPCM,
		SampleRate:    openAISampleRate,
		Channels:      openAIChannels,
		BitsPerSample: openAIBitsPerSample,
	}, nil
}
