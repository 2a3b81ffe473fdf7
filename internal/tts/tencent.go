package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tcTTS "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/briefcast/internal/logger"
)

// TencentEngine 使用腾讯云 TTS 实现语音合成。
// 适用于中国大陆网络环境，支持多种中文音色。返回 MP3，播放端解码。
type TencentEngine struct {
	client    *tcTTS.Client
	voiceType int64
	speed     float64
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
	Speed     float64
}

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(cfg TencentConfig) (*TencentEngine, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: 腾讯云 TTS 需要 SecretID 和 SecretKey", ErrAuth)
	}

	if cfg.VoiceType == 0 {
		cfg.VoiceType = 1001 // 默认音色：智瑜（女声）
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tcTTS.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云 TTS 客户端失败: %w", err)
	}

	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (voice=%d, region=%s)", cfg.VoiceType, cfg.Region)

	return &TencentEngine{
		client:    client,
		voiceType: cfg.VoiceType,
		speed:     cfg.Speed,
	}, nil
}

// Synthesize 将文本合成为 MP3 音频。
func (e *TencentEngine) Synthesize(ctx context.Context, text string) (Result, error) {
	logger.Infof("[tts] 腾讯云 TTS: 正在合成 %d 个字符，音色=%d", len([]rune(text)), e.voiceType)

	request := tcTTS.NewTextToVoiceRequest()
	request.Text = common.StringPtr(text)
	request.VoiceType = common.Int64Ptr(e.voiceType)
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr(e.speed)
	request.Volume = common.Float64Ptr(5.0)

	response, err := e.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return Result{}, fmt.Errorf("%w: 腾讯云 TTS 合成失败: %v", ErrProvider, err)
	}

	if response.Response == nil || response.Response.Audio == nil {
		return Result{}, fmt.Errorf("%w: 腾讯云 TTS 未返回音频数据", ErrProvider)
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return Result{}, fmt.Errorf("%w: Base64 解码失败: %v", ErrProvider, err)
	}
	if len(mp3Data) == 0 {
		return Result{}, fmt.Errorf("%w: 腾讯云 TTS 返回空音频", ErrProvider)
	}

	logger.Infof("[tts] 腾讯云 TTS: 收到 %d 字节 MP3 数据", len(mp3Data))

	return Result{
		Data:     mp3Data,
		Encoding: EncodingCompressed,
	}, nil
}
