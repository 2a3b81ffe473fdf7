package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/briefcast/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 实现语音合成，免费且无需凭证。
// edge-tts-go 返回 MP3 音频，不在此处解码，播放端按压缩格式处理。
type EdgeEngine struct {
	voice string
}

// NewEdgeEngine 创建指定语音的 Edge TTS 引擎。
func NewEdgeEngine(voice string) *EdgeEngine {
	return &EdgeEngine{voice: voice}
}

// Synthesize 将文本合成为 MP3 音频。
func (e *EdgeEngine) Synthesize(ctx context.Context, text string) (Result, error) {
	logger.Infof("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), e.voice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(e.voice))
	if err != nil {
		return Result{}, fmt.Errorf("%w: edge-tts 创建实例失败: %v", ErrProvider, err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return Result{}, fmt.Errorf("%w: edge-tts 开始流式合成失败: %v", ErrNetwork, err)
	}

	// 从 channel 收集所有音频数据
	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
		default:
		}
		// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return Result{}, fmt.Errorf("%w: edge-tts 未收到音频数据", ErrProvider)
	}

	logger.Infof("[tts] edge-tts: 收到 %d 字节 MP3 数据", mp3Buf.Len())

	return Result{
		Data:     mp3Buf.Bytes(),
		Encoding: EncodingCompressed,
	}, nil
}
