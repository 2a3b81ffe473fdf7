package tts

import (
	"context"
	"errors"
)

// 合成阶段的错误分类。调用方用 errors.Is 判别。
var (
	// ErrNetwork 网络层失败（连接、超时）。
	ErrNetwork = errors.New("网络请求失败")
	// ErrAuth 凭证缺失或被拒绝。
	ErrAuth = errors.New("认证失败")
	// ErrProvider 服务端返回错误。
	ErrProvider = errors.New("服务端错误")
)

// Encoding 标记合成结果中音频字节的格式。
type Encoding string

const (
	// EncodingPCM 原始 PCM（无容器），需要调用方自行封装。
	EncodingPCM Encoding = "pcm"
	// EncodingCompressed 压缩格式（如 MP3），播放端自行解码。
	EncodingCompressed Encoding = "compressed"
)

// Result 是一次合成的输出。
// Encoding 为 EncodingPCM 时 SampleRate/Channels/BitsPerSample 描述字节布局，
// 为 EncodingCompressed 时这些字段为零值，格式信息内嵌在数据中。
type Result struct {
	Data          []byte
	Encoding      Encoding
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Engine 定义语音合成后端接口。
type Engine interface {
	// Synthesize 将文本转换为音频。
	Synthesize(ctx context.Context, text string) (Result, error)
}
