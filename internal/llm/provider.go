package llm

import (
	"context"
	"errors"
)

// 文稿生成阶段的错误分类。调用方用 errors.Is 判别，不自动重试。
var (
	// ErrNetwork 网络层失败（连接、超时）。
	ErrNetwork = errors.New("网络请求失败")
	// ErrAuth 凭证缺失或被拒绝。
	ErrAuth = errors.New("认证失败")
	// ErrProvider 服务端返回错误。
	ErrProvider = errors.New("服务端错误")
)

// Message 表示与 LLM 对话中的一条消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider 定义支持流式响应的 LLM 后端接口。
type Provider interface {
	// ChatStream 将对话消息发送给 LLM，返回一个 channel 逐块接收文本响应。
	ChatStream(ctx context.Context, messages []Message) (<-chan string, error)
}
