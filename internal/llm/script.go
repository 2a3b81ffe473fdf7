package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/iabetor/briefcast/internal/logger"
)

// defaultSystemPrompt 未配置 system_prompt 时使用。
const defaultSystemPrompt = "你是一位电台新闻主播的撰稿人。" +
	"根据用户给出的主题撰写可以直接朗读的口播稿：" +
	"不要使用标题、列表或任何标记符号，只输出连贯的口语化段落。"

// ScriptRequest 描述一次简报文稿生成请求。
type ScriptRequest struct {
	Topic         string
	LengthSeconds int
	Tone          string
	Headlines     []string // 可选的新闻上下文，附加到提示词
}

// ScriptWriter 将简报请求组装为提示词，通过 Provider 流式生成并收集完整文稿。
type ScriptWriter struct {
	provider     Provider
	systemPrompt string
}

// NewScriptWriter 创建文稿生成器。
func NewScriptWriter(provider Provider, systemPrompt string) *ScriptWriter {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &ScriptWriter{
		provider:     provider,
		systemPrompt: systemPrompt,
	}
}

// Generate 生成一篇简报文稿。
func (w *ScriptWriter) Generate(ctx context.Context, req ScriptRequest) (string, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return "", fmt.Errorf("主题不能为空")
	}

	messages := []Message{
		{Role: "system", Content: w.systemPrompt},
		{Role: "user", Content: buildPrompt(req)},
	}

	ch, err := w.provider.ChatStream(ctx, messages)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range ch {
		sb.WriteString(chunk)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	script := strings.TrimSpace(sb.String())
	if script == "" {
		return "", fmt.Errorf("%w: 未收到文稿内容", ErrProvider)
	}

	logger.Infof("[llm] 文稿生成完成: 主题=%q, %d 字", req.Topic, len([]rune(script)))
	return script, nil
}

// buildPrompt 组装用户提示词。
func buildPrompt(req ScriptRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "主题：%s\n", req.Topic)
	if req.LengthSeconds > 0 {
		fmt.Fprintf(&sb, "目标朗读时长：约 %d 秒\n", req.LengthSeconds)
	}
	if req.Tone != "" {
		fmt.Fprintf(&sb, "语气风格：%s\n", req.Tone)
	}

	if len(req.Headlines) > 0 {
		sb.WriteString("\n可参考的最新头条：\n")
		for _, h := range req.Headlines {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}

	return sb.String()
}
