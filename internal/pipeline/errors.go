package pipeline

import (
	"errors"
	"fmt"
)

// ErrConfig 表示流水线缺少必要配置（如未配置凭证）。
var ErrConfig = errors.New("配置不完整")

// Stage 标识流水线失败发生的阶段，用于向用户报告「失败在哪一步」。
type Stage string

const (
	StageConfig    Stage = "config"    // 配置校验
	StageScript    Stage = "script"    // 文稿生成
	StageSynthesis Stage = "synthesis" // 语音合成
	StageEncode    Stage = "encode"    // 容器封装
	StageLoad      Stage = "load"      // 加载到播放引擎
	StageStore     Stage = "store"     // 简报库读写
)

// StageError 将底层错误与失败阶段绑定。
// 底层错误通过 Unwrap 暴露，调用方仍可用 errors.Is 判别错误类别。
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s 阶段失败: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageErr 构造阶段错误。
func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage 从错误链中提取失败阶段，非流水线错误返回空。
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
