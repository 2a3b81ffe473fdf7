package player

// State 表示播放引擎的当前状态。
type State int

const (
	// StateIdle — 空闲，未加载任何音频源。
	StateIdle State = iota
	// StateLoading — 音频源已交给解码器，时长未知。
	StateLoading
	// StateReady — 时长已知，位置为 0，未播放。
	StateReady
	// StatePlaying — 正在播放。
	StatePlaying
	// StatePaused — 已暂停，位置保留。
	StatePaused
	// StateFinished — 播放到末尾，位置等于时长。
	StateFinished
)

var stateNames = [...]string{
	"Idle",
	"Loading",
	"Ready",
	"Playing",
	"Paused",
	"Finished",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// validTransition 检查状态转换是否合法：
//
//	Idle     → Loading   （开始加载音频源）
//	Loading  → Ready     （解码器报告有效时长）
//	Ready    → Playing   （开始播放）
//	Playing  ⇄ Paused    （暂停/恢复）
//	Playing  → Finished  （播放到末尾）
//	Finished → Playing   （点击播放即从头重播）
//	Finished → Paused    （在结束态 seek 后退出结束态）
//
// 任何状态都可以转换到 Idle（Stop 或解码失败时的硬重置）。
func validTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateLoading
	case StateLoading:
		return to == StateReady
	case StateReady:
		return to == StatePlaying
	case StatePlaying:
		return to == StatePaused || to == StateFinished
	case StatePaused:
		return to == StatePlaying
	case StateFinished:
		return to == StatePlaying || to == StatePaused
	}
	return false
}
