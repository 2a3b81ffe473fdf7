package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iabetor/briefcast/internal/logger"
)

// ErrDecode 表示底层解码器无法解释加载的字节。
var ErrDecode = errors.New("无法解码音频数据")

const (
	// tickInterval 播放中位置采样间隔。
	tickInterval = 150 * time.Millisecond

	// minDuration 时长下限（秒）。解码器报告 0 或负数时钳位到该值，
	// 避免进度比例计算出现除零。钳位后的时长只是占位值，
	// 采样 tick 持续用观测位置修正它，结束判定交给完成事件。
	minDuration = 0.01
)

// Snapshot 是引擎对外发布的只读状态。
type Snapshot struct {
	State    State
	Position float64 // 秒
	Duration float64 // 秒
	Playing  bool
}

// Engine 管理单个活跃音频源的播放状态机。
// 所有操作（用户命令、采样 tick、完成事件）都通过同一把锁串行化；
// 每次 Load 递增代号（generation），旧源迟到的 tick/完成事件按代号比较直接丢弃。
type Engine struct {
	mu  sync.Mutex
	out Output

	state    State
	gen      uint64
	position float64
	duration float64

	// durationKnown 为 false 时 duration 是钳位占位值，
	// tick 不做「位置到达时长」的结束判定
	durationKnown bool

	// lastLoaded 保留最近一次成功加载的原始字节，
	// 使「保存当前简报」与来源（网络合成或本地库）无关。
	lastLoaded []byte

	interval time.Duration
	stopTick chan struct{}
	onUpdate func(Snapshot)
}

// NewEngine 创建使用指定输出设备的播放引擎。
func NewEngine(out Output) *Engine {
	return &Engine{
		out:      out,
		state:    StateIdle,
		interval: tickInterval,
	}
}

// SetOnUpdate 注册状态发布回调（UI 边界适配器）。
// 回调在引擎锁内调用，不得再调用引擎方法。
func (e *Engine) SetOnUpdate(fn func(Snapshot)) {
	e.mu.Lock()
	e.onUpdate = fn
	e.mu.Unlock()
}

// Load 加载新音频源。先完整拆除上一个源的采样与完成事件注册，
// 解码失败时返回 ErrDecode 且状态回到 Idle。
func (e *Engine) Load(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardownLocked()
	e.setStateLocked(StateLoading)

	duration, err := e.out.Load(data)
	if err != nil {
		e.setStateLocked(StateIdle)
		if errors.Is(err, ErrDecode) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	e.durationKnown = true
	if duration < minDuration {
		logger.Warnf("[player] 解码器报告非法时长 %.3f，钳位为 %.2f", duration, minDuration)
		duration = minDuration
		e.durationKnown = false
	}

	e.position = 0
	e.duration = duration
	e.lastLoaded = data
	e.setStateLocked(StateReady)

	// 绑定当前代号：旧源的完成事件到达时直接作废
	g := e.gen
	e.out.SetOnFinished(func() { e.finished(g) })

	// 采样循环与源同生命周期；暂停时循环不拆除，tick 自行空转
	e.stopTick = make(chan struct{})
	go e.sampleLoop(g, e.stopTick)

	logger.Infof("[player] 音频源已就绪: %d 字节, 时长 %.2f 秒", len(data), duration)
	return nil
}

// Play 开始或恢复播放。已在播放则为空操作；
// Idle/Loading 状态下调用被静默容忍（调用方错误，不抛错）。
// 从 Finished 调用时自动回到 0 重播。
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		return
	case StateIdle, StateLoading:
		return
	case StateFinished:
		// 结束态再点播放 = 从头重播
		e.position = 0
		e.out.SeekTo(0)
	}

	if err := e.out.Play(); err != nil {
		logger.Warnf("[player] 启动播放失败: %v", err)
		return
	}
	e.setStateLocked(StatePlaying)
}

// Pause 暂停播放。非 Playing 状态下为空操作。
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return
	}
	if err := e.out.Pause(); err != nil {
		logger.Warnf("[player] 暂停失败: %v", err)
	}
	e.setStateLocked(StatePaused)
}

// Seek 按进度比例跳转，fraction 钳位到 [0,1]。
// 在 Ready/Playing/Paused/Finished 下有效；
// 在 Finished 下 seek 意味着不再处于「末尾」，转入 Paused。
func (e *Engine) Seek(fraction float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateReady, StatePlaying, StatePaused, StateFinished:
	default:
		return
	}

	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	pos := fraction * e.duration
	e.out.SeekTo(pos)
	e.position = pos

	if e.state == StateFinished {
		e.setStateLocked(StatePaused)
	} else {
		e.publishLocked()
	}
}

// Stop 硬重置到 Idle：拆除采样与完成事件注册，丢弃位置。
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

// Snapshot 返回当前发布状态。
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// LastLoaded 返回最近一次成功加载的原始字节（用于「保存当前简报」）。
func (e *Engine) LastLoaded() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastLoaded
}

// Close 关闭引擎并释放输出设备。
func (e *Engine) Close() error {
	e.mu.Lock()
	e.teardownLocked()
	e.mu.Unlock()
	return e.out.Close()
}

// sampleLoop 周期性位置采样循环，随源的拆除而退出。
func (e *Engine) sampleLoop(g uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick(g)
		}
	}
}

// tick 读取权威位置并重新发布。位置到达时长时主动触发 Finished，
// 不依赖完成事件（部分解码器对某些格式送达晚或不送达）。
func (e *Engine) tick(g uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if g != e.gen || e.state != StatePlaying {
		return
	}

	pos := e.out.Position()

	// 时长未知（钳位占位值）：持续用观测位置扩展时长，永不判终。
	// 占位值必然很快被位置追上，按「位置到达时长」判终会在开播后
	// 一个采样周期内假性结束；此时结束只认完成事件。
	if !e.durationKnown {
		if pos > e.duration {
			e.duration = pos
		}
		e.position = pos
		e.publishLocked()
		return
	}

	if pos >= e.duration {
		e.finishLocked()
		return
	}

	e.position = pos
	e.publishLocked()
}

// finished 处理解码器送达的完成事件。按代号作废旧源事件，重复送达幂等。
func (e *Engine) finished(g uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if g != e.gen {
		logger.Debugf("[player] 忽略过期完成事件 (gen=%d, 当前=%d)", g, e.gen)
		return
	}
	e.finishLocked()
}

// finishLocked 转入 Finished：位置精确设为时长（不用最后一次采样的近似值）。
func (e *Engine) finishLocked() {
	if e.state == StateFinished {
		return
	}
	if e.state != StatePlaying {
		return
	}
	if err := e.out.Pause(); err != nil {
		logger.Debugf("[player] 结束时停止设备失败: %v", err)
	}
	e.position = e.duration
	e.setStateLocked(StateFinished)
}

// teardownLocked 作废当前源：递增代号、关闭采样循环、停住设备、回到 Idle。
func (e *Engine) teardownLocked() {
	e.gen++
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
	if e.state == StatePlaying {
		if err := e.out.Pause(); err != nil {
			logger.Debugf("[player] 拆除时停止设备失败: %v", err)
		}
	}
	e.position = 0
	e.duration = 0
	e.durationKnown = false
	// 源已作废，旧字节不能再被「保存当前简报」取走
	e.lastLoaded = nil
	if e.state != StateIdle {
		e.setStateLocked(StateIdle)
	}
}

// setStateLocked 执行状态转换并发布（调用方需持有锁）。
func (e *Engine) setStateLocked(to State) {
	if !validTransition(e.state, to) {
		logger.Warnf("[player] 非法状态转换 %s → %s", e.state, to)
		return
	}
	from := e.state
	e.state = to
	logger.Debugf("[player] %s → %s", from, to)
	e.publishLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		State:    e.state,
		Position: e.position,
		Duration: e.duration,
		Playing:  e.state == StatePlaying,
	}
}

func (e *Engine) publishLocked() {
	if e.onUpdate != nil {
		e.onUpdate(e.snapshotLocked())
	}
}
