package player

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/hajimehoshi/go-mp3"

	"github.com/iabetor/briefcast/internal/audio"
	"github.com/iabetor/briefcast/internal/logger"
	"github.com/iabetor/briefcast/internal/wav"
)

// Output 是引擎对底层解码/输出子系统的最小依赖。
// Load 解码字节并返回时长（秒）；完成事件通过 SetOnFinished 注册的回调送达。
type Output interface {
	Load(data []byte) (float64, error)
	Play() error
	Pause() error
	SeekTo(seconds float64)
	Position() float64
	SetOnFinished(fn func())
	Close() error
}

// Device 使用 malgo (miniaudio) 实现 Output。
// 支持 WAV（内部解析）和 MP3（go-mp3 解码）两种输入，统一转为单声道 s16le 播放。
type Device struct {
	ctx *malgo.AllocatedContext

	mu         sync.Mutex
	pcm        []byte // 单声道 signed 16-bit LE
	sampleRate int
	device     *malgo.Device
	pos        int // 已播放字节偏移
	started    bool
	onFinished func()
	fired      bool // 完成事件是否已触发（当前源内幂等）
	closed     bool
}

// NewDevice 创建音频输出设备。
func NewDevice() (*Device, error) {
	ctxConfig := malgo.ContextConfig{}
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}
	return &Device{ctx: ctx}, nil
}

// Load 解码音频数据并初始化播放设备，返回时长（秒）。
func (d *Device) Load(data []byte) (float64, error) {
	// 先停住上一个源的音频线程，不能持有 d.mu（数据回调也会抢锁）
	d.mu.Lock()
	old, oldStarted := d.device, d.started
	d.started = false
	d.mu.Unlock()
	if old != nil && oldStarted {
		_ = old.Stop()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, fmt.Errorf("播放器已关闭")
	}

	// 卸载上一个源的设备
	d.teardownDeviceLocked()

	pcm, sampleRate, err := decode(data)
	if err != nil {
		return 0, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 1024
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			d.fillOutput(outputSamples, int(frameCount)*2)
		},
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return 0, fmt.Errorf("初始化播放设备失败: %w", err)
	}

	d.pcm = pcm
	d.sampleRate = sampleRate
	d.device = device
	d.pos = 0
	d.fired = false

	duration := float64(len(pcm)) / float64(sampleRate*2)
	logger.Debugf("[player] 已加载音频: %d 字节 PCM, 采样率 %d Hz, 时长 %.2f 秒", len(pcm), sampleRate, duration)
	return duration, nil
}

// fillOutput 是 malgo 数据回调：从当前偏移拷贝 PCM，播完填充静音并触发完成事件。
func (d *Device) fillOutput(out []byte, bytesNeeded int) {
	d.mu.Lock()

	if d.pos >= len(d.pcm) {
		for i := range out[:bytesNeeded] {
			out[i] = 0
		}
		fn := d.onFinished
		fire := !d.fired && fn != nil
		d.fired = true
		d.mu.Unlock()
		if fire {
			// 在独立 goroutine 中送达，避免音频线程阻塞在引擎锁上
			go fn()
		}
		return
	}

	end := d.pos + bytesNeeded
	if end > len(d.pcm) {
		end = len(d.pcm)
	}
	n := copy(out, d.pcm[d.pos:end])
	for i := n; i < bytesNeeded; i++ {
		out[i] = 0
	}
	d.pos = end
	d.mu.Unlock()
}

// Play 启动（或恢复）设备播放。
func (d *Device) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("未加载音频源")
	}
	if d.started {
		return nil
	}
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	d.started = true
	return nil
}

// Pause 停止设备输出，位置保留。
func (d *Device) Pause() error {
	d.mu.Lock()
	device := d.device
	started := d.started
	d.started = false
	d.mu.Unlock()

	// Stop 会等待音频线程退出，不能持有 d.mu（数据回调也会抢锁）
	if device != nil && started {
		if err := device.Stop(); err != nil {
			return fmt.Errorf("停止播放设备失败: %w", err)
		}
	}
	return nil
}

// SeekTo 跳转到指定秒数，对齐到样本边界。
func (d *Device) SeekTo(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampleRate == 0 {
		return
	}
	pos := int(seconds*float64(d.sampleRate)) * 2
	if pos < 0 {
		pos = 0
	}
	if pos > len(d.pcm) {
		pos = len(d.pcm)
	}
	d.pos = pos
	if pos < len(d.pcm) {
		d.fired = false
	}
}

// Position 返回当前播放位置（秒）。
func (d *Device) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampleRate == 0 {
		return 0
	}
	return float64(d.pos) / float64(d.sampleRate*2)
}

// SetOnFinished 注册播放到末尾时的回调。
func (d *Device) SetOnFinished(fn func()) {
	d.mu.Lock()
	d.onFinished = fn
	d.mu.Unlock()
}

// Close 释放所有资源。
func (d *Device) Close() error {
	_ = d.Pause()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	d.teardownDeviceLocked()
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}

// teardownDeviceLocked 卸载当前 malgo 设备（调用方需持有锁）。
func (d *Device) teardownDeviceLocked() {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	d.started = false
	d.pcm = nil
	d.pos = 0
	d.onFinished = nil
}

// decode 将输入字节解码为单声道 s16le PCM。
// 带 RIFF 头的走 WAV 解析，否则尝试 MP3。
func decode(data []byte) ([]byte, int, error) {
	if wav.IsWAV(data) {
		f, pcm, err := wav.Decode(data)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if f.BitsPerSample != 16 {
			return nil, 0, fmt.Errorf("%w: 不支持的位深 %d", ErrDecode, f.BitsPerSample)
		}
		switch f.Channels {
		case 1:
			return pcm, f.SampleRate, nil
		case 2:
			return audio.StereoBytesToMonoBytes(pcm), f.SampleRate, nil
		default:
			return nil, 0, fmt.Errorf("%w: 不支持的声道数 %d", ErrDecode, f.Channels)
		}
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	stereo, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	// go-mp3 输出固定为立体声 signed 16-bit LE
	return audio.StereoBytesToMonoBytes(stereo), decoder.SampleRate(), nil
}
