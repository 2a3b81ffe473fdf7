package wav

import (
	"encoding/binary"
	"fmt"
	"time"
)

// headerSize RIFF/WAVE 头固定长度（RIFF 块头 8 字节 + 声明长度 36 字节）。
const headerSize = 44

// Format 描述线性 PCM 的封装参数。
type Format struct {
	SampleRate    int // 采样率（Hz）
	Channels      int // 声道数
	BitsPerSample int // 位深，必须为 8 的倍数
}

// DefaultFormat 与合成服务的原始输出格式一致：24kHz 单声道 16-bit。
var DefaultFormat = Format{
	SampleRate:    24000,
	Channels:      1,
	BitsPerSample: 16,
}

// ByteRate 返回每秒字节数。
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// BlockAlign 返回每帧字节数。
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Duration 根据 PCM 长度计算音频时长。
func (f Format) Duration(pcmLen int) time.Duration {
	br := f.ByteRate()
	if br <= 0 {
		return 0
	}
	return time.Duration(float64(pcmLen) / float64(br) * float64(time.Second))
}

// Encode 将原始 PCM 负载封装为标准 WAV 容器。
// 参数合法性由调用方保证（零采样率、零声道属于编程错误，不做运行时校验）。
func Encode(pcm []byte, f Format) []byte {
	out := make([]byte, headerSize+len(pcm))

	// RIFF 块：声明总长 = 负载 + 36
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(pcm)+36))
	copy(out[8:12], "WAVE")

	// fmt 块：16 字节，PCM 格式
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // AudioFormat = 1 (线性 PCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(out[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.BitsPerSample))

	// data 块：负载原样拼接
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)

	return out
}

// Decode 解析 WAV 容器，返回封装参数和 PCM 负载。
// 按块遍历（块按字对齐），容忍 fmt/data 之外的附加块。
func Decode(data []byte) (Format, []byte, error) {
	if len(data) < headerSize {
		return Format{}, nil, fmt.Errorf("数据太短，不是有效的 WAV: %d 字节", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, fmt.Errorf("缺少 RIFF/WAVE 标识")
	}

	var f Format
	var pcm []byte
	foundFmt, foundData := false, false

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(data) {
				return Format{}, nil, fmt.Errorf("fmt 块长度非法: %d", chunkSize)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return Format{}, nil, fmt.Errorf("不支持的音频格式: %d（仅支持线性 PCM）", audioFormat)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			foundFmt = true
		case "data":
			end := body + chunkSize
			if end > len(data) {
				end = len(data)
			}
			pcm = data[body:end]
			foundData = true
		}

		pos = body + chunkSize
		// 块按字对齐
		if chunkSize%2 != 0 {
			pos++
		}
	}

	if !foundFmt || !foundData {
		return Format{}, nil, fmt.Errorf("缺少 fmt 或 data 块")
	}
	return f, pcm, nil
}

// IsWAV 快速判断数据是否带 RIFF/WAVE 头。
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
