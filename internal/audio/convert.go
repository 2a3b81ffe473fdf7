package audio

// BytesToInt16 将小端字节切片转换为 int16 样本。
func BytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

// Int16ToBytes 将 int16 样本转换为小端字节切片。
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// StereoToMono 将交错立体声 int16 样本降混为单声道（左右取平均）。
func StereoToMono(in []int16) []int16 {
	n := len(in) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		// 先加后除，int32 中间值避免溢出
		out[i] = int16((int32(in[2*i]) + int32(in[2*i+1])) / 2)
	}
	return out
}

// StereoBytesToMonoBytes 便捷函数：将立体声 signed 16-bit LE PCM 字节降混为单声道字节。
func StereoBytesToMonoBytes(b []byte) []byte {
	return Int16ToBytes(StereoToMono(BytesToInt16(b)))
}
