package audio

import (
	"math"
	"testing"
)

func TestBytesToInt16_LittleEndian(t *testing.T) {
	// 0x0102 in little-endian is {0x02, 0x01}
	b := []byte{0x02, 0x01}
	out := BytesToInt16(b)
	if len(out) != 1 || out[0] != 0x0102 {
		t.Fatalf("expected 258 (0x0102), got %v", out)
	}
}

func TestBytesToInt16_OddLengthDropsTail(t *testing.T) {
	out := BytesToInt16([]byte{0x02, 0x01, 0xFF})
	if len(out) != 1 {
		t.Fatalf("expected trailing byte dropped, got %d samples", len(out))
	}
}

func TestInt16ToBytes_LittleEndian(t *testing.T) {
	out := Int16ToBytes([]int16{0x0102})
	if len(out) != 2 || out[0] != 0x02 || out[1] != 0x01 {
		t.Fatalf("expected [0x02, 0x01], got %v", out)
	}
}

func TestBytesInt16_Roundtrip(t *testing.T) {
	samples := []int16{0, 1, -1, 1000, -1000, math.MaxInt16, math.MinInt16}
	b := Int16ToBytes(samples)
	result := BytesToInt16(b)
	if len(result) != len(samples) {
		t.Fatalf("length mismatch: expected %d, got %d", len(samples), len(result))
	}
	for i, s := range samples {
		if result[i] != s {
			t.Errorf("index %d: expected %d, got %d", i, s, result[i])
		}
	}
}

func TestStereoToMono_Averages(t *testing.T) {
	in := []int16{100, 200, -100, 100, 0, 0}
	out := StereoToMono(in)
	want := []int16{150, 0, 0}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: expected %d, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], out[i])
		}
	}
}

func TestStereoToMono_NoOverflow(t *testing.T) {
	in := []int16{math.MaxInt16, math.MaxInt16, math.MinInt16, math.MinInt16}
	out := StereoToMono(in)
	if out[0] != math.MaxInt16 {
		t.Errorf("expected MaxInt16, got %d", out[0])
	}
	if out[1] != math.MinInt16 {
		t.Errorf("expected MinInt16, got %d", out[1])
	}
}

func TestStereoBytesToMonoBytes(t *testing.T) {
	// Two stereo frames: (100, 200) and (-50, -150)
	in := Int16ToBytes([]int16{100, 200, -50, -150})
	out := BytesToInt16(StereoBytesToMonoBytes(in))
	if len(out) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(out))
	}
	if out[0] != 150 || out[1] != -100 {
		t.Errorf("expected [150, -100], got %v", out)
	}
}
