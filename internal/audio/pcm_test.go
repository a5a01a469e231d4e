package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteWAVHeaderStreaming(t *testing.T) {
	var buf bytes.Buffer

	n, err := WriteWAVHeaderStreaming(&buf)
	if err != nil {
		t.Fatalf("WriteWAVHeaderStreaming: %v", err)
	}
	if n != 44 {
		t.Fatalf("wrote %d bytes; want 44", n)
	}

	hdr := buf.Bytes()

	if string(hdr[0:4]) != "RIFF" {
		t.Errorf("missing RIFF marker: %q", hdr[0:4])
	}
	if string(hdr[8:12]) != "WAVE" {
		t.Errorf("missing WAVE marker: %q", hdr[8:12])
	}

	if got := binary.LittleEndian.Uint32(hdr[4:8]); got != 0xFFFFFFFF {
		t.Errorf("RIFF size = %#x; want 0xFFFFFFFF (streaming)", got)
	}
	if got := binary.LittleEndian.Uint32(hdr[40:44]); got != 0xFFFFFFFF {
		t.Errorf("data size = %#x; want 0xFFFFFFFF (streaming)", got)
	}

	if got := binary.LittleEndian.Uint32(hdr[24:28]); got != ExpectedSampleRate {
		t.Errorf("sample rate = %d; want %d", got, ExpectedSampleRate)
	}
	if got := binary.LittleEndian.Uint16(hdr[22:24]); got != ExpectedChannels {
		t.Errorf("channels = %d; want %d", got, ExpectedChannels)
	}
	if got := binary.LittleEndian.Uint16(hdr[34:36]); got != ExpectedBitDepth {
		t.Errorf("bit depth = %d; want %d", got, ExpectedBitDepth)
	}
}

func TestEncodePCM16(t *testing.T) {
	got := EncodePCM16([]float32{0, 1.0, -1.0, 2.0})

	if len(got) != 8 {
		t.Fatalf("len = %d; want 8", len(got))
	}

	read := func(i int) int16 {
		return int16(binary.LittleEndian.Uint16(got[i*2:]))
	}

	if read(0) != 0 {
		t.Errorf("sample 0 = %d; want 0", read(0))
	}
	if read(1) != 32767 {
		t.Errorf("sample 1 = %d; want 32767", read(1))
	}
	if read(2) != -32767 {
		t.Errorf("sample 2 = %d; want -32767", read(2))
	}
	// Over-range input is clamped, not wrapped.
	if read(3) != 32767 {
		t.Errorf("sample 3 = %d; want clamped 32767", read(3))
	}
}

func TestWritePCM16Samples(t *testing.T) {
	var buf bytes.Buffer

	n, err := WritePCM16Samples(&buf, []float32{0.5, -0.5})
	if err != nil {
		t.Fatalf("WritePCM16Samples: %v", err)
	}
	if n != 4 {
		t.Errorf("wrote %d bytes; want 4", n)
	}
}
