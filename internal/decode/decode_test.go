package decode

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/kavyaiyer/marketpulse/internal/model"
)

// buildFrame assembles a binary frame from raw packet payloads, following
// the u16-count + (u16-len, bytes)* layout.
func buildFrame(packets ...[]byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(packets)))
	for _, p := range packets {
		binary.Write(&buf, binary.BigEndian, uint16(len(p)))
		buf.Write(p)
	}
	return buf.Bytes()
}

func putU32(b []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off:off+4], v)
}

func ltpPacket(token uint32, priceX100 int32) []byte {
	p := make([]byte, 8)
	putU32(p, 0, token)
	putU32(p, 4, uint32(priceX100))
	return p
}

func quotePacket(token uint32, priceX100, lastQty, avgPrice, volume, buyQty, sellQty int64, open, high, low, close int64) []byte {
	p := make([]byte, 44)
	putU32(p, 0, token)
	putU32(p, 4, uint32(priceX100))
	putU32(p, 8, uint32(lastQty))
	putU32(p, 12, uint32(avgPrice))
	putU32(p, 16, uint32(volume))
	putU32(p, 20, uint32(buyQty))
	putU32(p, 24, uint32(sellQty))
	putU32(p, 28, uint32(open))
	putU32(p, 32, uint32(high))
	putU32(p, 36, uint32(low))
	putU32(p, 40, uint32(close))
	return p
}

func fullPacket(token uint32, priceX100 int64) []byte {
	p := make([]byte, 184)
	putU32(p, 0, token)
	putU32(p, 4, uint32(priceX100))
	putU32(p, 28, 100) // open
	putU32(p, 32, 110) // high
	putU32(p, 36, 90)  // low
	putU32(p, 40, 100) // close
	putU32(p, 48, 7)   // OI
	for i := 0; i < 5; i++ {
		off := 64 + i*12
		putU32(p, off, uint32(10+i))      // qty
		putU32(p, off+4, uint32(200+i))   // price
		binary.BigEndian.PutUint16(p[off+8:off+10], uint16(i+1))
	}
	for i := 0; i < 5; i++ {
		off := 64 + 60 + i*12
		putU32(p, off, uint32(20+i))
		putU32(p, off+4, uint32(300+i))
		binary.BigEndian.PutUint16(p[off+8:off+10], uint16(i+1))
	}
	return p
}

func TestDecode_Heartbeat(t *testing.T) {
	f, err := Decode([]byte{0x00})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindHeartbeat {
		t.Fatalf("Kind = %v, want heartbeat", f.Kind)
	}
}

func TestDecode_TextControl(t *testing.T) {
	msg := []byte(`{"type":"error","data":"boom"}`)
	f, err := Decode(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindTextControl {
		t.Fatalf("Kind = %v, want text_control", f.Kind)
	}
	if f.TextControl["type"] != "error" {
		t.Errorf("TextControl[type] = %v, want error", f.TextControl["type"])
	}
}

func TestDecode_TextControl_InvalidJSONFallsThroughToBinary(t *testing.T) {
	// Starts with '{' but is not valid JSON; must fall through to binary
	// handling rather than being misclassified or erroring out.
	malformed := []byte("{not json")
	f, err := Decode(malformed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindData {
		t.Fatalf("Kind = %v, want data (fallthrough)", f.Kind)
	}
}

func TestDecode_EmptyFrame(t *testing.T) {
	f, err := Decode(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindData || len(f.Ticks) != 0 {
		t.Fatalf("got %+v, want zero ticks no error", f)
	}
}

func TestDecode_ZeroPacketFrame(t *testing.T) {
	f, err := Decode(buildFrame())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Ticks) != 0 {
		t.Fatalf("Ticks = %v, want none", f.Ticks)
	}
}

func TestDecode_LTPPacket(t *testing.T) {
	f, err := Decode(buildFrame(ltpPacket(738561, 250000)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Ticks) != 1 {
		t.Fatalf("Ticks = %d, want 1", len(f.Ticks))
	}
	tick := f.Ticks[0]
	if tick.Mode != model.ModeLTP {
		t.Errorf("Mode = %v, want LTP", tick.Mode)
	}
	if tick.Token != 738561 || tick.LastPrice != 250000 {
		t.Errorf("got token=%d price=%d", tick.Token, tick.LastPrice)
	}
}

func TestDecode_QuotePacket_NoDepth(t *testing.T) {
	f, err := Decode(buildFrame(quotePacket(1, 250000, 10, 249000, 1000, 500, 400, 240000, 260000, 230000, 240000)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tick := f.Ticks[0]
	if tick.VolumeTraded != 1000 {
		t.Errorf("VolumeTraded = %d, want 1000", tick.VolumeTraded)
	}
	if tick.OHLC.Close != 240000 {
		t.Errorf("Close = %d, want 240000", tick.OHLC.Close)
	}
	if tick.Change != 10000 {
		t.Errorf("Change = %d, want 10000", tick.Change)
	}
	for _, lvl := range tick.Depth.Buy {
		if lvl.Quantity != 0 {
			t.Fatalf("expected empty depth on QUOTE mode, got %+v", lvl)
		}
	}
}

func TestDecode_FullPacket_WithDepth(t *testing.T) {
	f, err := Decode(buildFrame(fullPacket(1, 250000)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tick := f.Ticks[0]
	if tick.OI != 7 {
		t.Errorf("OI = %d, want 7", tick.OI)
	}
	for i, lvl := range tick.Depth.Buy {
		if lvl.Quantity != uint32(10+i) {
			t.Errorf("Buy[%d].Quantity = %d, want %d", i, lvl.Quantity, 10+i)
		}
	}
	for i, lvl := range tick.Depth.Sell {
		if lvl.Quantity != uint32(20+i) {
			t.Errorf("Sell[%d].Quantity = %d, want %d", i, lvl.Quantity, 20+i)
		}
	}
}

func TestDecode_TruncatedMidPacket_NoPanic(t *testing.T) {
	full := buildFrame(ltpPacket(1, 100), ltpPacket(2, 200))
	truncated := full[:len(full)-3]
	f, err := Decode(truncated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Ticks) != 1 {
		t.Fatalf("Ticks = %d, want 1 (first packet decoded, second truncated)", len(f.Ticks))
	}
}

func TestDecode_InvalidModeLength_Discarded(t *testing.T) {
	bogus := make([]byte, 15) // between 8 and 28, not a valid mode length
	f, err := Decode(buildFrame(ltpPacket(1, 100), bogus, ltpPacket(2, 200)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Ticks) != 2 {
		t.Fatalf("Ticks = %d, want 2 (bogus packet discarded)", len(f.Ticks))
	}
}

func TestDecode_ZlibWrapped(t *testing.T) {
	inner := buildFrame(ltpPacket(42, 12345))

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(inner)
	w.Close()

	f, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Ticks) != 1 || f.Ticks[0].Token != 42 {
		t.Fatalf("got %+v", f)
	}
}

func TestDecode_ZlibFailure(t *testing.T) {
	corrupt := []byte{0x78, 0x9c, 0xFF, 0xFF, 0xFF}
	_, err := Decode(corrupt)
	if err == nil {
		t.Fatal("expected zlib failure error")
	}
}

func TestDecode_Deterministic(t *testing.T) {
	buf := buildFrame(fullPacket(1, 250000), quotePacket(2, 100, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	f1, _ := Decode(buf)
	f2, _ := Decode(buf)
	if len(f1.Ticks) != len(f2.Ticks) {
		t.Fatalf("non-deterministic tick count: %d vs %d", len(f1.Ticks), len(f2.Ticks))
	}
	for i := range f1.Ticks {
		if f1.Ticks[i] != f2.Ticks[i] {
			t.Fatalf("non-deterministic tick at %d: %+v vs %+v", i, f1.Ticks[i], f2.Ticks[i])
		}
	}
}
