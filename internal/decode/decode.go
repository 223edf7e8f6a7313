// Package decode turns raw WebSocket frames from the broker's binary
// market-data feed into Tick records. It is a pure function of its input
// bytes: no wall-clock reads, no randomness, so identical input always
// yields an identical decoded result (spec invariant: referential
// transparency of the decoder).
//
// Grounded on the shape of the teacher's internal/router.Router, a single
// entry point that classifies a raw message and dispatches to a per-type
// parser, generalized here to the broker's binary-frame classification
// instead of a JSON `type` field.
package decode

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kavyaiyer/marketpulse/internal/model"
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindData Kind = iota
	KindHeartbeat
	KindTextControl
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindHeartbeat:
		return "heartbeat"
	case KindTextControl:
		return "text_control"
	default:
		return "unknown"
	}
}

// Frame is the result of decoding one raw WebSocket message.
type Frame struct {
	Kind        Kind
	Ticks       []model.Tick
	TextControl map[string]any
}

// ErrZlibFailure is returned when a frame declares itself zlib-deflated
// (the 0x78 magic byte pair) but fails to decompress. Callers should
// discard the frame and continue; it is not a decoder bug.
var ErrZlibFailure = errors.New("decode: zlib decompression failed")

// Decode classifies and parses one raw frame per the classification order:
// heartbeat, then JSON text control, then zlib-wrapped binary, then plain
// binary.
func Decode(buf []byte) (Frame, error) {
	if len(buf) == 1 && buf[0] == 0x00 {
		return Frame{Kind: KindHeartbeat}, nil
	}

	if len(buf) > 0 && buf[0] == '{' {
		if ctrl, ok := tryParseTextControl(buf); ok {
			return Frame{Kind: KindTextControl, TextControl: ctrl}, nil
		}
		// Not valid JSON after all, fall through to binary handling.
	}

	if isZlibWrapped(buf) {
		inflated, err := inflate(buf)
		if err != nil {
			return Frame{Kind: KindUnknown}, fmt.Errorf("%w: %v", ErrZlibFailure, err)
		}
		return decodeBinary(inflated)
	}

	return decodeBinary(buf)
}

func tryParseTextControl(buf []byte) (map[string]any, bool) {
	if !json.Valid(buf) {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(buf, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func isZlibWrapped(buf []byte) bool {
	if len(buf) < 2 || buf[0] != 0x78 {
		return false
	}
	switch buf[1] {
	case 0x9C, 0x01, 0xDA:
		return true
	default:
		return false
	}
}

func inflate(buf []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// decodeBinary parses the packet-count-prefixed sequence of packets.
// A short buffer while iterating packets halts decoding and returns the
// ticks gathered so far, never an error, a partial frame is expected
// under normal operation (e.g. a TCP read boundary mid-packet).
func decodeBinary(buf []byte) (Frame, error) {
	if len(buf) < 2 {
		return Frame{Kind: KindData}, nil
	}

	n := binary.BigEndian.Uint16(buf[0:2])
	offset := 2

	ticks := make([]model.Tick, 0, n)
	for i := uint16(0); i < n; i++ {
		if offset+2 > len(buf) {
			break
		}
		packetLen := int(binary.BigEndian.Uint16(buf[offset : offset+2]))
		offset += 2

		if offset+packetLen > len(buf) {
			break
		}
		packet := buf[offset : offset+packetLen]
		offset += packetLen

		tick, ok := decodePacket(packet)
		if ok {
			ticks = append(ticks, tick)
		}
	}

	return Frame{Kind: KindData, Ticks: ticks}, nil
}

// decodePacket decodes a single packet according to its length-derived
// mode. Packets with no matching mode length are discarded (ok == false).
func decodePacket(p []byte) (model.Tick, bool) {
	if len(p) < 8 {
		return model.Tick{}, false
	}

	tick := model.Tick{
		Token:     binary.BigEndian.Uint32(p[0:4]),
		LastPrice: int64(int32(binary.BigEndian.Uint32(p[4:8]))),
	}

	switch {
	case len(p) == 8:
		tick.Mode = model.ModeLTP
		return tick, true

	case len(p) == 28:
		tick.Mode = model.ModeIndexQuote
		tick.OHLC = model.OHLC{
			High:  readI32(p, 8),
			Low:   readI32(p, 12),
			Open:  readI32(p, 16),
			Close: readI32(p, 20),
		}
		tick.Change = readI32(p, 24)
		return tick, true

	case len(p) >= 184:
		tick.Mode = model.ModeFull
		decodeQuoteFields(&tick, p)
		tick.LastTradeTime = readUnixSeconds(p, 44)
		tick.OI = binary.BigEndian.Uint32(p[48:52])
		tick.OIDayHigh = binary.BigEndian.Uint32(p[52:56])
		tick.OIDayLow = binary.BigEndian.Uint32(p[56:60])
		tick.ExchangeTimestamp = readUnixSeconds(p, 60)
		decodeDepth(&tick.Depth, p[64:184])
		return tick, true

	case len(p) >= 44:
		tick.Mode = model.ModeQuote
		decodeQuoteFields(&tick, p)
		return tick, true

	default:
		return model.Tick{}, false
	}
}

// decodeQuoteFields fills the fields common to QUOTE and FULL packets,
// offsets 8..44.
func decodeQuoteFields(tick *model.Tick, p []byte) {
	tick.LastTradedQty = binary.BigEndian.Uint32(p[8:12])
	tick.AvgTradedPrice = readI32(p, 12)
	tick.VolumeTraded = binary.BigEndian.Uint32(p[16:20])
	tick.TotalBuyQty = binary.BigEndian.Uint32(p[20:24])
	tick.TotalSellQty = binary.BigEndian.Uint32(p[24:28])
	tick.OHLC = model.OHLC{
		Open:  readI32(p, 28),
		High:  readI32(p, 32),
		Low:   readI32(p, 36),
		Close: readI32(p, 40),
	}
	tick.Change = tick.LastPrice - tick.OHLC.Close
}

// decodeDepth reads the 10 fixed 12-byte levels (5 buy then 5 sell).
func decodeDepth(depth *model.Depth, p []byte) {
	for i := 0; i < 5; i++ {
		depth.Buy[i] = readLevel(p, i*12)
	}
	for i := 0; i < 5; i++ {
		depth.Sell[i] = readLevel(p, 60+i*12)
	}
}

func readLevel(p []byte, off int) model.DepthLevel {
	return model.DepthLevel{
		Quantity:   binary.BigEndian.Uint32(p[off : off+4]),
		Price:      readI32(p, off+4),
		OrderCount: binary.BigEndian.Uint16(p[off+8 : off+10]),
	}
}

func readI32(p []byte, off int) int64 {
	return int64(int32(binary.BigEndian.Uint32(p[off : off+4])))
}

func readUnixSeconds(p []byte, off int) time.Time {
	sec := binary.BigEndian.Uint32(p[off : off+4])
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}
