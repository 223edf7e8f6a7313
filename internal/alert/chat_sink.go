package alert

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kavyaiyer/marketpulse/internal/sink"
)

// ChatSink adapts a sink.Sink into the Engine's Sink interface: every
// fired event becomes one new text message in a fixed alert channel.
// Alerts are fire-and-forget, per spec, ChatSink never edits or tracks
// handles, unlike the view publisher.
type ChatSink struct {
	underlying sink.Sink
	channelID  string
}

// NewChatSink creates a ChatSink posting into channelID.
func NewChatSink(underlying sink.Sink, channelID string) *ChatSink {
	return &ChatSink{underlying: underlying, channelID: channelID}
}

// SendAlert renders event and posts it as a new message.
func (c *ChatSink) SendAlert(ctx context.Context, event Event) error {
	_, err := c.underlying.Send(ctx, c.channelID, render(event))
	return err
}

func render(event Event) string {
	switch event.Kind {
	case KindCrash, KindSpike:
		return fmt.Sprintf("[%s] %s : %s (%s%%) over %s",
			event.Kind, event.Instrument.Symbol, formatPrice(event.Price), event.PctChange.StringFixed(2), event.Elapsed)
	case KindVolumeSpike:
		return fmt.Sprintf("[%s] %s : %s volume x%s over %s",
			event.Kind, event.Instrument.Symbol, formatPrice(event.Price), event.Ratio.StringFixed(2), event.Elapsed)
	default:
		return fmt.Sprintf("[%s] %s", event.Kind, event.Instrument.Symbol)
	}
}

func formatPrice(hundredths int64) string {
	return decimal.NewFromInt(hundredths).DivRound(decimal.NewFromInt(100), 2).StringFixed(2)
}
