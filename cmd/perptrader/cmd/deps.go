package cmd

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/config"
	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/exchange/binance"
	"github.com/rustyeddy/perptrader/exchange/paper"
	"github.com/rustyeddy/perptrader/notify"
	"github.com/rustyeddy/perptrader/pricing"
)

// buildNotifier wires the configured channels. It returns nil when alerts are off
// or no channel has credentials.
func buildNotifier(c *config.Config, l *zap.Logger) *notify.Notifier {
	if !c.Notify.Enabled {
		return nil
	}
	var senders []notify.Sender
	for _, ch := range c.Notify.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "bark":
			if c.Notify.BarkURL != "" {
				senders = append(senders, notify.NewBarkSender(c.Notify.BarkURL))
			}
		case "telegram":
			if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID != "" {
				senders = append(senders, notify.NewTelegramSender(c.Notify.TelegramToken, c.Notify.TelegramChatID))
			}
		}
	}
	if len(senders) == 0 {
		l.Warn("notifications enabled but no channel is configured")
		return nil
	}
	return notify.New(senders, nil, l)
}

func buildBinance(c *config.Config, l *zap.Logger) *binance.Client {
	return binance.New(binance.Options{
		APIKey:     c.Exchange.APIKey,
		APISecret:  c.Exchange.APISecret,
		Testnet:    c.Exchange.Testnet,
		ProxyURL:   c.Exchange.ProxyURL,
		Instrument: c.Instrument,
	}, l)
}

// paperVenue books orders in memory and reads prices from a real feed. Every
// kline fetch marks the book with the latest price so resting stops and
// take-profits trigger.
type paperVenue struct {
	*paper.Paper
	data exchange.MarketData
}

var _ exchange.Exchange = paperVenue{}

func newPaperVenue(balance float64, data exchange.MarketData) paperVenue {
	return paperVenue{Paper: paper.New(balance), data: data}
}

func (v paperVenue) Klines(ctx context.Context, symbol, interval string, limit int) ([]pricing.Candle, error) {
	cs, err := v.data.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if n := len(cs); n > 0 {
		v.Paper.Mark(symbol, cs[n-1].Close)
	}
	return cs, nil
}

func (v paperVenue) LastPrice(ctx context.Context, symbol string) (float64, error) {
	px, err := v.data.LastPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	v.Paper.Mark(symbol, px)
	return px, nil
}
