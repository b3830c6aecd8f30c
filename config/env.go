package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env when present and applies PERPTRADER_* overrides. Secrets are
// only ever read from the environment.
func LoadEnv(cfg *Config) {
	_ = godotenv.Load()
	applyEnvOverrides(cfg)
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Exchange.APIKey, "PERPTRADER_BINANCE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "PERPTRADER_BINANCE_SECRET")
	setStr(&cfg.Exchange.ProxyURL, "PERPTRADER_PROXY_URL")
	setBool(&cfg.Exchange.RealTradingEnabled, "PERPTRADER_REAL_TRADING")
	setBool(&cfg.Exchange.Testnet, "PERPTRADER_TESTNET")

	setStr(&cfg.Notify.BarkURL, "PERPTRADER_BARK_URL")
	setStr(&cfg.Notify.TelegramToken, "PERPTRADER_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PERPTRADER_TELEGRAM_CHAT_ID")
	setBool(&cfg.Notify.Enabled, "PERPTRADER_NOTIFY")
	setStringSlice(&cfg.Notify.Channels, "PERPTRADER_NOTIFY_CHANNELS")

	setFloat64(&cfg.Account.InitialCapital, "PERPTRADER_INITIAL_CAPITAL")
	setInt(&cfg.Risk.MaxOpenPositions, "PERPTRADER_MAX_OPEN_POSITIONS")
	setStr(&cfg.Journal.DBPath, "PERPTRADER_DB_PATH")
	setStr(&cfg.Log.Level, "PERPTRADER_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
