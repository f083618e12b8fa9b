package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Bracket.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (f *FeedConfig) validate() error {
	switch f.Source {
	case "sim":
	case "replay":
		if strings.TrimSpace(f.ReplayPath) == "" {
			return fmt.Errorf("feed.replay_path required when feed.source=replay")
		}
	case "ws":
		if strings.TrimSpace(f.WSURL) == "" {
			return fmt.Errorf("feed.ws_url required when feed.source=ws")
		}
	default:
		return fmt.Errorf("feed.source must be one of sim/replay/ws, got %q", f.Source)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0")
	}
	if r.DailyLossLimit <= 0 {
		return fmt.Errorf("risk.daily_loss_limit must be > 0")
	}
	return nil
}

func (b *BracketConfig) validate() error {
	if b.TickSize <= 0 {
		return fmt.Errorf("bracket.tick_size must be > 0")
	}
	if b.StopTicks <= 0 || b.TargetTicks <= 0 {
		return fmt.Errorf("bracket stop_ticks/target_ticks must be > 0")
	}
	if b.BreakEvenTicks <= 0 {
		return fmt.Errorf("bracket.break_even_ticks must be > 0")
	}
	if b.BreakEvenOffsetTicks >= b.BreakEvenTicks {
		return fmt.Errorf("bracket.break_even_offset_ticks must be < break_even_ticks")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
