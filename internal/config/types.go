package config

// Config is the main configuration carrier for corral.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Bracket BracketConfig `mapstructure:"bracket"`
	Coord   CoordConfig   `mapstructure:"coord"`
	Store   StoreConfig   `mapstructure:"store"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// FeedConfig selects the event source: "replay" reads a JSONL file, "ws"
// streams from a websocket endpoint, "sim" runs the in-process simulator.
type FeedConfig struct {
	Source     string `mapstructure:"source"`
	ReplayPath string `mapstructure:"replay_path"`
	WSURL      string `mapstructure:"ws_url"`
}

type RiskConfig struct {
	MaxOpenPositions int      `mapstructure:"max_open_positions"`
	DailyLossLimit   float64  `mapstructure:"daily_loss_limit"`
	MaxEntryQty      float64  `mapstructure:"max_entry_qty"`
	Instruments      []string `mapstructure:"instruments"`
}

type BracketConfig struct {
	TickSize             float64 `mapstructure:"tick_size"`
	StopTicks            int64   `mapstructure:"stop_ticks"`
	TargetTicks          int64   `mapstructure:"target_ticks"`
	BreakEvenTicks       int64   `mapstructure:"break_even_ticks"`
	BreakEvenOffsetTicks int64   `mapstructure:"break_even_offset_ticks"`
	AckTimeoutSeconds    int     `mapstructure:"ack_timeout_seconds"`
	RetryDelaySeconds    int     `mapstructure:"retry_delay_seconds"`
	WatchdogSeconds      int     `mapstructure:"watchdog_seconds"`
}

type CoordConfig struct {
	Lanes int `mapstructure:"lanes"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// GatewayConfig tunes the circuit breaker in front of submissions.
type GatewayConfig struct {
	BreakerThreshold      int `mapstructure:"breaker_threshold"`
	BreakerCooloffSeconds int `mapstructure:"breaker_cooloff_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}
