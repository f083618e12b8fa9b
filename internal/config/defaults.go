package config

import "strings"

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9992"
	defaultFeedSource   = "sim"
	defaultStorePath    = "/data/corral/corral.db"
	defaultMaxOpen      = 3
	defaultDailyLoss    = 1000
	defaultTickSize     = 0.25
	defaultStopTicks    = 20
	defaultTargetTicks  = 40
	defaultBreakEven    = 24
	defaultBEOffset     = 1
	defaultAckTimeout   = 5
	defaultRetryDelay   = 2
	defaultWatchdog     = 1
	defaultLanes        = 8
	defaultBreakerFails = 3
	defaultBreakerCool  = 30
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Feed.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Bracket.applyDefaults(keys)
	c.Coord.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Gateway.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (f *FeedConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("feed.source", &f.Source, defaultFeedSource),
	)
	f.Source = strings.ToLower(strings.TrimSpace(f.Source))
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_open_positions",
			need:  func() bool { return r.MaxOpenPositions <= 0 },
			apply: func() { r.MaxOpenPositions = defaultMaxOpen },
		},
		fieldDefault{
			key:   "risk.daily_loss_limit",
			need:  func() bool { return r.DailyLossLimit <= 0 },
			apply: func() { r.DailyLossLimit = defaultDailyLoss },
		},
	)
	if r.MaxEntryQty < 0 {
		r.MaxEntryQty = 0
	}
}

func (b *BracketConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "bracket.tick_size",
			need:  func() bool { return b.TickSize <= 0 },
			apply: func() { b.TickSize = defaultTickSize },
		},
		fieldDefault{
			key:   "bracket.stop_ticks",
			need:  func() bool { return b.StopTicks <= 0 },
			apply: func() { b.StopTicks = defaultStopTicks },
		},
		fieldDefault{
			key:   "bracket.target_ticks",
			need:  func() bool { return b.TargetTicks <= 0 },
			apply: func() { b.TargetTicks = defaultTargetTicks },
		},
		fieldDefault{
			key:   "bracket.break_even_ticks",
			need:  func() bool { return b.BreakEvenTicks <= 0 },
			apply: func() { b.BreakEvenTicks = defaultBreakEven },
		},
		fieldDefault{
			key:   "bracket.break_even_offset_ticks",
			need:  func() bool { return b.BreakEvenOffsetTicks < 0 },
			apply: func() { b.BreakEvenOffsetTicks = defaultBEOffset },
		},
		fieldDefault{
			key:   "bracket.ack_timeout_seconds",
			need:  func() bool { return b.AckTimeoutSeconds <= 0 },
			apply: func() { b.AckTimeoutSeconds = defaultAckTimeout },
		},
		fieldDefault{
			key:   "bracket.retry_delay_seconds",
			need:  func() bool { return b.RetryDelaySeconds <= 0 },
			apply: func() { b.RetryDelaySeconds = defaultRetryDelay },
		},
		fieldDefault{
			key:   "bracket.watchdog_seconds",
			need:  func() bool { return b.WatchdogSeconds <= 0 },
			apply: func() { b.WatchdogSeconds = defaultWatchdog },
		},
	)
}

func (c *CoordConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "coord.lanes",
			need:  func() bool { return c.Lanes <= 0 },
			apply: func() { c.Lanes = defaultLanes },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (g *GatewayConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "gateway.breaker_threshold",
			need:  func() bool { return g.BreakerThreshold <= 0 },
			apply: func() { g.BreakerThreshold = defaultBreakerFails },
		},
		fieldDefault{
			key:   "gateway.breaker_cooloff_seconds",
			need:  func() bool { return g.BreakerCooloffSeconds <= 0 },
			apply: func() { g.BreakerCooloffSeconds = defaultBreakerCool },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
