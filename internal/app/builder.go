package app

import (
	"fmt"
	"time"

	"corral/internal/account"
	"corral/internal/bracket"
	"corral/internal/config"
	"corral/internal/coord"
	"corral/internal/feed"
	"corral/internal/gateway"
	"corral/internal/gateway/sim"
	"corral/internal/ledger"
	"corral/internal/logger"
	"corral/internal/notify"
	"corral/internal/observe"
	"corral/internal/pkg/circuit"
	"corral/internal/pkg/decmath"
	"corral/internal/risk"
	"corral/internal/store"
	statushttp "corral/internal/transport/http"

	"github.com/shopspring/decimal"
)

// build wires the full dependency graph. Construction order matters: the
// gate needs the store for its day marker, the sim gateway needs the
// coordinator's dispatch, and hydration runs before any lane starts.
func build(cfg *config.Config) (*App, error) {
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store failed: %w", err)
	}

	sink := buildSink(cfg)

	registry := account.NewRegistry(sink)
	book := ledger.New(registry, sink)

	limits := risk.Limits{
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		DailyLossLimit:   decmath.FromFloat(cfg.Risk.DailyLossLimit),
	}
	rules := buildRules(cfg)
	gate, err := risk.NewGate(limits, db, sink, rules...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init risk gate failed: %w", err)
	}

	bcfg := bracket.Config{
		TickSize:             decmath.FromFloat(cfg.Bracket.TickSize),
		StopTicks:            cfg.Bracket.StopTicks,
		TargetTicks:          cfg.Bracket.TargetTicks,
		BreakEvenTicks:       cfg.Bracket.BreakEvenTicks,
		BreakEvenOffsetTicks: cfg.Bracket.BreakEvenOffsetTicks,
		AckTimeout:           time.Duration(cfg.Bracket.AckTimeoutSeconds) * time.Second,
		RetryDelay:           time.Duration(cfg.Bracket.RetryDelaySeconds) * time.Second,
	}

	// The coordinator and gateway reference each other: the sim gateway
	// pushes lifecycle events back through Dispatch. Break the cycle with a
	// late-bound dispatch func.
	var co *coord.Coordinator
	dispatch := func(evt coord.EventEnvelope) error { return co.Dispatch(evt) }

	simGW := sim.New(dispatch)
	breaker := circuit.NewBreaker("gateway",
		cfg.Gateway.BreakerThreshold,
		time.Duration(cfg.Gateway.BreakerCooloffSeconds)*time.Second)
	gw := gateway.NewGuarded(simGW, breaker)

	ctrl := bracket.NewController(bcfg, gw, book, gate, sink)

	co = coord.New(coord.Deps{
		Accounts: registry,
		Ledger:   book,
		Gate:     gate,
		Brackets: ctrl,
		Gateway:  gw,
		Sink:     sink,
		Persist:  db,
		Lanes:    cfg.Coord.Lanes,
	})

	if err := store.Hydrate(db, book, ctrl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("hydrate from store failed: %w", err)
	}

	source, err := buildSource(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	httpSrv, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Accounts: registry,
		Book:     book,
		Gate:     gate,
		Brackets: ctrl,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init status http failed: %w", err)
	}

	a := &App{
		cfg:     cfg,
		db:      db,
		coord:   co,
		gate:    gate,
		simGW:   simGW,
		source:  source,
		httpSrv: httpSrv,
	}
	return a, nil
}

func buildSink(cfg *config.Config) observe.Sink {
	logSink := observe.NewLogSink()
	if !cfg.Notify.Telegram.Enabled {
		return logSink
	}
	tg := notify.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	logger.Infof("telegram notifier enabled (chat=%s)", cfg.Notify.Telegram.ChatID)
	return observe.NewFanOut(logSink, observe.NewNotifySink(tg))
}

func buildRules(cfg *config.Config) []risk.Rule {
	var rules []risk.Rule
	if cfg.Risk.MaxEntryQty > 0 {
		rules = append(rules, risk.MaxQuantityRule{Max: decimal.NewFromFloat(cfg.Risk.MaxEntryQty)})
	}
	if len(cfg.Risk.Instruments) > 0 {
		rules = append(rules, risk.InstrumentAllowList{Allowed: cfg.Risk.Instruments})
	}
	return rules
}

func buildSource(cfg *config.Config) (feed.Source, error) {
	switch cfg.Feed.Source {
	case "sim":
		// The sim gateway is the only producer; nothing to stream.
		return nil, nil
	case "replay":
		return feed.NewReplay(cfg.Feed.ReplayPath), nil
	case "ws":
		return feed.NewWS(cfg.Feed.WSURL), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", cfg.Feed.Source)
	}
}

// WatchLimits applies risk-limit changes from a config reload without a
// restart. Only the gate limits are hot-swappable.
func (a *App) WatchLimits(w *config.Watcher) {
	if w == nil || a.gate == nil {
		return
	}
	a.watcher = w
	w.Subscribe(func(cfg *config.Config) {
		a.gate.SetLimits(risk.Limits{
			MaxOpenPositions: cfg.Risk.MaxOpenPositions,
			DailyLossLimit:   decmath.FromFloat(cfg.Risk.DailyLossLimit),
		})
		logger.Infof("risk limits reloaded: max_open=%d daily_loss=%v",
			cfg.Risk.MaxOpenPositions, cfg.Risk.DailyLossLimit)
	})
}
