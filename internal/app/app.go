package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"intentbot/internal/config"
	"intentbot/internal/eventbus"
	"intentbot/internal/notifier"
	"intentbot/internal/reminder"
	rtsup "intentbot/internal/runtime/supervisor"
	"intentbot/internal/storage"
	"intentbot/internal/timeparse"
	kit "intentbot/internal/transport"
	telegram "intentbot/internal/transport/telegram/adapter"
	"intentbot/internal/transport/telegram/router"
	logx "intentbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	notif   *notifier.Service
	reg     *reminder.Registry
	router  *router.Router
	digest  *Digest

	// notifier workers outlive the app context so Stop can drain them.
	notifCancel context.CancelFunc

	updates chan kit.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		APIURL:      strings.TrimSpace(cfg.Telegram.APIURL),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// The Telegram sink needs its target before it is enabled, so the
	// service starts with it off and the final config is applied after.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, ad)
	if chatID, _ := cfg.GroupLogChatID(); chatID != 0 {
		logSvc.SetTelegramTarget(chatID)
	}
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, ad, root.With(logx.String("comp", "notifier")), bus)

	remLog := root.With(logx.String("comp", "reminder"))
	reg := reminder.NewRegistry(reminder.RegistryConfig{
		Backend: store,
		Notifier: func(chatID int64) reminder.Notifier {
			return NewChatNotifier(chatID, notif, loc, time.Now, remLog)
		},
		Bus:     bus,
		Log:     remLog,
		IDRange: idRange(cfg),
	})

	rt := router.New(router.Options{
		Log:            root.With(logx.String("comp", "router")),
		Sender:         ad,
		DefaultTimeout: 15 * time.Second,
	})
	if err := rt.SetCommands(NewHandlers(reg, timeparse.New(loc), time.Now).Commands()); err != nil {
		_ = store.Close()
		return nil, err
	}

	digest, err := NewDigest(digestSpec(cfg), loc, reg, root.With(logx.String("comp", "digest")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notif,
		reg:     reg,
		router:  rt,
		digest:  digest,
		updates: make(chan kit.Message, 256),
	}, nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error of a supervised goroutine.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	nctx, ncancel := context.WithCancel(context.WithoutCancel(ctx))
	a.notifCancel = ncancel
	a.notif.Start(nctx)

	n, err := a.reg.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	}
	a.log.Info("reminders restored", logx.Int("chats", n))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128, "reminder.", notifier.EventFailed, notifier.EventDropped)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		eventbus.Consume(c, events, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		})
	})

	if a.digest != nil {
		a.digest.Start()
		a.log.Info("digest scheduled", logx.String("spec", digestSpec(a.cfgm.Get())))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies the live sections of a reload. Everything else is
// reported as needing a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	changed, _ := config.SummarizeChange(prev, next)
	if restart := config.RestartRequired(changed); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required", logx.String("sections", strings.Join(restart, ",")))
	}

	chatID, _ := next.GroupLogChatID()
	a.logs.SetTelegramTarget(chatID)
	a.logs.Apply(mapLogConfig(next))

	ncfg, err := mapNotifierConfig(next)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	a.notif.Apply(ncfg)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("digest", time.Second, func(c context.Context) error {
		if a.digest != nil {
			a.digest.Stop(c)
		}
		return nil
	})
	step("reminders", time.Second, func(context.Context) error { a.reg.Close(); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error {
		a.notif.Stop(c)
		a.notifCancel()
		a.log.Info("notifier drained", deliveryFields(a.notif.History())...)
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}

// deliveryFields summarizes the notifier's recent delivery window.
func deliveryFields(h []notifier.HistoryItem) []logx.Field {
	fields := []logx.Field{logx.Int("recent_deliveries", len(h))}
	if len(h) == 0 {
		return fields
	}
	chats := map[int64]struct{}{}
	for _, it := range h {
		chats[it.ChatID] = struct{}{}
	}
	return append(fields,
		logx.Int("recent_chats", len(chats)),
		logx.Time("last_delivery", h[len(h)-1].At),
	)
}
