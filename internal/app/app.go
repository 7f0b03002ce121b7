package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pavangelika/currency-rate-bot/internal/banks"
	"github.com/pavangelika/currency-rate-bot/internal/config"
	"github.com/pavangelika/currency-rate-bot/internal/geo"
	"github.com/pavangelika/currency-rate-bot/internal/notify"
	"github.com/pavangelika/currency-rate-bot/internal/rates"
	"github.com/pavangelika/currency-rate-bot/internal/schedule"
	"github.com/pavangelika/currency-rate-bot/internal/store"
	"github.com/pavangelika/currency-rate-bot/internal/telegram"
)

// cycleTimeout bounds one dispatch cycle (fetch + send + persist).
const cycleTimeout = 2 * time.Minute

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	sched   *schedule.Scheduler
	router  *telegram.Router
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting currency-rate-bot",
		zap.String("mode", a.cfg.NotifyMode),
		zap.String("http", a.cfg.HTTPAddr),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	loc, err := time.LoadLocation(a.cfg.TZ)
	if err != nil {
		return err
	}
	a.sched = schedule.New(loc, a.log)

	ratesClient := rates.NewClient(a.cfg.RatesBaseURL)

	// The dispatcher sends through the router and the subscription
	// service fires the dispatcher, so the closure binds late.
	var dispatcher *notify.Dispatcher
	cycle := func(userID int64) {
		cctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()
		if err := dispatcher.RunCycle(cctx, userID); err != nil {
			a.log.Error("dispatch cycle failed", zap.Int64("user", userID), zap.Error(err))
		}
	}

	subs := schedule.NewService(a.sched, repo, a.log,
		a.cfg.NotifyMode, a.cfg.DailyAt, a.cfg.NotifyInterval, cycle)

	a.router = telegram.NewRouter(a.bot, a.log, repo, ratesClient, subs,
		banks.NewScraper(a.cfg.BanksBaseURL), geo.NewClient())

	dispatcher = notify.NewDispatcher(repo, ratesClient, a.router, notify.RetryPolicy{
		MaxAttempts: a.cfg.SendMaxAttempts,
		Initial:     a.cfg.SendBackoffMin,
		MaxInterval: a.cfg.SendBackoffMax,
	}, a.log)

	// Storage is the source of truth for subscriptions: rebuild the
	// scheduler from it before anything fires.
	if err := subs.Rehydrate(ctx); err != nil {
		a.log.Error("rehydrate failed", zap.Error(err))
		return err
	}
	a.sched.Start()

	a.setCommands()

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			a.sched.Stop()

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}

			if a.repo != nil {
				_ = a.repo.Close()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

func (a *App) setCommands() {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Начало работы"},
		tgbotapi.BotCommand{Command: "select_rate", Description: "Выбор валют"},
		tgbotapi.BotCommand{Command: "currency", Description: "Мои валюты"},
		tgbotapi.BotCommand{Command: "today", Description: "Курс ЦБ сегодня"},
		tgbotapi.BotCommand{Command: "dynamic", Description: "Динамика курса"},
		tgbotapi.BotCommand{Command: "everyday", Description: "Ежедневная рассылка"},
		tgbotapi.BotCommand{Command: "banks", Description: "Банки города"},
		tgbotapi.BotCommand{Command: "remind", Description: "Напоминание"},
	)
	if _, err := a.bot.Request(cmds); err != nil {
		a.log.Warn("set commands failed", zap.Error(err))
	}
}
