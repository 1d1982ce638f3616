package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/reconnectedcc/kromer/internal/config"
	"github.com/reconnectedcc/kromer/internal/crypto"
	"github.com/reconnectedcc/kromer/internal/httpapi"
	"github.com/reconnectedcc/kromer/internal/hub"
	"github.com/reconnectedcc/kromer/internal/ledger"
	"github.com/reconnectedcc/kromer/internal/notifyops"
	"github.com/reconnectedcc/kromer/internal/scheduler"
	"github.com/reconnectedcc/kromer/internal/session"
	"github.com/reconnectedcc/kromer/internal/store"
	"github.com/reconnectedcc/kromer/internal/wsapi"
	"github.com/reconnectedcc/kromer/internal/wstoken"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "kromerd",
		Usage: "Kromer is a synthetic in-game currency server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database-url", Aliases: []string{"d"}, Usage: "Postgres connection string"},
			&cli.StringFlag{Name: "server-url", Aliases: []string{"s"}, Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "public-url", Aliases: []string{"p"}, Usage: "Public base URL for returned WS links"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
			&cli.StringFlag{Name: "telegram-bot-token", Aliases: []string{"T"}, Usage: "Telegram bot token for ops alerts"},
			&cli.StringFlag{Name: "telegram-chat-id", Usage: "Telegram chat ID for ops alerts"},
			&cli.StringFlag{Name: "smtp-host", Usage: "SMTP host for ops alerts"},
			&cli.IntFlag{Name: "smtp-port", Usage: "SMTP port for ops alerts"},
			&cli.StringFlag{Name: "smtp-user", Usage: "SMTP user for ops alerts"},
			&cli.StringFlag{Name: "smtp-password", Usage: "SMTP password for ops alerts"},
			&cli.StringFlag{Name: "smtp-sender", Usage: "SMTP sender address for ops alerts"},
			&cli.StringFlag{Name: "smtp-to", Usage: "SMTP recipient address for ops alerts"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if c.IsSet("server-url") {
		cfg.ServerURL = c.String("server-url")
	}
	if c.IsSet("public-url") {
		cfg.PublicURL = c.String("public-url")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("telegram-bot-token") {
		cfg.TelegramBotToken = c.String("telegram-bot-token")
	}
	if c.IsSet("telegram-chat-id") {
		cfg.TelegramChatID = c.String("telegram-chat-id")
	}
	if c.IsSet("smtp-host") {
		cfg.SMTPHost = c.String("smtp-host")
	}
	if c.IsSet("smtp-port") {
		cfg.SMTPPort = c.Int("smtp-port")
	}
	if c.IsSet("smtp-user") {
		cfg.SMTPUser = c.String("smtp-user")
	}
	if c.IsSet("smtp-password") {
		cfg.SMTPPassword = c.String("smtp-password")
	}
	if c.IsSet("smtp-sender") {
		cfg.SMTPSender = c.String("smtp-sender")
	}
	if c.IsSet("smtp-to") {
		cfg.SMTPTo = c.String("smtp-to")
	}

	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	db, err := store.NewPostgresStore(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	deriver := crypto.NewDeriver()
	sessions := session.New(store.WalletAuthorizer{Store: db}, deriver)
	tokens := wstoken.New()

	notifier := notifyops.New(log.With("notifyops"),
		notifyops.TelegramConfig{Token: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID},
		notifyops.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			Sender:   cfg.SMTPSender,
			To:       cfg.SMTPTo,
		},
	)

	wsDispatcher := wsapi.New(log.With("wsapi"), nil, deriver, db)
	wsHub := hub.New(log.With("hub"), wsDispatcher, "welcome to kromer")
	l := ledger.New(db, wsHub, log.With("ledger"))
	wsDispatcher.SetLedger(l)

	wakeSignal := scheduler.NewSignal()
	sched := scheduler.New(db, l, notifier, wakeSignal, log.With("scheduler"))

	api := httpapi.New(cfg, log.With("httpapi"), db, sessions, tokens, wsHub, l, wakeSignal, deriver)

	stop := make(chan struct{})
	go sched.Run(stop)

	go func() {
		if err := api.Start(); err != nil {
			log.Fatal("http server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received shutdown signal", "signal", sig.String())

	close(stop)
	if err := api.Shutdown(); err != nil {
		log.Error("error shutting down http server", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}
