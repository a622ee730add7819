package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"atri-telebot/internal/config"
	"atri-telebot/internal/dialogue"
	"atri-telebot/internal/luogu"
	"atri-telebot/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, reading environment directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store dialogue.Store
	if cfg.DBPath != "" {
		s, err := dialogue.NewSQLite(cfg.DBPath)
		if err != nil {
			log.Fatalf("open dialogue store: %v", err)
		}
		store = s
	} else {
		store = dialogue.NewMemoryStore()
	}
	defer store.Close()

	bot, err := telegram.New(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("telegram init: %v", err)
	}

	client := luogu.NewClient(cfg.LuoguBaseURL, cfg.UserAgent, cfg.HTTPTimeout())
	bot.SetMachine(dialogue.NewMachine(store, bot, client))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("bot started as @%s", bot.Username())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot run: %v", err)
	}
	log.Println("bot stopped")
}
