// Package telegram connects the dialogue machine to the Telegram Bot API.
package telegram

import (
	"context"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"atri-telebot/internal/dialogue"
)

// Bot pumps Telegram updates into the dialogue machine and implements
// dialogue.Messenger on the way back out.
type Bot struct {
	api     *tgbotapi.BotAPI
	machine *dialogue.Machine

	mu     sync.Mutex
	queues map[int64]*chatQueue
	wg     sync.WaitGroup
}

// chatQueue is one chat's ordered message queue. pending counts enqueued
// but not yet handled messages; the drain goroutine exits and removes the
// queue once it hits zero.
type chatQueue struct {
	ch      chan dialogue.Message
	pending int
}

// New creates the bot for the given token.
func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	return &Bot{
		api:    api,
		queues: make(map[int64]*chatQueue),
	}, nil
}

// SetMachine wires the dialogue machine. The machine itself needs the Bot
// as its Messenger, hence the two-step setup.
func (b *Bot) SetMachine(m *dialogue.Machine) {
	b.machine = m
}

// Username returns the bot account's username, for startup logging.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// SendText delivers a plain text message to the chat.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

// SendImage delivers an in-memory image to the chat. Nothing touches disk.
func (b *Bot) SendImage(_ context.Context, chatID int64, image []byte) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "captcha.jpg",
		Bytes: image,
	})
	_, err := b.api.Send(photo)
	return err
}

// Run consumes Telegram updates until ctx is cancelled. Each chat gets its
// own ordered queue, so messages of one chat are handled strictly in
// arrival order while distinct chats proceed in parallel.
func (b *Bot) Run(ctx context.Context) error {
	updCfg := tgbotapi.NewUpdate(0)
	updCfg.Timeout = 60
	updates := b.api.GetUpdatesChan(updCfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.closeQueues()
			b.wg.Wait()
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				b.closeQueues()
				b.wg.Wait()
				return nil
			}
			if u.Message == nil { // ignore non-message updates
				continue
			}
			b.enqueue(ctx, toDialogueMessage(u.Message))
		}
	}
}

func toDialogueMessage(m *tgbotapi.Message) dialogue.Message {
	text := strings.TrimSpace(m.Text)
	return dialogue.Message{
		ChatID:  m.Chat.ID,
		Text:    text,
		HasText: text != "",
	}
}

func (b *Bot) enqueue(ctx context.Context, msg dialogue.Message) {
	b.mu.Lock()
	q, ok := b.queues[msg.ChatID]
	if !ok {
		q = &chatQueue{ch: make(chan dialogue.Message, 16)}
		b.queues[msg.ChatID] = q
		b.wg.Add(1)
		go b.drain(ctx, msg.ChatID, q)
	}
	q.pending++
	b.mu.Unlock()

	// Blocking send: dropping would break per-chat arrival order, and the
	// drain goroutine guarantees progress.
	q.ch <- msg
}

func (b *Bot) drain(ctx context.Context, chatID int64, q *chatQueue) {
	defer b.wg.Done()
	for msg := range q.ch {
		if err := b.machine.HandleMessage(ctx, msg); err != nil {
			log.Printf("chat %d: handle message: %v", chatID, err)
		}

		b.mu.Lock()
		q.pending--
		if q.pending == 0 {
			delete(b.queues, chatID)
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
}

func (b *Bot) closeQueues() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queues {
		close(q.ch)
	}
	b.queues = make(map[int64]*chatQueue)
}
