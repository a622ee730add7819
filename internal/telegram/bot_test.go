package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"atri-telebot/internal/dialogue"
)

type recordingMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingMessenger) SendText(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingMessenger) SendImage(context.Context, int64, []byte) error {
	return nil
}

func (r *recordingMessenger) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// newTestBot builds a Bot with just the queue machinery wired; the Telegram
// API client is never touched because the recording messenger replaces it.
func newTestBot(msgr dialogue.Messenger) *Bot {
	b := &Bot{queues: make(map[int64]*chatQueue)}
	b.SetMachine(dialogue.NewMachine(dialogue.NewMemoryStore(), msgr, nil))
	return b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func command(chatID int64, text string) dialogue.Message {
	return dialogue.Message{ChatID: chatID, Text: text, HasText: true}
}

func TestEnqueueNeverDropsAndKeepsOrder(t *testing.T) {
	msgr := &recordingMessenger{}
	b := newTestBot(msgr)

	// More messages than the queue buffer holds; every one must be handled,
	// in arrival order. Alternating commands make reordering visible.
	const rounds = 20
	for i := 0; i < rounds; i++ {
		if i%2 == 0 {
			b.enqueue(context.Background(), command(7, "/start"))
		} else {
			b.enqueue(context.Background(), command(7, "/help"))
		}
	}

	waitFor(t, func() bool { return len(msgr.snapshot()) == rounds })

	for i, text := range msgr.snapshot() {
		isGreeting := strings.Contains(text, "ATRI")
		if i%2 == 0 && !isGreeting {
			t.Errorf("message %d: expected the greeting, got %q", i, text)
		}
		if i%2 == 1 && isGreeting {
			t.Errorf("message %d: expected the help text, got %q", i, text)
		}
	}
}

func TestQueueEvictedWhenDrained(t *testing.T) {
	msgr := &recordingMessenger{}
	b := newTestBot(msgr)

	for chat := int64(1); chat <= 3; chat++ {
		b.enqueue(context.Background(), command(chat, "/start"))
	}

	waitFor(t, func() bool { return len(msgr.snapshot()) == 3 })
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.queues) == 0
	})
}

func TestQueueReusableAfterEviction(t *testing.T) {
	msgr := &recordingMessenger{}
	b := newTestBot(msgr)

	b.enqueue(context.Background(), command(7, "/start"))
	waitFor(t, func() bool { return len(msgr.snapshot()) == 1 })
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.queues) == 0
	})

	b.enqueue(context.Background(), command(7, "/start"))
	waitFor(t, func() bool { return len(msgr.snapshot()) == 2 })
}
