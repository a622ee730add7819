package dialogue

import (
	"context"
	"fmt"
	"sync"

	"atri-telebot/internal/luogu"
)

// Messenger delivers outgoing messages to a chat. Implementations may
// deliver duplicates; the machine tolerates that.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendImage(ctx context.Context, chatID int64, image []byte) error
}

// LoginClient is the slice of the Luogu client the machine drives.
// *luogu.Client satisfies it; tests substitute stubs.
type LoginClient interface {
	FetchTokens(ctx context.Context) (luogu.CaptchaBootstrap, error)
	FetchCaptcha(ctx context.Context, clientID string) ([]byte, error)
	SubmitLogin(ctx context.Context, form luogu.LoginForm) (*luogu.LoginResult, error)
}

// Message is one incoming chat message. HasText is false for photos,
// stickers and other non-text content.
type Message struct {
	ChatID  int64
	Text    string
	HasText bool
}

const (
	msgGreeting = "ATRI here, a high-performance bot!\n\nSend /help to see what I can do."

	msgPromptUsername = "Tell me your Luogu username."
	msgPromptPassword = "Now tell me your Luogu account password."
	msgPromptCaptcha  = "Type the characters you see in the image."
	msgPrompt2FA      = "This account is protected by two-factor authentication.\nSend me the code from your authenticator."

	msgLoginOK     = "Login succeeded! Your Luogu account is now linked."
	msgLoginBroken = "Something went wrong while logging in. Please try again with /login."
	msg2FANotReady = "Sorry, submitting two-factor codes is not supported yet, so I could not finish the login. Please try again later with /login."
)

// Machine runs the login conversation for every chat. Messages of one chat
// are handled strictly one at a time; distinct chats proceed in parallel.
type Machine struct {
	store     Store
	messenger Messenger
	client    LoginClient

	mu    sync.Mutex
	locks map[int64]*chatLock
}

// chatLock serialises the messages of one chat. refs counts the holders
// and waiters so the map entry can be evicted once nobody needs it.
type chatLock struct {
	mu   sync.Mutex
	refs int
}

// NewMachine wires a Machine to its collaborators.
func NewMachine(store Store, messenger Messenger, client LoginClient) *Machine {
	return &Machine{
		store:     store,
		messenger: messenger,
		client:    client,
		locks:     make(map[int64]*chatLock),
	}
}

func (m *Machine) acquireChat(chatID int64) *chatLock {
	m.mu.Lock()
	l, ok := m.locks[chatID]
	if !ok {
		l = &chatLock{}
		m.locks[chatID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return l
}

func (m *Machine) releaseChat(chatID int64, l *chatLock) {
	l.mu.Unlock()

	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, chatID)
	}
	m.mu.Unlock()
}

// HandleMessage advances the dialogue of msg.ChatID by one step. The store
// is only written after the decisive outgoing message was sent, so a failed
// send never advertises a state the user did not see.
func (m *Machine) HandleMessage(ctx context.Context, msg Message) error {
	lock := m.acquireChat(msg.ChatID)
	defer m.releaseChat(msg.ChatID, lock)

	state, err := m.store.Get(ctx, msg.ChatID)
	if err != nil {
		return fmt.Errorf("load dialogue state: %w", err)
	}

	switch state.Stage {
	case StageAwaitUsername:
		return m.handleUsername(ctx, msg)
	case StageAwaitPassword:
		return m.handlePassword(ctx, msg, state)
	case StageAwaitCaptcha:
		return m.handleCaptcha(ctx, msg, state)
	case StageAwait2FA:
		return m.handle2FA(ctx, msg)
	default:
		return m.handleIdle(ctx, msg)
	}
}

// handleIdle routes commands. Anything that is not a recognised command is
// dropped without a reply.
func (m *Machine) handleIdle(ctx context.Context, msg Message) error {
	if !msg.HasText {
		return nil
	}
	name, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}

	switch name {
	case "start":
		return m.messenger.SendText(ctx, msg.ChatID, msgGreeting)
	case "help":
		return m.messenger.SendText(ctx, msg.ChatID, helpText())
	case "login":
		if err := m.messenger.SendText(ctx, msg.ChatID, msgPromptUsername); err != nil {
			return err
		}
		return m.store.Put(ctx, msg.ChatID, AwaitUsername())
	}
	return nil
}

func (m *Machine) handleUsername(ctx context.Context, msg Message) error {
	if !msg.HasText || msg.Text == "" {
		return m.messenger.SendText(ctx, msg.ChatID, msgPromptUsername)
	}
	if err := m.messenger.SendText(ctx, msg.ChatID, msgPromptPassword); err != nil {
		return err
	}
	return m.store.Put(ctx, msg.ChatID, AwaitPassword(msg.Text))
}

// handlePassword performs the captcha bootstrap: one GET for both tokens,
// then the image download, then the captcha prompt.
func (m *Machine) handlePassword(ctx context.Context, msg Message, state State) error {
	if !msg.HasText || msg.Text == "" {
		return m.messenger.SendText(ctx, msg.ChatID, msgPromptPassword)
	}
	password := msg.Text

	boot, err := m.client.FetchTokens(ctx)
	if err != nil {
		return m.finish(ctx, msg.ChatID, fmt.Sprintf("There was a problem reaching Luogu: %v", err))
	}
	img, err := m.client.FetchCaptcha(ctx, boot.ClientID)
	if err != nil {
		return m.finish(ctx, msg.ChatID, fmt.Sprintf("There was a problem reaching Luogu: %v", err))
	}

	if err := m.messenger.SendImage(ctx, msg.ChatID, img); err != nil {
		return err
	}
	if err := m.messenger.SendText(ctx, msg.ChatID, msgPromptCaptcha); err != nil {
		return err
	}
	return m.store.Put(ctx, msg.ChatID,
		AwaitCaptcha(state.Username, password, boot.ClientID, boot.CSRFToken))
}

func (m *Machine) handleCaptcha(ctx context.Context, msg Message, state State) error {
	if !msg.HasText || msg.Text == "" {
		return m.messenger.SendText(ctx, msg.ChatID, msgPromptCaptcha)
	}

	result, err := m.client.SubmitLogin(ctx, luogu.LoginForm{
		Username:  state.Username,
		Password:  state.Password,
		Captcha:   msg.Text,
		ClientID:  state.ClientID,
		CSRFToken: state.CSRFToken,
	})
	if err != nil {
		return m.finish(ctx, msg.ChatID, msgLoginBroken)
	}

	switch {
	case result.Success != nil && result.Success.Locked:
		if err := m.messenger.SendText(ctx, msg.ChatID, msgPrompt2FA); err != nil {
			return err
		}
		return m.store.Put(ctx, msg.ChatID, Await2FA(state.Username))
	case result.Success != nil:
		return m.finish(ctx, msg.ChatID, msgLoginOK)
	default:
		return m.finish(ctx, msg.ChatID,
			fmt.Sprintf("Login failed (%d): %s", result.Failure.Status, result.Failure.ErrorMessage))
	}
}

// handle2FA acknowledges the code and resets. The second-factor submit
// endpoint is not wired up yet; leaving the chat parked here forever would
// strand the user instead.
func (m *Machine) handle2FA(ctx context.Context, msg Message) error {
	return m.finish(ctx, msg.ChatID, msg2FANotReady)
}

// finish sends the terminal message for this login attempt and resets the
// chat to idle.
func (m *Machine) finish(ctx context.Context, chatID int64, text string) error {
	if err := m.messenger.SendText(ctx, chatID, text); err != nil {
		return err
	}
	return m.store.Put(ctx, chatID, Idle())
}
