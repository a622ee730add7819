// Package dialogue implements the per-chat login conversation: the state
// machine, the command router and the stores that persist chat state.
package dialogue

// Stage names the position of a chat in the login conversation.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageAwaitUsername Stage = "await_username"
	StageAwaitPassword Stage = "await_password"
	StageAwaitCaptcha  Stage = "await_captcha"
	StageAwait2FA      Stage = "await_2fa"
)

// State is the tagged per-chat dialogue state. Each stage carries exactly
// the fields it needs; the constructors below zero everything else so no
// credential outlives the stage that consumes it.
type State struct {
	Stage Stage `json:"stage"`

	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	CSRFToken string `json:"csrf_token,omitempty"`
}

// Idle is the initial state: awaiting a command.
func Idle() State {
	return State{Stage: StageIdle}
}

// AwaitUsername expects the next message to be the Luogu username.
func AwaitUsername() State {
	return State{Stage: StageAwaitUsername}
}

// AwaitPassword expects the next message to be the password.
func AwaitPassword(username string) State {
	return State{Stage: StageAwaitPassword, Username: username}
}

// AwaitCaptcha expects the next message to be the captcha solution.
func AwaitCaptcha(username, password, clientID, csrfToken string) State {
	return State{
		Stage:     StageAwaitCaptcha,
		Username:  username,
		Password:  password,
		ClientID:  clientID,
		CSRFToken: csrfToken,
	}
}

// Await2FA expects the next message to be the two-factor token.
func Await2FA(username string) State {
	return State{Stage: StageAwait2FA, Username: username}
}

// IsIdle reports whether the chat is awaiting a command. The zero State
// counts as idle so an absent store entry reads correctly.
func (s State) IsIdle() bool {
	return s.Stage == StageIdle || s.Stage == ""
}
