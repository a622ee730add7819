package luogu

// CaptchaBootstrap is the token pair scraped from a single GET of the login
// landing page. Both values must come from the same response; a second GET
// would rotate them.
type CaptchaBootstrap struct {
	ClientID  string
	CSRFToken string
}

// LoginForm carries everything the submit endpoint needs.
type LoginForm struct {
	Username  string
	Password  string
	Captcha   string
	ClientID  string
	CSRFToken string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Captcha  string `json:"captcha"`
}

// LoginSuccess is the accepted-credentials response. Locked means the
// account still requires a second factor before a session is established.
type LoginSuccess struct {
	Username   string `json:"username"`
	SyncToken  string `json:"syncToken"`
	Locked     bool   `json:"locked"`
	RedirectTo string `json:"redirectTo"`
}

// LoginFailure is the rejected-credentials response.
type LoginFailure struct {
	Status       int      `json:"status"`
	Data         any      `json:"data"`
	ErrorMessage string   `json:"errorMessage"`
	Trace        string   `json:"trace"`
	CustomData   []string `json:"customData"`
}

// LoginResult is the decoded submit response; exactly one field is set.
type LoginResult struct {
	Success *LoginSuccess
	Failure *LoginFailure
}
