package guard

// Outcome is what the navigation framework does with a navigation.
type Outcome int

const (
	// Allow lets the navigation proceed to the requested path.
	Allow Outcome = iota
	// RedirectToLogin sends an anonymous client to the login route.
	RedirectToLogin
	// RedirectToDefault sends a signed-in client to the default route.
	RedirectToDefault
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToDefault:
		return "redirect_default"
	default:
		return "unknown"
	}
}

// Decision is the guard verdict for one navigation. Location is where the client ends up:
// the requested path on Allow, otherwise the redirect target.
type Decision struct {
	Outcome  Outcome
	Location string
	Match    Match
}
