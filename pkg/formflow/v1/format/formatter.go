package format

// Formatter maps validator-returned error tokens plus parameters to
// user-facing strings. Validators return stable tokens (e.g. "required" or
// "too_short"); presentation concerns such as localization live entirely
// behind this interface.
type Formatter interface {
	// Format renders the message for a token. Unknown tokens should be
	// returned verbatim (after parameter interpolation) rather than
	// producing an error, so an incomplete catalog degrades gracefully.
	Format(token string, params map[string]interface{}) string
}

// TokenError is the error type validators return when they want to carry
// parameters alongside the message token (e.g. token "too_short" with
// params {"min": 3}). Validators may also return any plain error, in which
// case its Error() string is treated as a parameterless token.
type TokenError struct {
	Token  string
	Params map[string]interface{}
}

// NewTokenError builds a TokenError.
func NewTokenError(token string, params map[string]interface{}) *TokenError {
	return &TokenError{Token: token, Params: params}
}

func (e *TokenError) Error() string { return e.Token }
