// Package credentials abstracts where the bearer token used by the realtime
// layer comes from. The channel only ever sees the current token; storage
// and rotation live behind the Source interface.
package credentials

// Source supplies the current bearer credential. An empty string means no
// credential is available and the channel must stay (or go) disconnected.
type Source interface {
	Token() string
}

// Static is a fixed token, typically from an environment variable.
type Static string

// Token implements Source.
func (s Static) Token() string {
	return string(s)
}
