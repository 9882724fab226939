package probe

import (
	"io"
	"strings"
)

const (
	// Greeting is returned in every Success.
	Greeting = "Hello, world! skrypt php."

	lineBreak     = "<br>"
	userPrefix    = "Użytkowniku: <br>"
	FailurePrefix = "Błąd: "
)

// Render writes r as the HTML fragment served to users:
//
//	Hello, world! skrypt php.<br>Użytkowniku: <br>alice
//	Błąd: <driver message>
//
// Values are written as-is, without HTML escaping.
func Render(w io.Writer, r Result) error {
	_, err := io.WriteString(w, RenderString(r))
	return err
}

func RenderString(r Result) string {
	var b strings.Builder
	switch v := r.(type) {
	case Success:
		b.WriteString(v.Greeting)
		b.WriteString(lineBreak)
		b.WriteString(userPrefix)
		b.WriteString(v.User)
	case Failure:
		b.WriteString(FailurePrefix)
		b.WriteString(v.Message)
	default:
		// Only a nil Result gets here.
		b.WriteString(FailurePrefix)
		b.WriteString("no result")
	}
	return b.String()
}
