package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

// ErrorPage renders a minimal standalone error document.
func ErrorPage(code int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := fmt.Sprintf("%d %s", code, http.StatusText(code))
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`+
			templ.EscapeString(title)+`</title><style>`+errorCSS+`</style></head><body><main><h1>`+
			templ.EscapeString(title)+`</h1><p>`+templ.EscapeString(message)+`</p>`); err != nil {
			return err
		}
		if id := RequestID(ctx); id != "" {
			if _, err := io.WriteString(w, `<p class="ref">Reference: <code>`+templ.EscapeString(id)+`</code></p>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

const errorCSS = `body{font-family:system-ui,sans-serif;background:#14110f;color:#e8e2d6;display:flex;min-height:100vh;align-items:center;justify-content:center;margin:0}` +
	`main{max-width:32rem;padding:2rem;text-align:center}h1{font-size:1.75rem}.ref{opacity:.6;font-size:.875rem}`
