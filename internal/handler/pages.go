package handler

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; background: #121212; color: #f5f5f5; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
main { max-width: 28rem; padding: 2rem; text-align: center; }
h1 { color: {{if .OK}}#1db954{{else}}#e22134{{end}}; font-size: 1.5rem; }
p { color: #b3b3b3; line-height: 1.5; }
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</main>
</body>
</html>
`))

type pageData struct {
	OK      bool
	Title   string
	Message string
}

func renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultPage.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("failed to render result page")
	}
}
