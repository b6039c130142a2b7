package internal

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"inshokuten-api/web"
)

type indexData struct {
	Title      string
	APIBaseURL string
	Table      string
}

func loadIndexTemplate() (*template.Template, error) {
	tmpl, err := template.ParseFS(web.TemplatesFS(), "index.html")
	if err != nil {
		return nil, fmt.Errorf("parsing index template: %w", err)
	}
	return tmpl, nil
}

// mountUI serves the browser client at / and its assets under /static/.
func (s *Server) mountUI(r chi.Router, tmpl *template.Template) {
	data := indexData{
		Title:      s.cfg.TableName,
		APIBaseURL: s.cfg.APIBaseURL,
		Table:      s.cfg.TableName,
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("rendering index")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.StaticFS()))))
}
