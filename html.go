/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
)

//go:embed assets/*
var assets embed.FS

const (
	nameCookieName = "namegame_name"
	maxNameLength  = 40
)

var pages = template.Must(template.New("").Parse(`
{{define "head"}}<!DOCTYPE html><html lang="en"><head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{.Favicon}}
<link rel="stylesheet" href="{{.Prefix}}/assets/lobby.css">
<title>{{.Title}}</title></head>{{end}}

{{define "name-form"}}<form method="post" action="{{.Prefix}}/name">
<input type="hidden" name="next" value="{{.Next}}">
<input type="text" name="name" value="{{.Name}}" maxlength="{{.MaxName}}" placeholder="Your name" required autofocus>
<button type="submit">Set name</button>
</form>{{end}}

{{define "home"}}{{template "head" .}}<body>
<h1>The Name Game</h1>
{{if .Name}}<p>Welcome, {{.Name}}!</p>
<p><a class="button" href="{{.Prefix}}/game">Create game</a></p>
<details><summary>Change name</summary>{{template "name-form" .}}</details>
{{else}}{{template "name-form" .}}{{end}}
</body></html>{{end}}

{{define "game"}}{{template "head" .}}<body id="game"
 data-session="{{.SessionID}}" data-name="{{.Name}}" data-ws="{{.Prefix}}/game/{{.SessionID}}/ws">
<h1>Welcome, {{.Name}}!</h1>
<p>Invite others with this link: <a id="invite" href="{{.Prefix}}/game/{{.SessionID}}">{{.Prefix}}/game/{{.SessionID}}</a></p>
<details><summary>QR code</summary><img src="{{.Prefix}}/game/{{.SessionID}}/qr" alt="QR code for this game" width="320" height="320"></details>
<p id="status">Connecting…</p>
<h3>Players</h3>
<ol id="players"></ol>
<h3>Prompts <span id="prompt-count"></span></h3>
<form id="add-prompt">
<input type="text" id="draft-prompt" placeholder="Enter the name of a thing">
<button type="submit">Add prompt</button>
</form>
<ol id="prompts"></ol>
<script src="{{.Prefix}}/assets/lobby.js"></script>
</body></html>{{end}}
`))

type pageData struct {
	Favicon   template.HTML
	Prefix    string
	Title     string
	Name      string
	Next      string
	MaxName   int
	SessionID string
}

func newPageData(cfg *Config, r *http.Request, title string) pageData {
	return pageData{
		Favicon: template.HTML(getFavicon(cfg)),
		Prefix:  cfg.prefix,
		Title:   title,
		Name:    savedName(r),
		Next:    r.URL.Path,
		MaxName: maxNameLength,
	}
}

func renderPage(cfg *Config, w http.ResponseWriter, name string, data pageData, errs chan<- error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)

	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		errs <- err
	}
}

// savedName returns the display name remembered for this browser, if any.
func savedName(r *http.Request) string {
	c, err := r.Cookie(nameCookieName)
	if err != nil {
		return ""
	}

	value, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}

	name, ok := normalizeName(value)
	if !ok {
		return ""
	}

	return name
}

func setSavedName(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     nameCookieName,
		Value:    url.QueryEscape(name),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func normalizeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", false
	}
	return name, true
}

// localRedirect keeps redirects on this site and under the configured prefix.
func localRedirect(cfg *Config, next string) string {
	if !strings.HasPrefix(next, cfg.prefix+"/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return cfg.prefix + "/"
	}

	return path.Clean(next)
}

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		renderPage(cfg, w, "home", newPageData(cfg, r, "The Name Game"), errs)
	}
}

func serveSetName(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		name, ok := normalizeName(r.PostFormValue("name"))
		if !ok {
			serveError(cfg, w, http.StatusBadRequest, "Names must be 1-"+strconv.Itoa(maxNameLength)+" characters long.")

			return
		}

		setSavedName(w, name)

		logf(cfg, "SERVE: Saved name %q for %s", name, realIP(r))

		http.Redirect(w, r, localRedirect(cfg, r.PostFormValue("next")), http.StatusSeeOther)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := "assets/" + path.Base(p.ByName("asset"))

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		switch strings.ToLower(filepath.Ext(fname)) {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		}

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /game/`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
