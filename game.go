// The Name Game lobby
//
// Players pick a display name, open a shared game link, mark themselves
// ready and build a list of prompts together before play starts.
//
// Features:
// - One page per game ID: /game/:gameid, with its websocket at /game/:gameid/ws
// - Each websocket owns one live lobby.View of the session for the player
//   named by the namegame_name cookie
// - Players rejoin automatically if they are missing from the session
// - Players may only toggle their own readiness, and may kick anyone but themselves
// - Prompts are unique; adding an existing prompt does nothing
// - /game creates a new session and redirects to it
// - /game/:gameid/qr renders a QR code of the invite link, backed by go-qrcode

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/namegame/lobby"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	maxSessionID   = 64
)

// ClientMessage is sent by the browser.
type ClientMessage struct {
	Type   string `json:"type"`             // "toggle_ready", "add_prompt", "remove_prompt", "kick"
	Prompt string `json:"prompt,omitempty"` // add_prompt / remove_prompt
	Target string `json:"target,omitempty"` // kick
}

// PlayerState is one row of the player list.
type PlayerState struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	You   bool   `json:"you"`
}

// SessionStateMessage carries the whole session every time it changes.
type SessionStateMessage struct {
	Type       string        `json:"type"` // "session_state"
	SessionID  string        `json:"session_id"`
	You        string        `json:"you"`
	Players    []PlayerState `json:"players"`
	Prompts    []string      `json:"prompts"`
	MaxPrompts int           `json:"max_prompts"`
}

// NoticeMessage is sent to a single client, e.g. when a request is refused.
type NoticeMessage struct {
	Type    string `json:"type"` // "notice"
	Message string `json:"message"`
}

func newSessionState(rec lobby.Record, you string) SessionStateMessage {
	players := make([]PlayerState, 0, len(rec.Players))
	for _, p := range rec.Players {
		players = append(players, PlayerState{
			Name:  p,
			Ready: rec.IsReady(p),
			You:   p == you,
		})
	}

	return SessionStateMessage{
		Type:       "session_state",
		SessionID:  rec.SessionID,
		You:        you,
		Players:    players,
		Prompts:    rec.Prompts,
		MaxPrompts: lobby.MaxPromptCount,
	}
}

type Client struct {
	conn *websocket.Conn
	send chan any
	view *lobby.View
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionID {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}

// serveWS opens a live view for the named player and streams it over a websocket.
func serveWS(cfg *Config, client *lobby.Client) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("gameid")
		if !validSessionID(sessionID) {
			http.Error(w, "missing or invalid game id", http.StatusBadRequest)
			return
		}

		name := savedName(r)
		if name == "" {
			http.Error(w, "set a name before joining", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrade for %s failed: %v", realIP(r), err)
			return
		}

		// Opening the view joins the player, so only live sockets may do it.
		view, err := client.Open(r.Context(), sessionID, name)
		if err != nil {
			errorf("open %s for %q: %v", sessionID, name, err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unable to load game"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}
		defer view.Close()

		c := &Client{
			conn: conn,
			send: make(chan any, 8),
			view: view,
		}

		logf(cfg, "GAMES: %q connected to %s from %s", name, sessionID, realIP(r))

		go c.writePump()
		c.readPump(cfg, client)

		logf(cfg, "GAMES: %q disconnected from %s", name, sessionID)
	}
}

func (c *Client) readPump(cfg *Config, client *lobby.Client) {
	defer func() {
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.handle(cfg, client, msg)
	}
}

// handle applies the lobby's social rules, then forwards the intent to the
// session. The result arrives later as a session_state push.
func (c *Client) handle(cfg *Config, client *lobby.Client, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sessionID, name := c.view.SessionID(), c.view.Name()

	var err error

	switch msg.Type {
	case "toggle_ready":
		err = client.SetReady(ctx, sessionID, name, !c.view.Record().IsReady(name))

	case "kick":
		target := strings.TrimSpace(msg.Target)
		if target == "" {
			return
		}
		if target == name {
			c.notify("You cannot kick yourself.")
			return
		}
		err = client.Kick(ctx, sessionID, target)
		if err == nil {
			logf(cfg, "GAMES: %q kicked %q from %s", name, target, sessionID)
		}

	case "add_prompt":
		prompt := strings.TrimSpace(msg.Prompt)
		if prompt == "" {
			return
		}
		err = client.AddPrompt(ctx, sessionID, prompt)

	case "remove_prompt":
		if msg.Prompt == "" {
			return
		}
		err = client.RemovePrompt(ctx, sessionID, msg.Prompt)

	default:
		// ignore unknown types
		return
	}

	if err != nil {
		c.notify("Your change could not be saved. Please try again.")
	}
}

func (c *Client) notify(text string) {
	select {
	case c.send <- NoticeMessage{Type: "notice", Message: text}:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	updates := c.view.Updates()

	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := c.write(newSessionState(rec, c.view.Name())); err != nil {
				return
			}

		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return c.conn.WriteJSON(msg)
}

// qrHandler generates a PNG QR code for the game's invite URL.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validSessionID(ps.ByName("gameid")) {
			http.Error(w, "missing or invalid game id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// serveGamePage renders the lobby for the session named by the last path
// segment, or the name form if this browser has no name yet.
func serveGamePage(cfg *Config, path string, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sessionID, ok := lobby.SessionIDFromPath(strings.TrimPrefix(r.URL.Path, cfg.prefix+path))
		if !ok {
			http.Redirect(w, r, cfg.prefix+"/", http.StatusSeeOther)
			return
		}
		if !validSessionID(sessionID) {
			serveError(cfg, w, http.StatusNotFound, "That game does not exist.")
			return
		}

		data := newPageData(cfg, r, "The Name Game")
		if data.Name == "" {
			renderPage(cfg, w, "home", data, errs)
			return
		}

		data.SessionID = sessionID
		renderPage(cfg, w, "game", data, errs)
	}
}

// redirectNewGame handles GET /path by allocating a new session and
// redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, client *lobby.Client) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sessionID, err := client.CreateSession(r.Context())
		if err != nil {
			errorf("create session: %v", err)
			serveError(cfg, w, http.StatusServiceUnavailable, "Unable to create a game right now. Please try again.")
			return
		}

		logf(cfg, "GAMES: Created game %s%s/%s for %s", cfg.prefix, path, sessionID, realIP(r))
		http.Redirect(w, r, cfg.prefix+path+"/"+sessionID, http.StatusSeeOther)
	}
}

// registerNameGame sets up routes so that:
//   - $path                  → creates a new session and redirects to it
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → websocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerNameGame(cfg *Config, path string, client *lobby.Client, mux *httprouter.Router) {
	errs := make(chan error, 1)
	go func() {
		for err := range errs {
			logf(cfg, "ERROR: %v", err)
		}
	}()

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, client))

	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, path, errs))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWS(cfg, client))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg))
}
