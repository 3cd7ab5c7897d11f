// CLAUDE:SUMMARY Presentation layer: embedded html/template pages for play, result and dashboard plus the static script
package api

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/hazyhaar/linkquest/internal/db"
)

//go:embed web/templates
var templatesFS embed.FS

//go:embed web/static
var staticFS embed.FS

var pageNames = []string{"play.html", "result.html", "dashboard.html"}

var funcMap = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	"score": func(p *int) string {
		if p == nil {
			return "pending"
		}
		return strconv.Itoa(*p)
	},
	"add": func(a, b int) int { return a + b },
}

// parsePages builds one template per page by combining layout.html with it.
func parsePages() (map[string]*template.Template, error) {
	tmplFS, err := fs.Sub(templatesFS, "web/templates")
	if err != nil {
		return nil, fmt.Errorf("getting templates subfs: %w", err)
	}
	layout, err := fs.ReadFile(tmplFS, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		body, err := fs.ReadFile(tmplFS, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		tmpl, err := template.New("layout.html").Funcs(funcMap).Parse(string(layout))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", name, err)
		}
		if _, err := tmpl.New(name).Parse(string(body)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// pageSet is parsed once from the embedded templates, so a parse error is a
// build defect.
var pageSet = mustParsePages()

func mustParsePages() map[string]*template.Template {
	p, err := parsePages()
	if err != nil {
		panic(err)
	}
	return p
}

// RegisterPageRoutes mounts the HTML pages and their static assets.
func (a *API) RegisterPageRoutes(mux *http.ServeMux) {
	static, _ := fs.Sub(staticFS, "web/static")
	mux.Handle("GET /static/", NoCache(http.StripPrefix("/static/", http.FileServerFS(static))))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/play", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /play", a.handlePlayPage)
	mux.HandleFunc("GET /play/result/{matchId}", a.handleResultPage)
	mux.HandleFunc("GET /dashboard", a.handleDashboardPage)
}

type pageData struct {
	Title    string
	UserID   string
	Username string
	Error    string

	Prompt   *db.Prompt
	Done     bool
	Message  string
	Result   *matchResult
	Total    int
	History  []db.HistoryEntry
	Board    []db.LeaderboardEntry
	SignedIn bool
}

func (a *API) newPageData(r *http.Request, title string) pageData {
	d := pageData{Title: title}
	if c := a.auth.ExtractClaims(r); c != nil {
		d.SignedIn = true
		d.UserID = c.UserID()
		d.Username = c.Username
	}
	return d
}

func (a *API) handlePlayPage(w http.ResponseWriter, r *http.Request) {
	d := a.newPageData(r, "Play")
	claims, err := a.caller(r)
	if err != nil {
		a.renderError(w, r, "record user", err)
		return
	}

	var p *db.Prompt
	if claims == nil {
		p, err = a.db.LowestLevelPrompt()
	} else {
		p, err = a.db.NextPromptForUser(claims.UserID())
	}
	switch {
	case errors.Is(err, sql.ErrNoRows) && claims != nil:
		d.Done = true
		d.Message = doneMessage
	case errors.Is(err, sql.ErrNoRows):
		d.Error = "No challenges are available yet."
	case err != nil:
		a.renderError(w, r, "select prompt", err)
		return
	default:
		d.Prompt = p
	}
	a.renderPage(w, "play.html", d)
}

func (a *API) handleResultPage(w http.ResponseWriter, r *http.Request) {
	d := a.newPageData(r, "Results")
	result, err := a.loadMatchResult(r.PathValue("matchId"))
	if errors.Is(err, sql.ErrNoRows) {
		w.WriteHeader(http.StatusNotFound)
		d.Error = "Match not found."
		a.renderPage(w, "result.html", d)
		return
	}
	if err != nil {
		a.renderError(w, r, "load match", err)
		return
	}
	d.Result = result
	if result.Match.ScoreAI != nil {
		d.Total = *result.Match.ScoreAI
	}
	if board, err := a.db.Leaderboard(result.Match.ID, 10); err == nil {
		d.Board = board
	}
	a.renderPage(w, "result.html", d)
}

func (a *API) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	d := a.newPageData(r, "Dashboard")
	claims := a.auth.ExtractClaims(r)
	if claims != nil {
		history, err := a.db.ListUserMatches(claims.UserID())
		if err != nil {
			a.renderError(w, r, "list matches", err)
			return
		}
		d.History = history
	}
	board, err := a.db.Leaderboard("", 10)
	if err != nil {
		a.renderError(w, r, "leaderboard", err)
		return
	}
	d.Board = board
	a.renderPage(w, "dashboard.html", d)
}

func (a *API) renderPage(w http.ResponseWriter, name string, data pageData) {
	tmpl, ok := pageSet[name]
	if !ok {
		a.logger.Error("template not found", "name", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		a.logger.Error("render page", "name", name, "error", err)
	}
}

func (a *API) renderError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.Error(msg, "path", r.URL.Path, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
