// Package api exposes the extractor's account/sheet CRUD and run surface
// over HTTP. It is a thin JSON shell: all behavior lives in the
// configstore and extractor packages.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sheetport/sheetport/internal/account"
	"github.com/sheetport/sheetport/internal/configstore"
	"github.com/sheetport/sheetport/internal/errs"
	"github.com/sheetport/sheetport/internal/extractor"
	"github.com/sheetport/sheetport/internal/logging"
)

// Server holds the handler dependencies.
type Server struct {
	store *configstore.Store
	ext   *extractor.Extractor
}

// NewServer wires the API against its collaborators.
func NewServer(store *configstore.Store, ext *extractor.Extractor) *Server {
	return &Server{store: store, ext: ext}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Post("/run", s.handleRun)

	r.Get("/configs", s.handleListConfigs)
	r.Post("/configs", s.handleCreateConfig)
	r.Delete("/configs/{id}", s.handleDeleteConfig)

	r.Get("/accounts", s.handleListAccounts)
	r.Get("/accounts/{id}", s.handleGetAccount)
	r.Post("/accounts/{id}/sheets", s.handlePostSheets)
	r.Delete("/accounts/{id}/sheets/{fileId}/{sheetId}", s.handleDeleteSheet)

	r.Post("/external-auth-link", s.handleExternalAuthLink)

	return r
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var opts extractor.Options
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	res, err := s.ext.Run(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// configView is the reduced account shape listed on /configs.
type configView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]configView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, configView{ID: acc.ID, Name: acc.Name, Description: acc.Description})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var params configstore.AccountParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	acc, err := s.store.AddAccount(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, configView{ID: acc.ID, Name: acc.Name, Description: acc.Description})
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveAccount(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accountView carries account attributes and sheets but never credentials.
type accountView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	GoogleID    string           `json:"googleId"`
	GoogleName  string           `json:"googleName"`
	Email       string           `json:"email"`
	External    bool             `json:"external"`
	Items       []*account.Sheet `json:"items"`
}

func viewOf(acc *account.Account) accountView {
	items := acc.Sheets
	if items == nil {
		items = []*account.Sheet{}
	}
	return accountView{
		ID:          acc.ID,
		Name:        acc.Name,
		Description: acc.Description,
		GoogleID:    acc.GoogleID,
		GoogleName:  acc.GoogleName,
		Email:       acc.Email,
		External:    acc.External,
		Items:       items,
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, viewOf(acc))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	acc, err := s.store.GetAccount(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if acc == nil {
		http.Error(w, "account "+id+" not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(acc))
}

type sheetParams struct {
	GoogleID   string `json:"googleId"`
	Title      string `json:"title"`
	SheetID    string `json:"sheetId"`
	SheetTitle string `json:"sheetTitle"`
}

func (s *Server) handlePostSheets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Data []sheetParams `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Data == nil {
		writeError(w, r, errs.MissingParameter("data"))
		return
	}

	acc, err := s.store.GetAccount(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if acc == nil {
		writeError(w, r, errs.Configuration("account %q does not exist", id))
		return
	}

	for _, p := range body.Data {
		if err := checkSheetParams(p); err != nil {
			writeError(w, r, err)
			return
		}
		acc.AddSheet(&account.Sheet{
			GoogleID:   p.GoogleID,
			Title:      p.Title,
			SheetID:    p.SheetID,
			SheetTitle: p.SheetTitle,
		}, s.store.InBucketID(acc.ID))
	}
	if err := s.store.SaveAccount(acc); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func checkSheetParams(p sheetParams) error {
	switch {
	case p.GoogleID == "":
		return errs.MissingParameter("googleId")
	case p.Title == "":
		return errs.MissingParameter("title")
	case p.SheetID == "":
		return errs.MissingParameter("sheetId")
	case p.SheetTitle == "":
		return errs.MissingParameter("sheetTitle")
	}
	return nil
}

func (s *Server) handleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	fileID, err := strconv.Atoi(chi.URLParam(r, "fileId"))
	if err != nil {
		writeError(w, r, errs.MissingParameter("fileId"))
		return
	}

	err = s.store.RemoveSheet(chi.URLParam(r, "id"), fileID, chi.URLParam(r, "sheetId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExternalAuthLink marks an account as awaiting third-party OAuth and
// mints a scoped, short-lived token the third party can use to store the
// result without holding the primary credential.
func (s *Server) handleExternalAuthLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Account  string `json:"account"`
		Referrer string `json:"referrer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Account == "" {
		writeError(w, r, errs.MissingParameter("account"))
		return
	}
	if body.Referrer == "" {
		writeError(w, r, errs.MissingParameter("referrer"))
		return
	}

	acc, err := s.store.GetAccount(body.Account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if acc == nil {
		writeError(w, r, errs.Configuration("account %q does not exist", body.Account))
		return
	}

	acc.External = true
	if err := s.store.SaveAccount(acc); err != nil {
		writeError(w, r, err)
		return
	}

	tok, err := s.store.CreateAccessToken()
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := url.Values{}
	q.Set("token", tok.Token)
	q.Set("account", acc.ID)
	link := body.Referrer + "?" + q.Encode()
	writeJSON(w, http.StatusOK, map[string]string{"link": link})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: anything the
// caller can fix is a 400, broken invariants and storage failures are 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsParameter(err), errs.IsConfiguration(err), errs.IsUser(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Printf("[%s] internal error: %v", logging.GetRequestID(r.Context()), err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
