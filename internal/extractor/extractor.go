// Package extractor walks the configured accounts and sheets, downloads
// each sheet's CSV export and hands it to the lander.
//
// The failure-isolation policy is deliberately asymmetric: metadata and
// download failures abort the entire multi-account run, and only an empty
// export payload is absorbed as a per-sheet status entry. Callers that need
// partial-run resilience must invoke Run per account or per sheet.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sheetport/sheetport/internal/account"
	"github.com/sheetport/sheetport/internal/configstore"
	"github.com/sheetport/sheetport/internal/drive"
	"github.com/sheetport/sheetport/internal/errs"
	"github.com/sheetport/sheetport/internal/lander"
	"github.com/sheetport/sheetport/internal/util"
)

// Options narrows a run to one account, and optionally to one sheet.
type Options struct {
	// Account selects a single account id. Config is its legacy alias and is
	// honored when Account is empty.
	Account string `json:"account,omitempty"`
	Config  string `json:"config,omitempty"`

	// GoogleID and SheetID select one sheet; both must be set together with
	// an account selector.
	GoogleID string `json:"googleId,omitempty"`
	SheetID  string `json:"sheetId,omitempty"`
}

// Result is the outcome of a completed run. Sheets only carries entries for
// sheets that were skipped as empty; successful sheets are not enumerated.
type Result struct {
	Status string                       `json:"status"`
	Sheets map[string]map[string]string `json:"sheets"`
}

// Extractor orchestrates one extraction pass.
type Extractor struct {
	store  *configstore.Store
	api    drive.API
	lander *lander.Lander
}

// New wires an Extractor from its collaborators.
func New(store *configstore.Store, api drive.API, l *lander.Lander) *Extractor {
	return &Extractor{store: store, api: api, lander: l}
}

// Run executes one extraction pass over the selected accounts and sheets.
func (e *Extractor) Run(ctx context.Context, opts Options) (*Result, error) {
	accountID := opts.Account
	if accountID == "" {
		accountID = opts.Config
	}
	if opts.SheetID != "" {
		if opts.GoogleID == "" {
			return nil, errs.MissingParameter("googleId")
		}
		if accountID == "" {
			return nil, errs.MissingParameter("account")
		}
	}

	accounts, err := e.store.ListAccounts(true)
	if err != nil {
		return nil, err
	}
	if accountID != "" {
		selected := findAccount(accounts, accountID)
		if selected == nil {
			return nil, errs.Configuration("account %q does not exist", accountID)
		}
		accounts = []*account.Account{selected}
	}

	status := map[string]map[string]string{}
	for _, acc := range accounts {
		e.api.SetCredentials(acc.AccessToken, acc.RefreshToken)

		// Rebound per account so a rotation never lands on stale state; the
		// save must complete before the next API call reuses the token.
		acc := acc
		e.api.OnTokenRefresh(func(access, refresh string) error {
			acc.SetTokens(access, refresh)
			return e.store.SaveAccount(acc)
		})

		sheets := acc.Sheets
		if opts.SheetID != "" {
			sheet := acc.FindSheet(opts.GoogleID, opts.SheetID)
			if sheet == nil {
				return nil, errs.Configuration("sheet %s-%s not found on account %q",
					opts.GoogleID, opts.SheetID, acc.ID)
			}
			sheets = []*account.Sheet{sheet}
		}

		for _, sheet := range sheets {
			log.Printf("importing sheet %q (account %s)", sheet.SheetTitle, acc.ID)

			empty, err := e.extractSheet(ctx, acc, sheet)
			if err != nil {
				return nil, err
			}
			if empty {
				if status[acc.ID] == nil {
					status[acc.ID] = map[string]string{}
				}
				status[acc.ID][sheet.SheetTitle] = "file is empty"
			}
		}
	}

	return &Result{Status: "ok", Sheets: status}, nil
}

// extractSheet processes a single sheet. It returns (true, nil) for the
// soft empty-payload condition; every error it returns is run-fatal.
func (e *Extractor) extractSheet(ctx context.Context, acc *account.Account, sheet *account.Sheet) (bool, error) {
	meta, err := e.api.GetFile(ctx, sheet.GoogleID)
	if err != nil {
		return false, classifyDriveError(err, acc, sheet, "fetching metadata")
	}

	if len(meta.ExportLinks) == 0 {
		return false, errs.Application("export links missing in file resource for %s", sheet.GoogleID)
	}
	url, err := drive.ExportURL(meta, sheet.SheetID)
	if err != nil {
		return false, errs.Application("resolving export link for %s: %v", sheet.GoogleID, err)
	}

	data, err := e.api.Export(ctx, url)
	if err != nil {
		return false, classifyDriveError(err, acc, sheet, "downloading export")
	}
	if len(data) == 0 {
		return true, nil
	}

	return false, e.lander.Land(data, sheet)
}

// classifyDriveError maps drive client failures onto the error taxonomy:
// not-found and 4xx become user errors carrying account/sheet identity and a
// bounded response excerpt, 5xx become application errors.
func classifyDriveError(err error, acc *account.Account, sheet *account.Sheet, op string) error {
	sheetID := sheet.GoogleID + "-" + sheet.SheetID

	var nf *drive.NotFoundError
	if errors.As(err, &nf) {
		return &errs.UserError{
			Msg:       "File not found.",
			Cause:     err,
			AccountID: acc.ID,
			Sheet:     sheetID,
		}
	}

	var re *drive.RequestError
	if errors.As(err, &re) {
		if re.IsClientError() {
			return &errs.UserError{
				Msg:       fmt.Sprintf("error importing sheet %s: %s", sheetID, util.Excerpt(re.Body)),
				Cause:     err,
				AccountID: acc.ID,
				Sheet:     sheetID,
				Response:  util.Excerpt(re.Body),
			}
		}
		return &errs.ApplicationError{
			Msg:   fmt.Sprintf("%s for sheet %s: %s", op, sheetID, util.Excerpt(re.Body)),
			Cause: err,
		}
	}

	// Transport or refresh-persistence failure.
	return fmt.Errorf("%s for sheet %s: %w", op, sheetID, err)
}

func findAccount(accounts []*account.Account, id string) *account.Account {
	for _, acc := range accounts {
		if acc.ID == id {
			return acc
		}
	}
	return nil
}
