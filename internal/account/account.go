// Package account holds the domain types for a delegated-credential tenant
// and its tracked spreadsheet tabs.
package account

import (
	"strconv"
	"strings"

	"github.com/sheetport/sheetport/internal/reshape"
)

// Account is one tenant: a delegated Google connection plus its registered
// sheets. It is persisted by the configuration store as one metadata table.
type Account struct {
	// ID is the slug derived from Name at creation; unique and immutable.
	ID string `json:"id"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	GoogleID    string `json:"googleId,omitempty"`
	GoogleName  string `json:"googleName,omitempty"`
	Email       string `json:"email,omitempty"`

	// Tokens are opaque bearer strings; encryption at rest happens at the
	// persistence boundary.
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`

	// External marks an account still waiting for a third party to complete
	// the OAuth handshake.
	External bool `json:"external,omitempty"`

	Sheets []*Sheet `json:"items"`
}

// Sheet describes one tracked spreadsheet tab. Identity within an account is
// (GoogleID, SheetID).
type Sheet struct {
	// FileID is a small sequential integer shared by all sheets of the same
	// source file within an account; it prefixes the destination table name.
	FileID int `json:"fileId"`

	GoogleID   string `json:"googleId"`
	Title      string `json:"title"`
	SheetID    string `json:"sheetId"`
	SheetTitle string `json:"sheetTitle"`

	Config *reshape.Config `json:"config,omitempty"`
}

// DeriveID computes the account id slug from a human name. It reuses the
// destination-table sanitizer so an account id can never collide with a
// table-name fragment sanitized from the same characters.
func DeriveID(name string) string {
	return strings.ToLower(reshape.SanitizeName(name))
}

// SetTokens replaces both credential values at once.
func (a *Account) SetTokens(access, refresh string) {
	a.AccessToken = access
	a.RefreshToken = refresh
}

// FindSheet returns the sheet with the given identity, or nil.
func (a *Account) FindSheet(googleID, sheetID string) *Sheet {
	for _, s := range a.Sheets {
		if s.GoogleID == googleID && s.SheetID == sheetID {
			return s
		}
	}
	return nil
}

// AddSheet registers sheet on the account, allocating its destination file
// id and default reshape config. bucketID is the account's destination "in"
// bucket; the table name becomes "<fileId>-<sanitized sheet title>".
//
// Re-adding an existing (GoogleID, SheetID) updates the titles in place and
// keeps the previously assigned reshape config, so a destination table is
// never silently reassigned.
func (a *Account) AddSheet(sheet *Sheet, bucketID string) {
	if existing := a.FindSheet(sheet.GoogleID, sheet.SheetID); existing != nil {
		existing.Title = sheet.Title
		existing.SheetTitle = sheet.SheetTitle
		if existing.Config == nil {
			existing.Config = defaultSheetConfig(existing.FileID, sheet.SheetTitle, bucketID)
		}
		return
	}

	sheet.FileID = a.nextFileID(sheet.GoogleID)
	sheet.Config = defaultSheetConfig(sheet.FileID, sheet.SheetTitle, bucketID)
	a.Sheets = append(a.Sheets, sheet)
}

// nextFileID reuses the file id of an already-registered source file, and
// otherwise allocates the next unused integer (0 for the first file).
func (a *Account) nextFileID(googleID string) int {
	next := 0
	seen := false
	for _, s := range a.Sheets {
		if s.GoogleID == googleID {
			return s.FileID
		}
		if !seen || s.FileID >= next {
			next = s.FileID + 1
		}
		seen = true
	}
	return next
}

// RemoveSheet drops the sheet matching (fileID, sheetID). Missing sheets are
// a no-op.
func (a *Account) RemoveSheet(fileID int, sheetID string) {
	kept := a.Sheets[:0]
	for _, s := range a.Sheets {
		if s.FileID == fileID && s.SheetID == sheetID {
			continue
		}
		kept = append(kept, s)
	}
	a.Sheets = kept
}

func defaultSheetConfig(fileID int, sheetTitle, bucketID string) *reshape.Config {
	tableName := strconv.Itoa(fileID) + "-" + reshape.SanitizeName(sheetTitle)
	return &reshape.Config{
		HeaderRows: 1,
		Table:      bucketID + "." + tableName,
	}
}
