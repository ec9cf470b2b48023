// Package configstore persists the extractor's account and sheet
// configuration inside the destination store: one metadata table per account
// under the component's sys bucket. The row/attribute serialization lives
// entirely in this package; the rest of the system only sees account.Account
// values.
package configstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sheetport/sheetport/internal/account"
	"github.com/sheetport/sheetport/internal/errs"
	"github.com/sheetport/sheetport/internal/reshape"
	"github.com/sheetport/sheetport/internal/storage"
)

const (
	accountTablePrefix = "account-"

	// TokenTTL bounds scoped tokens handed to third parties for completing
	// the OAuth handshake.
	TokenTTL = 48 * time.Hour
)

// sheetColumns is the fixed column set of every account metadata table.
var sheetColumns = []string{"fileId", "googleId", "title", "sheetId", "sheetTitle", "config"}

// Field is the closed set of account lookup fields.
type Field int

const (
	FieldAccountID Field = iota
	FieldAccountName
	FieldGoogleID
)

// Cipher encrypts credential attributes at rest. The real implementation is
// deployment-specific; Passthrough stores them verbatim.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(stored string) (string, error)
}

// Passthrough is the no-op Cipher.
type Passthrough struct{}

func (Passthrough) Encrypt(s string) (string, error) { return s, nil }
func (Passthrough) Decrypt(s string) (string, error) { return s, nil }

// Store maps accountId -> Account over a destination store client.
type Store struct {
	client    storage.Client
	component string
	cipher    Cipher
}

// New builds a Store for the given component name (e.g. "ex-google-drive").
// A nil cipher means tokens are stored verbatim.
func New(client storage.Client, component string, cipher Cipher) *Store {
	if cipher == nil {
		cipher = Passthrough{}
	}
	return &Store{client: client, component: component, cipher: cipher}
}

// Exists reports whether the component's sys bucket is present.
func (s *Store) Exists() (bool, error) {
	_, err := s.sysBucketID()
	if err != nil {
		if errs.IsConfiguration(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create bootstraps the component's sys bucket.
func (s *Store) Create() error {
	_, err := s.client.CreateBucket(s.component, "sys", "Google Drive extractor configuration")
	return err
}

// sysBucketID resolves the metadata bucket, accepting the legacy un-prefixed
// form for stores created before the "c-" convention.
func (s *Store) sysBucketID() (string, error) {
	for _, id := range []string{"sys.c-" + s.component, "sys." + s.component} {
		exists, err := s.client.BucketExists(id)
		if err != nil {
			return "", &errs.ConfigurationError{Msg: "sys bucket check failed", Cause: err}
		}
		if exists {
			return id, nil
		}
	}
	return "", errs.Configuration("sys bucket does not exist")
}

// InBucketID returns the destination bucket id for an account's landed
// tables.
func (s *Store) InBucketID(accountID string) string {
	return "in.c-" + s.component + "-" + accountID
}

func (s *Store) accountTableID(sysBucket, accountID string) string {
	return sysBucket + "." + accountTablePrefix + accountID
}

// ListAccounts returns every persisted account in stable (lexical) order.
// With expand=false only the account ids are populated; with expand=true the
// attributes and sheet rows are fully materialized.
func (s *Store) ListAccounts(expand bool) ([]*account.Account, error) {
	sysBucket, err := s.sysBucketID()
	if err != nil {
		return nil, err
	}
	tables, err := s.client.ListTables(sysBucket)
	if err != nil {
		return nil, err
	}

	var accounts []*account.Account
	for _, tableID := range tables {
		name := tableID[strings.LastIndex(tableID, ".")+1:]
		if !strings.HasPrefix(name, accountTablePrefix) {
			continue
		}
		id := strings.TrimPrefix(name, accountTablePrefix)
		if !expand {
			accounts = append(accounts, &account.Account{ID: id})
			continue
		}
		acc, err := s.loadAccount(tableID, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// FindAccountBy scans the persisted accounts for the first one whose field
// matches value. Returns nil when no account matches.
func (s *Store) FindAccountBy(field Field, value string) (*account.Account, error) {
	accounts, err := s.ListAccounts(true)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		var got string
		switch field {
		case FieldAccountID:
			got = acc.ID
		case FieldAccountName:
			got = acc.Name
		case FieldGoogleID:
			got = acc.GoogleID
		default:
			return nil, fmt.Errorf("unknown lookup field %d", field)
		}
		if got == value {
			return acc, nil
		}
	}
	return nil, nil
}

// GetAccount returns the account with the given id, or nil.
func (s *Store) GetAccount(id string) (*account.Account, error) {
	return s.FindAccountBy(FieldAccountID, id)
}

// AccountParams carries the caller-supplied attributes of a new account.
type AccountParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Email       string `json:"email"`
	GoogleID    string `json:"googleId"`
	GoogleName  string `json:"googleName"`
}

// AddAccount derives the account id from params.Name, rejects duplicates,
// and persists the new account immediately. A missing sys bucket is created
// rather than reported, so first-time setups need no separate bootstrap call.
func (s *Store) AddAccount(params AccountParams) (*account.Account, error) {
	if params.Name == "" {
		return nil, errs.MissingParameter("name")
	}

	exists, err := s.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.Create(); err != nil {
			return nil, err
		}
	}

	id := account.DeriveID(params.Name)
	existing, err := s.GetAccount(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Configuration("account %q already exists", id)
	}

	acc := &account.Account{
		ID:          id,
		Name:        params.Name,
		Description: params.Description,
		Email:       params.Email,
		GoogleID:    params.GoogleID,
		GoogleName:  params.GoogleName,
	}
	if err := s.SaveAccount(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// SaveAccount writes the account's attributes and sheet rows to its metadata
// table, creating the table on first save.
func (s *Store) SaveAccount(acc *account.Account) error {
	sysBucket, err := s.sysBucketID()
	if err != nil {
		return err
	}

	access, err := s.cipher.Encrypt(acc.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	refresh, err := s.cipher.Encrypt(acc.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypting refresh token: %w", err)
	}

	data := &storage.TableData{
		Columns: sheetColumns,
		Attributes: map[string]string{
			"id":           acc.ID,
			"name":         acc.Name,
			"description":  acc.Description,
			"googleId":     acc.GoogleID,
			"googleName":   acc.GoogleName,
			"email":        acc.Email,
			"accessToken":  access,
			"refreshToken": refresh,
			"external":     strconv.FormatBool(acc.External),
		},
	}
	for _, sheet := range acc.Sheets {
		row, err := sheetRow(sheet)
		if err != nil {
			return err
		}
		data.Rows = append(data.Rows, row)
	}

	return s.client.WriteTable(s.accountTableID(sysBucket, acc.ID), data, true)
}

// RemoveAccount drops the account's metadata table. Removing an unknown
// account is a no-op.
func (s *Store) RemoveAccount(accountID string) error {
	sysBucket, err := s.sysBucketID()
	if err != nil {
		return err
	}
	tableID := s.accountTableID(sysBucket, accountID)
	exists, err := s.client.TableExists(tableID)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return s.client.DropTable(tableID)
}

// RemoveSheet deletes one sheet descriptor by identity and persists the
// account.
func (s *Store) RemoveSheet(accountID string, fileID int, sheetID string) error {
	acc, err := s.GetAccount(accountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return errs.Configuration("account %q does not exist", accountID)
	}
	acc.RemoveSheet(fileID, sheetID)
	return s.SaveAccount(acc)
}

// CreateAccessToken mints a write-only token scoped to the sys bucket,
// expiring after TokenTTL. It is handed to third parties so they can finish
// the OAuth handshake without holding the primary credential.
func (s *Store) CreateAccessToken() (*storage.Token, error) {
	sysBucket, err := s.sysBucketID()
	if err != nil {
		return nil, err
	}
	return s.client.CreateScopedToken(
		map[string]string{sysBucket: "write"},
		"External authorization",
		TokenTTL,
	)
}

// loadAccount materializes one account from its metadata table.
func (s *Store) loadAccount(tableID, id string) (*account.Account, error) {
	data, err := s.client.ReadTable(tableID)
	if err != nil {
		return nil, err
	}

	attr := func(name string) string { return data.Attributes[name] }
	access, err := s.cipher.Decrypt(attr("accessToken"))
	if err != nil {
		return nil, fmt.Errorf("decrypting access token of %s: %w", id, err)
	}
	refresh, err := s.cipher.Decrypt(attr("refreshToken"))
	if err != nil {
		return nil, fmt.Errorf("decrypting refresh token of %s: %w", id, err)
	}

	acc := &account.Account{
		ID:           id,
		Name:         attr("name"),
		Description:  attr("description"),
		GoogleID:     attr("googleId"),
		GoogleName:   attr("googleName"),
		Email:        attr("email"),
		AccessToken:  access,
		RefreshToken: refresh,
		External:     attr("external") == "true",
	}

	for i, row := range data.Rows {
		sheet, err := rowSheet(row)
		if err != nil {
			return nil, fmt.Errorf("account %s row %d: %w", id, i, err)
		}
		acc.Sheets = append(acc.Sheets, sheet)
	}
	return acc, nil
}

func sheetRow(sheet *account.Sheet) ([]string, error) {
	cfg := ""
	if sheet.Config != nil {
		raw, err := json.Marshal(sheet.Config)
		if err != nil {
			return nil, fmt.Errorf("encoding sheet config: %w", err)
		}
		cfg = string(raw)
	}
	return []string{
		strconv.Itoa(sheet.FileID),
		sheet.GoogleID,
		sheet.Title,
		sheet.SheetID,
		sheet.SheetTitle,
		cfg,
	}, nil
}

func rowSheet(row []string) (*account.Sheet, error) {
	if len(row) < len(sheetColumns) {
		return nil, fmt.Errorf("short sheet row: %v", row)
	}
	fileID, err := strconv.Atoi(row[0])
	if err != nil {
		return nil, fmt.Errorf("invalid fileId %q: %w", row[0], err)
	}
	sheet := &account.Sheet{
		FileID:     fileID,
		GoogleID:   row[1],
		Title:      row[2],
		SheetID:    row[3],
		SheetTitle: row[4],
	}
	if row[5] != "" {
		var cfg reshape.Config
		if err := json.Unmarshal([]byte(row[5]), &cfg); err != nil {
			return nil, fmt.Errorf("invalid sheet config: %w", err)
		}
		sheet.Config = &cfg
	}
	return sheet, nil
}
