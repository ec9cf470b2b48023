package extractor

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sheetport/sheetport/internal/account"
	"github.com/sheetport/sheetport/internal/configstore"
	"github.com/sheetport/sheetport/internal/drive"
	"github.com/sheetport/sheetport/internal/errs"
	"github.com/sheetport/sheetport/internal/lander"
	"github.com/sheetport/sheetport/internal/storage"
)

// fakeAPI implements drive.API against in-memory fixtures.
type fakeAPI struct {
	files      map[string]*drive.File
	fileErrs   map[string]error
	exports    map[string][]byte
	exportErrs map[string]error

	metadataCalls []string
	refresh       drive.TokenRefreshFunc
	access        string
	refreshToken  string

	// refreshDuring triggers a token rotation inside the next GetFile call.
	refreshDuring bool
}

func (f *fakeAPI) SetCredentials(access, refresh string) {
	f.access, f.refreshToken = access, refresh
}

func (f *fakeAPI) OnTokenRefresh(fn drive.TokenRefreshFunc) { f.refresh = fn }

func (f *fakeAPI) GetFile(ctx context.Context, fileID string) (*drive.File, error) {
	f.metadataCalls = append(f.metadataCalls, fileID)
	if f.refreshDuring {
		f.refreshDuring = false
		if err := f.refresh("rotated-access", "rotated-refresh"); err != nil {
			return nil, err
		}
	}
	if err, ok := f.fileErrs[fileID]; ok {
		return nil, err
	}
	file, ok := f.files[fileID]
	if !ok {
		return nil, &drive.NotFoundError{FileID: fileID}
	}
	return file, nil
}

func (f *fakeAPI) Export(ctx context.Context, url string) ([]byte, error) {
	if err, ok := f.exportErrs[url]; ok {
		return nil, err
	}
	return f.exports[url], nil
}

func exportFile(id string) *drive.File {
	return &drive.File{
		ID: id,
		ExportLinks: map[string]string{
			"application/pdf": "https://x/" + id + "?format=pdf",
		},
	}
}

// exportURLFor mirrors the pdf-to-csv derivation for fixture keys.
func exportURLFor(id, sheetID string) string {
	return "https://x/" + id + "?format=csv&gid=" + sheetID
}

type fixture struct {
	store *configstore.Store
	api   *fakeAPI
	ext   *Extractor
	db    *storage.SQLiteClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	store := configstore.New(client, "ex-google-drive", nil)
	api := &fakeAPI{
		files:      map[string]*drive.File{},
		fileErrs:   map[string]error{},
		exports:    map[string][]byte{},
		exportErrs: map[string]error{},
	}
	return &fixture{
		store: store,
		api:   api,
		ext:   New(store, api, lander.New(client, t.TempDir())),
		db:    client,
	}
}

func (f *fixture) addAccountWithSheet(t *testing.T, name, googleID, sheetID, sheetTitle string) *account.Account {
	t.Helper()
	acc, err := f.store.AddAccount(configstore.AccountParams{Name: name})
	if err != nil {
		t.Fatalf("AddAccount(%q) error: %v", name, err)
	}
	acc.SetTokens("access-"+acc.ID, "refresh-"+acc.ID)
	acc.AddSheet(&account.Sheet{GoogleID: googleID, SheetID: sheetID, SheetTitle: sheetTitle}, f.store.InBucketID(acc.ID))
	if err := f.store.SaveAccount(acc); err != nil {
		t.Fatalf("SaveAccount() error: %v", err)
	}
	return acc
}

func TestRun_LandsSheet(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")
	f.api.files["gA"] = exportFile("gA")
	f.api.exports[exportURLFor("gA", "1")] = []byte("a,b\n1,2\n3,4\n")

	res, err := f.ext.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Status != "ok" {
		t.Errorf("Status = %q", res.Status)
	}
	if len(res.Sheets) != 0 {
		t.Errorf("successful sheets should not be enumerated, got %v", res.Sheets)
	}

	data, err := f.db.ReadTable("in.c-ex-google-drive-acme.0-Report")
	if err != nil {
		t.Fatalf("landed table missing: %v", err)
	}
	want := [][]string{{"1", "2"}, {"3", "4"}}
	if !reflect.DeepEqual(data.Rows, want) {
		t.Errorf("landed rows = %v, want %v", data.Rows, want)
	}
}

func TestRun_EmptyPayloadIsSheetLocal(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")
	f.addAccountWithSheet(t, "Beta", "gB", "2", "Numbers")
	f.api.files["gA"] = exportFile("gA")
	f.api.files["gB"] = exportFile("gB")
	f.api.exports[exportURLFor("gA", "1")] = nil // empty download
	f.api.exports[exportURLFor("gB", "2")] = []byte("x\n9\n")

	res, err := f.ext.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Sheets["acme"]["Report"] != "file is empty" {
		t.Errorf("Sheets = %v, want acme/Report marked empty", res.Sheets)
	}

	// The empty sheet was not landed, the later one was.
	if _, err := f.db.ReadTable("in.c-ex-google-drive-acme.0-Report"); err == nil {
		t.Error("empty payload must not be landed")
	}
	if _, err := f.db.ReadTable("in.c-ex-google-drive-beta.0-Numbers"); err != nil {
		t.Errorf("second account's sheet missing: %v", err)
	}
}

func TestRun_NotFoundAbortsWholeRun(t *testing.T) {
	f := newFixture(t)
	// "acme" sorts before "zeta", so the broken sheet is hit first.
	f.addAccountWithSheet(t, "Acme", "gGone", "1", "Report")
	f.addAccountWithSheet(t, "Zeta", "gB", "2", "Numbers")
	f.api.files["gB"] = exportFile("gB")
	f.api.exports[exportURLFor("gB", "2")] = []byte("x\n9\n")

	_, err := f.ext.Run(context.Background(), Options{})
	if !errs.IsUser(err) {
		t.Fatalf("Run() = %v, want UserError", err)
	}

	if len(f.api.metadataCalls) != 1 {
		t.Errorf("metadata calls = %v, want run aborted before the second account", f.api.metadataCalls)
	}
	if _, err := f.db.ReadTable("in.c-ex-google-drive-zeta.0-Numbers"); err == nil {
		t.Error("queued sheet of a later account must not be processed")
	}
}

func TestRun_ClientErrorCarriesContextAndExcerpt(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")
	f.api.files["gA"] = exportFile("gA")
	f.api.exportErrs[exportURLFor("gA", "1")] = &drive.RequestError{
		StatusCode: 403,
		Body:       []byte("quota exceeded for this account, try again tomorrow"),
	}

	_, err := f.ext.Run(context.Background(), Options{})
	var ue *errs.UserError
	if !errors.As(err, &ue) {
		t.Fatalf("Run() = %v, want UserError", err)
	}
	if ue.AccountID != "acme" || ue.Sheet != "gA-1" {
		t.Errorf("error context = %q/%q", ue.AccountID, ue.Sheet)
	}
	if ue.Response == "" {
		t.Error("expected response excerpt on the error")
	}
}

func TestRun_ServerErrorIsApplication(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")
	f.api.fileErrs["gA"] = &drive.RequestError{StatusCode: 502, Body: []byte("bad gateway")}

	_, err := f.ext.Run(context.Background(), Options{})
	if !errs.IsApplication(err) {
		t.Errorf("Run() = %v, want ApplicationError", err)
	}
}

func TestRun_MissingExportLinks(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")
	f.api.files["gA"] = &drive.File{ID: "gA"} // no export links

	_, err := f.ext.Run(context.Background(), Options{})
	if !errs.IsApplication(err) {
		t.Errorf("Run() = %v, want ApplicationError for missing export links", err)
	}
}

func TestRun_AccountSelection(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")
	f.addAccountWithSheet(t, "Beta", "gB", "2", "Numbers")
	f.api.files["gB"] = exportFile("gB")
	f.api.exports[exportURLFor("gB", "2")] = []byte("x\n9\n")

	// Legacy alias selects like Account does.
	if _, err := f.ext.Run(context.Background(), Options{Config: "beta"}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(f.api.metadataCalls) != 1 || f.api.metadataCalls[0] != "gB" {
		t.Errorf("metadata calls = %v, want only gB", f.api.metadataCalls)
	}
}

func TestRun_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")

	_, err := f.ext.Run(context.Background(), Options{Account: "ghost"})
	if !errs.IsConfiguration(err) {
		t.Errorf("Run() = %v, want ConfigurationError", err)
	}
}

func TestRun_SheetSelectionValidation(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")

	_, err := f.ext.Run(context.Background(), Options{Account: "acme", SheetID: "1"})
	if !errs.IsParameter(err) {
		t.Errorf("sheetId without googleId = %v, want ParameterError", err)
	}

	_, err = f.ext.Run(context.Background(), Options{GoogleID: "gA", SheetID: "1"})
	if !errs.IsParameter(err) {
		t.Errorf("sheetId without account = %v, want ParameterError", err)
	}
}

func TestRun_SingleSheetSelection(t *testing.T) {
	f := newFixture(t)
	acc, _ := f.store.AddAccount(configstore.AccountParams{Name: "Acme"})
	acc.AddSheet(&account.Sheet{GoogleID: "gA", SheetID: "1", SheetTitle: "One"}, f.store.InBucketID(acc.ID))
	acc.AddSheet(&account.Sheet{GoogleID: "gA", SheetID: "2", SheetTitle: "Two"}, f.store.InBucketID(acc.ID))
	f.store.SaveAccount(acc)

	f.api.files["gA"] = exportFile("gA")
	f.api.exports[exportURLFor("gA", "2")] = []byte("x\n9\n")

	_, err := f.ext.Run(context.Background(), Options{Account: "acme", GoogleID: "gA", SheetID: "2"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if _, err := f.db.ReadTable("in.c-ex-google-drive-acme.1-Two"); err == nil {
		t.Error("unexpected table name; file ids of the same source file must match")
	}
	if _, err := f.db.ReadTable("in.c-ex-google-drive-acme.0-Two"); err != nil {
		t.Errorf("selected sheet not landed: %v", err)
	}
}

func TestRun_TokenRotationPersisted(t *testing.T) {
	f := newFixture(t)
	f.addAccountWithSheet(t, "Acme", "gA", "1", "Report")
	f.api.files["gA"] = exportFile("gA")
	f.api.exports[exportURLFor("gA", "1")] = []byte("x\n9\n")
	f.api.refreshDuring = true

	if _, err := f.ext.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	acc, err := f.store.GetAccount("acme")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if acc.AccessToken != "rotated-access" || acc.RefreshToken != "rotated-refresh" {
		t.Errorf("persisted tokens = %q/%q, want the rotated pair", acc.AccessToken, acc.RefreshToken)
	}
}
