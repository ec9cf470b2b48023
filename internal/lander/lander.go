// Package lander bridges a downloaded sheet export and the destination
// store: raw bytes go to an ephemeral CSV, the reshape engine produces the
// normalized file, and the result is bulk-loaded into the sheet's
// destination table.
package lander

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sheetport/sheetport/internal/account"
	"github.com/sheetport/sheetport/internal/errs"
	"github.com/sheetport/sheetport/internal/reshape"
	"github.com/sheetport/sheetport/internal/storage"
)

// Lander lands processed sheet data into destination tables.
type Lander struct {
	client  storage.Client
	tempDir string
}

// New builds a Lander writing ephemeral files under tempDir (the OS temp
// directory when empty).
func New(client storage.Client, tempDir string) *Lander {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Lander{client: client, tempDir: tempDir}
}

// Land reshapes rawData according to the sheet's config and loads it into
// the destination table. Both ephemeral files are removed on every exit
// path.
func (l *Lander) Land(rawData []byte, sheet *account.Sheet) error {
	cfg := sheet.Config
	if cfg == nil {
		return errs.User("sheet %s-%s has no reshape config", sheet.GoogleID, sheet.SheetID)
	}
	stage, bucketName, err := splitTableID(cfg.Table)
	if err != nil {
		return err
	}

	rawPath, err := l.writeRawCSV(rawData, sheet)
	if err != nil {
		return err
	}
	defer os.Remove(rawPath)

	outPath := strings.TrimSuffix(rawPath, ".csv") + "_out.csv"
	defer os.Remove(outPath)

	if err := l.processFile(rawPath, outPath, cfg); err != nil {
		return err
	}

	if err := l.initDataBucket(stage, bucketName); err != nil {
		return err
	}

	out, err := os.Open(outPath)
	if err != nil {
		return errs.Resource("opening reshaped file "+outPath, err)
	}
	defer out.Close()

	if err := l.client.LoadTable(cfg.Table, out, true); err != nil {
		return &errs.UserError{
			Msg:   fmt.Sprintf("loading table %s: %v", cfg.Table, err),
			Cause: err,
			Sheet: sheet.GoogleID + "-" + sheet.SheetID,
		}
	}
	return nil
}

// writeRawCSV stores the downloaded bytes under a collision-proof name:
// file id, sheet id, date and a random suffix.
func (l *Lander) writeRawCSV(data []byte, sheet *account.Sheet) (string, error) {
	name := fmt.Sprintf("%s_%s_%s-%s.csv",
		sheet.GoogleID,
		sheet.SheetID,
		time.Now().Format("2006-01-02"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(l.tempDir, name)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		// A partially written file must not survive the failure.
		os.Remove(path)
		return "", errs.Resource("writing raw export to "+path, err)
	}
	return path, nil
}

func (l *Lander) processFile(inPath, outPath string, cfg *reshape.Config) error {
	in, err := os.Open(inPath)
	if err != nil {
		return errs.Resource("opening raw export "+inPath, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return errs.Resource("creating reshaped file "+outPath, err)
	}

	if err := reshape.Process(in, out, cfg); err != nil {
		out.Close()
		return fmt.Errorf("reshaping %s: %w", inPath, err)
	}
	return out.Close()
}

// initDataBucket creates the destination bucket when absent.
func (l *Lander) initDataBucket(stage, bucketName string) error {
	id := stage + "." + bucketName
	exists, err := l.client.BucketExists(id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = l.client.CreateBucket(strings.TrimPrefix(bucketName, "c-"), stage, "Google Drive account bucket")
	return err
}

// splitTableID validates the 3-part destination table id.
func splitTableID(tableID string) (stage, bucket string, err error) {
	parts := strings.Split(tableID, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", errs.User("invalid destination table %q, want stage.bucket.table", tableID)
	}
	return parts[0], parts[1], nil
}
