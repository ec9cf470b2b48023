package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteClient implements Client on a local SQLite database. Loads complete
// synchronously; the async flag is accepted for interface compatibility.
type SQLiteClient struct {
	db *gorm.DB
}

type bucketModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Stage       string
	Description string
	CreatedAt   time.Time
}

func (bucketModel) TableName() string { return "buckets" }

type tableModel struct {
	ID        string `gorm:"primaryKey"`
	BucketID  string `gorm:"index"`
	Columns   string // JSON array of column names
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (tableModel) TableName() string { return "tables" }

type rowModel struct {
	ID       uint   `gorm:"primaryKey"`
	TableID  string `gorm:"index"`
	Position int
	Data     string // JSON array of cell values
}

func (rowModel) TableName() string { return "rows" }

type attributeModel struct {
	TableID string `gorm:"primaryKey"`
	Name    string `gorm:"primaryKey"`
	Value   string
}

func (attributeModel) TableName() string { return "attributes" }

type scopedTokenModel struct {
	Token       string `gorm:"primaryKey"`
	Description string
	Permissions string // JSON object: bucket id -> permission
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

func (scopedTokenModel) TableName() string { return "scoped_tokens" }

// OpenSQLite opens (or creates) the store database and runs migrations.
func OpenSQLite(path string) (*SQLiteClient, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&bucketModel{}, &tableModel{}, &rowModel{}, &attributeModel{}, &scopedTokenModel{}); err != nil {
		return nil, err
	}
	return &SQLiteClient{db: db}, nil
}

// BucketExists implements Client.
func (c *SQLiteClient) BucketExists(id string) (bool, error) {
	var count int64
	if err := c.db.Model(&bucketModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateBucket implements Client. Creating an existing bucket is a no-op.
func (c *SQLiteClient) CreateBucket(name, stage, description string) (string, error) {
	id := stage + ".c-" + name
	exists, err := c.BucketExists(id)
	if err != nil {
		return "", err
	}
	if exists {
		return id, nil
	}
	err = c.db.Create(&bucketModel{
		ID:          id,
		Name:        name,
		Stage:       stage,
		Description: description,
	}).Error
	if err != nil {
		return "", err
	}
	return id, nil
}

// TableExists implements Client.
func (c *SQLiteClient) TableExists(id string) (bool, error) {
	var count int64
	if err := c.db.Model(&tableModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DropTable implements Client.
func (c *SQLiteClient) DropTable(id string) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&tableModel{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrTableNotFound, id)
		}
		if err := tx.Where("table_id = ?", id).Delete(&rowModel{}).Error; err != nil {
			return err
		}
		return tx.Where("table_id = ?", id).Delete(&attributeModel{}).Error
	})
}

// ListTables implements Client.
func (c *SQLiteClient) ListTables(bucketID string) ([]string, error) {
	var ids []string
	err := c.db.Model(&tableModel{}).
		Where("bucket_id = ?", bucketID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ReadTable implements Client.
func (c *SQLiteClient) ReadTable(id string) (*TableData, error) {
	var table tableModel
	if err := c.db.First(&table, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, id)
		}
		return nil, err
	}

	data := &TableData{Attributes: map[string]string{}}
	if err := json.Unmarshal([]byte(table.Columns), &data.Columns); err != nil {
		return nil, fmt.Errorf("corrupt column list for %s: %w", id, err)
	}

	var rows []rowModel
	if err := c.db.Where("table_id = ?", id).Order("position").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		var cells []string
		if err := json.Unmarshal([]byte(row.Data), &cells); err != nil {
			return nil, fmt.Errorf("corrupt row %d of %s: %w", row.Position, id, err)
		}
		data.Rows = append(data.Rows, cells)
	}

	var attrs []attributeModel
	if err := c.db.Where("table_id = ?", id).Find(&attrs).Error; err != nil {
		return nil, err
	}
	for _, attr := range attrs {
		data.Attributes[attr.Name] = attr.Value
	}
	return data, nil
}

// WriteTable implements Client.
func (c *SQLiteClient) WriteTable(id string, data *TableData, async bool) error {
	bucketID, err := bucketOf(id)
	if err != nil {
		return err
	}
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := replaceTable(tx, id, bucketID, data.Columns, data.Rows); err != nil {
			return err
		}
		if err := tx.Where("table_id = ?", id).Delete(&attributeModel{}).Error; err != nil {
			return err
		}
		for name, value := range data.Attributes {
			attr := attributeModel{TableID: id, Name: name, Value: value}
			if err := tx.Create(&attr).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadTable implements Client. Attributes survive a reload; only columns and
// rows are replaced.
func (c *SQLiteClient) LoadTable(id string, r io.Reader, async bool) error {
	bucketID, err := bucketOf(id)
	if err != nil {
		return err
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return fmt.Errorf("parsing load file for %s: %w", id, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("load file for %s has no header row", id)
	}

	return c.db.Transaction(func(tx *gorm.DB) error {
		return replaceTable(tx, id, bucketID, records[0], records[1:])
	})
}

// CreateScopedToken implements Client.
func (c *SQLiteClient) CreateScopedToken(permissions map[string]string, description string, ttl time.Duration) (*Token, error) {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return nil, err
	}
	model := scopedTokenModel{
		Token:       uuid.NewString(),
		Description: description,
		Permissions: string(perms),
		ExpiresAt:   time.Now().Add(ttl),
	}
	if err := c.db.Create(&model).Error; err != nil {
		return nil, err
	}
	return &Token{
		Token:       model.Token,
		Description: model.Description,
		ExpiresAt:   model.ExpiresAt,
	}, nil
}

// replaceTable upserts the table record and swaps its row set.
func replaceTable(tx *gorm.DB, id, bucketID string, columns []string, rows [][]string) error {
	cols, err := json.Marshal(columns)
	if err != nil {
		return err
	}

	var existing tableModel
	err = tx.First(&existing, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&tableModel{ID: id, BucketID: bucketID, Columns: string(cols)}).Error; err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if err := tx.Model(&existing).Update("columns", string(cols)).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("table_id = ?", id).Delete(&rowModel{}).Error; err != nil {
		return err
	}
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		rec := rowModel{TableID: id, Position: i, Data: string(data)}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
	}
	return nil
}

// bucketOf extracts "stage.bucket" from a 3-part table id.
func bucketOf(tableID string) (string, error) {
	parts := strings.Split(tableID, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid table id %q, want stage.bucket.table", tableID)
	}
	return parts[0] + "." + parts[1], nil
}
