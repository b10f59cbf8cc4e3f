package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
)

// Species is the catalogue row persisted in SQLite.
type Species struct {
	ScientificName    string   `gorm:"primaryKey;type:varchar(128)"`
	CommonName        string   `gorm:"index:idx_common_name"`
	Description       string   `gorm:"type:text"`
	Image             string   `gorm:"type:text"`
	CoverImage        string   `gorm:"type:text"`
	CoverImageCenterX *float64 // NULL means the default focal point
	WikiLink          string   `gorm:"type:text"`
	UpdatedAt         time.Time
}

func (Species) TableName() string { return "species" }

func openDB(dbPath string) (*gorm.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.AutoMigrate(&Species{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// OpenSQLite loads every species from the catalogue database into an
// in-memory store and closes the database. The returned store never touches
// the file again.
func OpenSQLite(dbPath string) (*MemoryStore, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("reference db %s: %w", dbPath, err)
	}
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	defer closeDB(db)

	var rows []Species
	if err := db.Order("scientific_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading species: %w", err)
	}

	entries := make([]model.ReferenceEntry, len(rows))
	for i, r := range rows {
		entries[i] = model.ReferenceEntry{
			ScientificName:    r.ScientificName,
			CommonName:        r.CommonName,
			Description:       r.Description,
			Image:             r.Image,
			CoverImage:        r.CoverImage,
			CoverImageCenterX: r.CoverImageCenterX,
			WikiLink:          r.WikiLink,
		}
	}
	return NewMemoryStore(entries)
}

// SeedSQLite writes entries into the catalogue database, replacing rows with
// the same scientific name. It is an offline maintenance step; running
// processes only read the catalogue at start-up.
func SeedSQLite(dbPath string, entries []model.ReferenceEntry) (int, error) {
	if len(entries) == 0 {
		return 0, errors.New("no entries to seed")
	}
	// Reuse the in-memory validation before anything is written.
	if _, err := NewMemoryStore(entries); err != nil {
		return 0, err
	}

	db, err := openDB(dbPath)
	if err != nil {
		return 0, err
	}
	defer closeDB(db)

	rows := make([]Species, len(entries))
	for i, e := range entries {
		rows[i] = Species{
			ScientificName:    e.ScientificName,
			CommonName:        e.CommonName,
			Description:       e.Description,
			Image:             e.Image,
			CoverImage:        e.CoverImage,
			CoverImageCenterX: e.CoverImageCenterX,
			WikiLink:          e.WikiLink,
		}
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return 0, fmt.Errorf("seeding species: %w", err)
	}
	return len(rows), nil
}
