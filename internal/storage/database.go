package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database persists the wallpaper application history in SQLite.
type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&ApplyRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) RecordApply(phase, instance, file string) error {
	record := &ApplyRecord{
		Timestamp: time.Now(),
		Phase:     phase,
		Instance:  instance,
		File:      file,
	}
	return d.db.Create(record).Error
}

func (d *Database) GetLatest() (*ApplyRecord, error) {
	var record ApplyRecord
	result := d.db.Order("timestamp desc").First(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

func (d *Database) GetRecent(limit int) ([]ApplyRecord, error) {
	var records []ApplyRecord
	result := d.db.Order("timestamp desc").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// TrimToLast deletes all but the newest n records.
func (d *Database) TrimToLast(n int) error {
	if n <= 0 {
		return nil
	}
	keep := d.db.Model(&ApplyRecord{}).
		Select("id").
		Order("timestamp desc").
		Limit(n)
	return d.db.Unscoped().Where("id NOT IN (?)", keep).Delete(&ApplyRecord{}).Error
}

// CountByInstance tallies the full history per instance name, used to
// rebuild the stats file.
func (d *Database) CountByInstance() (map[string]int, error) {
	type row struct {
		Instance string
		Total    int
	}
	var rows []row
	result := d.db.Model(&ApplyRecord{}).
		Select("instance, count(*) as total").
		Group("instance").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Instance] = r.Total
	}
	return counts, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
