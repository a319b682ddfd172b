package model

import (
	"fmt"
	"math"
	"strings"

	"gorm.io/gorm"
)

// HistoryTable is a history table holding one row per sample: an epoch time
// column and one nullable double column per channel.
type HistoryTable struct {
	Name       string
	TimeColumn string
	Columns    []string
}

func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (t HistoryTable) createSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (%s DOUBLE NOT NULL", quote(t.Name), quote(t.TimeColumn))
	for _, col := range t.Columns {
		fmt.Fprintf(&b, ", %s DOUBLE NULL", quote(col))
	}
	fmt.Fprintf(&b, ", INDEX %s (%s))", quote("idx_"+t.TimeColumn), quote(t.TimeColumn))
	return b.String()
}

func (t HistoryTable) addColumnSQL(col string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s DOUBLE NULL", quote(t.Name), quote(col))
}

// MigrateHistory creates missing history tables and adds missing channel
// columns to existing ones.
func MigrateHistory(db *gorm.DB, tables []HistoryTable) error {
	for _, t := range tables {
		if !db.Migrator().HasTable(t.Name) {
			if err := db.Exec(t.createSQL()).Error; err != nil {
				return fmt.Errorf("create table %s: %w", t.Name, err)
			}
			continue
		}
		for _, col := range t.Columns {
			if db.Migrator().HasColumn(t.Name, col) {
				continue
			}
			if err := db.Exec(t.addColumnSQL(col)).Error; err != nil {
				return fmt.Errorf("add column %s.%s: %w", t.Name, col, err)
			}
		}
	}
	return nil
}

// TestDataOptions describes the synthetic samples written by InsertTestData.
type TestDataOptions struct {
	// End is the epoch time of the last sample.
	End int64
	// Duration and Step are in seconds.
	Duration int64
	Step     int64
}

// testRows generates slowly oscillating readings. Levels (columns holding
// "lvl") rise and fall around 50 %, flows sit around 745 * 5 L/min.
func (t HistoryTable) testRows(opts TestDataOptions) []map[string]interface{} {
	if opts.Step <= 0 || opts.Duration <= 0 {
		return nil
	}
	start := opts.End - opts.Duration
	rows := make([]map[string]interface{}, 0, opts.Duration/opts.Step+1)
	for ts := start; ts <= opts.End; ts += opts.Step {
		x := float64(ts-start) / 3600
		row := map[string]interface{}{t.TimeColumn: float64(ts)}
		for i, col := range t.Columns {
			phase := float64(i)
			if strings.Contains(col, "lvl") {
				row[col] = 50 + 20*math.Sin(x/3+phase)
			} else {
				row[col] = 745 * (5 + math.Cos(x/2+phase))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func InsertTestData(db *gorm.DB, tables []HistoryTable, opts TestDataOptions) error {
	for _, t := range tables {
		rows := t.testRows(opts)
		if len(rows) == 0 {
			continue
		}
		if err := db.Table(t.Name).CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("insert test data into %s: %w", t.Name, err)
		}
	}
	return nil
}
