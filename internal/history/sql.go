package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"liquefier/pkg/log"
)

// SQLStore queries history tables laid out as one row per sample with a
// numeric epoch time column and one column per channel.
type SQLStore struct {
	db         *gorm.DB
	timeColumn string
	logger     *logrus.Entry
}

func NewSQLStore(db *gorm.DB, timeColumn string) *SQLStore {
	if timeColumn == "" {
		timeColumn = DefaultTimeColumn
	}
	return &SQLStore{
		db:         db,
		timeColumn: timeColumn,
		logger:     log.Component("history"),
	}
}

func (s *SQLStore) Query(ctx context.Context, table string, columns []string, start, end int64) (*Result, error) {
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(table) {
		return nil, fmt.Errorf("table %s not found", table)
	}

	present := make([]string, 0, len(columns))
	for _, col := range columns {
		if db.Migrator().HasColumn(table, col) {
			present = append(present, col)
		} else {
			s.logger.Infof("column %s.%s does not exist, skipped", table, col)
		}
	}
	if len(present) == 0 {
		return newResult(nil, 0), nil
	}

	selected := make([]clause.Column, 0, len(present)+1)
	selected = append(selected, clause.Column{Name: s.timeColumn})
	for _, col := range present {
		selected = append(selected, clause.Column{Name: col})
	}

	rows, err := db.Table(table).
		Clauses(clause.Select{Columns: selected}).
		Where(clause.Gte{Column: clause.Column{Name: s.timeColumn}, Value: start}).
		Where(clause.Lt{Column: clause.Column{Name: s.timeColumn}, Value: end}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: s.timeColumn}}).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	res := newResult(present, 1024)
	dest := make([]any, len(present)+1)
	var ts float64
	vals := make([]sql.NullFloat64, len(present))
	dest[0] = &ts
	for i := range vals {
		dest[i+1] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		res.Times = append(res.Times, ts)
		for i, v := range vals {
			if v.Valid {
				res.Values[i] = append(res.Values[i], v.Float64)
			} else {
				res.Values[i] = append(res.Values[i], math.NaN())
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	s.logger.Debugf("fetched %d rows from %s", res.Len(), table)
	return res, nil
}
