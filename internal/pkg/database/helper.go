package database

import "gorm.io/gorm"

// WhereIf applies the condition only when cond is true
func WhereIf(cond bool, query any, args ...any) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !cond {
			return db
		}
		return db.Where(query, args...)
	}
}

// OrderBy orders by field, appending a tie-breaker column for stable results
func OrderBy(field string, desc bool, tieBreaker string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		dir := " ASC"
		if desc {
			dir = " DESC"
		}
		db = db.Order(field + dir)
		if tieBreaker != "" {
			db = db.Order(tieBreaker + dir)
		}
		return db
	}
}
