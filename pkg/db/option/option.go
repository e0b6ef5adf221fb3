package option

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "<>"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
	GreaterThan    Operator = ">"
	LessThan       Operator = "<"
	In             Operator = "IN"
	NotIn          Operator = "NOT IN"
)

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Condition is a single WHERE predicate on a column.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (c Condition) Apply(db *gorm.DB) *gorm.DB {
	if !columnPattern.MatchString(c.Field) {
		_ = db.AddError(fmt.Errorf("invalid filter column %q", c.Field))
		return db
	}
	switch c.Operator {
	case In, NotIn:
		return db.Where(fmt.Sprintf("%s %s (?)", c.Field, c.Operator), c.Value)
	case Equal, NotEqual, GreaterOrEqual, LessOrEqual, GreaterThan, LessThan:
		return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	default:
		_ = db.AddError(fmt.Errorf("unsupported operator %q", c.Operator))
		return db
	}
}

func ApplyOperator(field string, op Operator, value any) QueryOption {
	return Condition{Field: field, Operator: op, Value: value}
}

// WithSortBy orders by "column" or "column asc|desc"; multiple options append.
func WithSortBy(sort string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		parts := strings.Fields(strings.ToLower(strings.TrimSpace(sort)))
		if len(parts) == 0 || !columnPattern.MatchString(parts[0]) {
			return db
		}
		direction := "asc"
		if len(parts) > 1 && parts[1] == "desc" {
			direction = "desc"
		}
		return db.Order(parts[0] + " " + direction)
	})
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// ApplyPagination pages by ascending id: rows after the cursor, limit+1 rows
// so the caller can tell whether more exist.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if p.PageToken != "" {
			cursor, err := pagination.DecodeCursor(p.PageToken)
			if err != nil {
				_ = db.AddError(err)
				return db
			}
			after, err := snowflake.ParseString(cursor.ID)
			if err != nil {
				_ = db.AddError(pagination.ErrInvalidPageToken)
				return db
			}
			db = db.Where("id > ?", after)
		}
		return db.Order("id asc").Limit(p.Size() + 1)
	})
}
