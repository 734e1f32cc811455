package database

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//Pagination defaults
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

//ErrConflict wraps uniqueness and foreign key violations reported by the store
var ErrConflict = errors.New("integrity error")

//ErrNotFound is returned when a row to update does not exist within the tenant
var ErrNotFound = errors.New("record not found")

//ErrInvalidOrder is returned for order_by fields that are not sortable
var ErrInvalidOrder = errors.New("invalid order_by field")

func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}

	return err
}

//Pagination selects a 1-based page of a result set
type Pagination struct {
	Page int
	Size int
}

//NewPagination clamps page and size into their valid ranges
func NewPagination(page, size int) Pagination {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Pagination{Page: page, Size: size}
}

//Offset returns the number of rows preceding the page
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Size
}

//Page is one page of a tenant scoped listing
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Pages int   `json:"pages"`
}

//NewPage wraps items together with the counters describing the whole result set
func NewPage[T any](items []T, total int64, p Pagination) *Page[T] {
	if items == nil {
		items = []T{}
	}

	return &Page[T]{
		Items: items,
		Total: total,
		Page:  p.Page,
		Size:  p.Size,
		Pages: int(math.Ceil(float64(total) / float64(p.Size))),
	}
}

//MapPage converts the items of a page while keeping its counters
func MapPage[T, R any](p *Page[T], fn func(T) R) *Page[R] {
	items := make([]R, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, fn(item))
	}

	return &Page[R]{Items: items, Total: p.Total, Page: p.Page, Size: p.Size, Pages: p.Pages}
}

//OrderBy is a single sort key
type OrderBy struct {
	Field string
	Desc  bool
}

var sortableFields = map[string]bool{
	"name":       true,
	"created_at": true,
	"updated_at": true,
}

//ParseOrderBy parses a comma separated list of sort fields, each optionally prefixed with '-'
//for descending order. An empty string yields no sort keys.
func ParseOrderBy(s string) ([]OrderBy, error) {
	var order []OrderBy

	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		o := OrderBy{Field: strings.TrimPrefix(field, "-"), Desc: strings.HasPrefix(field, "-")}
		if !sortableFields[o.Field] {
			return nil, fmt.Errorf("%w: %s", ErrInvalidOrder, o.Field)
		}

		order = append(order, o)
	}

	return order, nil
}

func applyOrder(q *gorm.DB, order []OrderBy) *gorm.DB {
	if len(order) == 0 {
		order = []OrderBy{{Field: "created_at"}}
	}

	for _, o := range order {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}

	// id breaks ties so that pages never overlap
	return q.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
}

func paginate[T any](q *gorm.DB, p Pagination, order []OrderBy) (*Page[T], error) {
	base := q.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	items := []T{}
	err := applyOrder(base, order).Offset(p.Offset()).Limit(p.Size).Find(&items).Error
	if err != nil {
		return nil, err
	}

	return NewPage(items, total, p), nil
}

func whereLike(q *gorm.DB, column, value string) *gorm.DB {
	if value == "" {
		return q
	}
	return q.Where(column+" LIKE ?", "%"+value+"%")
}

func whereEqual(q *gorm.DB, column string, value interface{}) *gorm.DB {
	switch v := value.(type) {
	case string:
		if v == "" {
			return q
		}
	case *uuid.UUID:
		if v == nil {
			return q
		}
		return q.Where(column+" = ?", *v)
	}
	return q.Where(column+" = ?", value)
}

//Owner restricts an ownership check. A zero (uuid.Nil) field imposes no constraint.
type Owner struct {
	CompanyID uuid.UUID
	TypeID    uuid.UUID
}

func belongsTo(q *gorm.DB, model interface{}, id uuid.UUID, owner Owner) (bool, error) {
	q = q.Model(model).Where("id = ?", id)
	if owner.CompanyID != uuid.Nil {
		q = q.Where("company_id = ?", owner.CompanyID)
	}
	if owner.TypeID != uuid.Nil {
		q = q.Where("type_id = ?", owner.TypeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
