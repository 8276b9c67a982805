package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-payment-service/domain"
)

type SQLHandler[T any, V any] struct {
	db          *gorm.DB
	applyFilter func(*gorm.DB, *V) *gorm.DB
}

func NewSQLHandler[T any, V any](
	db *gorm.DB,
	applyFilter func(*gorm.DB, *V) *gorm.DB,

) *SQLHandler[T, V] {
	return &SQLHandler[T, V]{applyFilter: applyFilter, db: db}
}

type DBOption func(*gorm.DB) *gorm.DB

func WithOmit(fields ...string) DBOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Omit(fields...)
	}
}

// WithLockForUpdate adds SELECT ... FOR UPDATE. Only meaningful inside WithinTx.
func WithLockForUpdate() DBOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}

// conn picks the transaction carried by ctx, if any, then applies opts.
func (h *SQLHandler[T, V]) conn(ctx context.Context, opts ...DBOption) *gorm.DB {
	qb := h.db
	if tx, ok := txFromContext(ctx); ok {
		qb = tx
	}
	qb = qb.WithContext(ctx)
	for _, opt := range opts {
		qb = opt(qb)
	}
	return qb
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrRecordNotFound
	}
	return err
}

func (h *SQLHandler[T, V]) Create(ctx context.Context, entity *T, opts ...DBOption) error {
	return h.conn(ctx, opts...).Create(entity).Error
}

func (h *SQLHandler[T, V]) FindByID(ctx context.Context, id any, opts ...DBOption) (*T, error) {
	var entity T
	if err := h.conn(ctx, opts...).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, notFound(err)
	}
	return &entity, nil
}

func (h *SQLHandler[T, V]) FindOne(ctx context.Context, filter *V, option *domain.FindOneOption, opts ...DBOption) (*T, error) {
	execDB := h.applyFilter(h.conn(ctx, opts...), filter)
	if option != nil {
		for _, sortField := range option.Sort {
			execDB = execDB.Order(sortField)
		}
		for _, field := range option.Preloads {
			execDB = execDB.Preload(field)
		}
	}

	var entity T
	if err := execDB.First(&entity).Error; err != nil {
		return nil, notFound(err)
	}
	return &entity, nil
}

func (h *SQLHandler[T, V]) applyFindManyOption(db *gorm.DB, option *domain.FindManyOption) *gorm.DB {
	if option == nil {
		return db
	}

	for _, sortField := range option.Sort {
		db = db.Order(sortField)
	}

	if option.Limit != nil {
		db = db.Limit(*option.Limit)
	}

	if option.Offset != nil {
		db = db.Offset(*option.Offset)
	}
	return db
}

func (h *SQLHandler[T, V]) FindMany(ctx context.Context, filter *V, option *domain.FindManyOption, opts ...DBOption) ([]*T, error) {
	execDB := h.applyFilter(h.conn(ctx, opts...), filter)
	execDB = h.applyFindManyOption(execDB, option)

	var entities []*T
	if err := execDB.Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

func (h *SQLHandler[T, V]) applyFindPageOption(db *gorm.DB, option *domain.FindPageOption) (outDB *gorm.DB, page, perPage int) {
	outDB = db
	page = 1
	perPage = 10
	if option != nil {
		for _, sortField := range option.Sort {
			outDB = outDB.Order(sortField)
		}
		if option.Page > 0 {
			page = option.Page
		}
		if option.PerPage > 0 {
			perPage = option.PerPage
		}
	}
	offset := (page - 1) * perPage
	outDB = outDB.Offset(offset).Limit(perPage)
	return
}

func (h *SQLHandler[T, V]) FindPage(ctx context.Context, filter *V, option *domain.FindPageOption, opts ...DBOption) ([]*T, *domain.Pagination, error) {
	execDB := h.applyFilter(h.conn(ctx, opts...), filter)

	var totalItems int64
	countDB := execDB.Session(&gorm.Session{}) // clone for count
	if err := countDB.Model(new(T)).Count(&totalItems).Error; err != nil {
		return nil, nil, err
	}

	execDB, page, perPage := h.applyFindPageOption(execDB, option)

	var entities []*T
	if err := execDB.Find(&entities).Error; err != nil {
		return nil, nil, err
	}

	return entities, domain.NewPagination(page, perPage, totalItems), nil
}

func (h *SQLHandler[T, V]) UpdateFields(ctx context.Context, id any, fields map[string]any, opts ...DBOption) error {
	var entity T
	return h.conn(ctx, opts...).Model(&entity).Where("id = ?", id).Updates(fields).Error
}

// UpdateWhere applies fields to the rows matching filter and reports how many
// rows changed. A zero count means the guard in filter did not hold, which is
// how callers implement compare-and-set.
func (h *SQLHandler[T, V]) UpdateWhere(ctx context.Context, filter *V, fields map[string]any, opts ...DBOption) (int64, error) {
	var entity T
	execDB := h.applyFilter(h.conn(ctx, opts...).Model(&entity), filter)
	result := execDB.Updates(fields)
	return result.RowsAffected, result.Error
}

func (h *SQLHandler[T, V]) Count(ctx context.Context, filter *V, opts ...DBOption) (int64, error) {
	var count int64
	execDB := h.applyFilter(h.conn(ctx, opts...), filter)
	err := execDB.Model(new(T)).Count(&count).Error
	return count, err
}

func (h *SQLHandler[T, V]) Exists(ctx context.Context, filter *V, opts ...DBOption) (bool, error) {
	count, err := h.Count(ctx, filter, opts...)
	return count > 0, err
}
