package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"coursework/portal/schema"
	"coursework/utils"
	"coursework/utils/logging"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Model is satisfied by pointers to entities embedding schema.Base.
type Model[T any] interface {
	*T
	PrimaryKey() uint
	SetPrimaryKey(id uint)
}

// Rule is a validation step run inside the write transaction, before the
// row is persisted. Returning a *ValidationError rejects the write with field
// messages, any other error aborts it.
type Rule[T any] func(txn *gorm.DB, row *T) error

type Scope = func(*gorm.DB) *gorm.DB

func Preload(relations ...string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		for _, rel := range relations {
			db = db.Preload(rel)
		}
		return db
	}
}

func Where(query interface{}, args ...interface{}) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	}
}

type Options[T any] struct {
	// Name is the singular entity name used in errors, logs and metrics.
	Name string
	// Order is the default ordering of List.
	Order string
	// Preloads are loaded for every List and Detail.
	Preloads []string
	Rules    []Rule[T]
	// Nested names has-many associations that are written together with the
	// row. On update a non-nil value replaces the stored children.
	Nested []string
	// Template returns the value new rows start from, so column defaults
	// apply to fields the caller leaves out.
	Template func() T
	// Conflict is reported when the store rejects a write as a duplicate.
	Conflict string
}

// Resource implements list, detail, create, update and delete for one entity.
type Resource[T any, P Model[T]] struct {
	db   *gorm.DB
	opts Options[T]
}

func New[T any, P Model[T]](db *gorm.DB, opts Options[T]) *Resource[T, P] {
	if opts.Order == "" {
		opts.Order = "id"
	}
	if opts.Conflict == "" {
		opts.Conflict = fmt.Sprintf("A %v with these values already exists.", opts.Name)
	}
	return &Resource[T, P]{db: db, opts: opts}
}

func (r *Resource[T, P]) Name() string {
	return r.opts.Name
}

func (r *Resource[T, P]) DB() *gorm.DB {
	return r.db
}

// Template returns a new row carrying the entity defaults.
func (r *Resource[T, P]) Template() T {
	if r.opts.Template != nil {
		return r.opts.Template()
	}
	var row T
	return row
}

func (r *Resource[T, P]) query(ctx context.Context, txn *gorm.DB, scopes []Scope) *gorm.DB {
	q := txn.WithContext(ctx)
	for _, rel := range r.opts.Preloads {
		q = q.Preload(rel)
	}
	return q.Scopes(scopes...)
}

func (r *Resource[T, P]) notFound(id uint) error {
	return utils.CodedError(fmt.Errorf("%v %d %w", r.opts.Name, id, ErrNotFound), http.StatusNotFound)
}

// storeError turns an error returned by the store into a coded error. Storage
// constraint failures become the same validation error rules produce.
func (r *Resource[T, P]) storeError(action string, err error) error {
	switch schema.ClassifyViolation(err) {
	case schema.UniqueViolation:
		return utils.CodedError(NewValidationError(NonFieldErrors, r.opts.Conflict), http.StatusBadRequest)
	case schema.ForeignKeyViolation:
		return utils.CodedError(NewValidationError(NonFieldErrors, "Referenced object does not exist."), http.StatusBadRequest)
	case schema.CheckViolation:
		return utils.CodedError(NewValidationError(NonFieldErrors, "A value is outside of its allowed range."), http.StatusBadRequest)
	}
	slog.Error("sql error "+action, "entity", r.opts.Name, "error", err)
	return utils.CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
}

func (r *Resource[T, P]) finish(action string, err error) error {
	if err == nil || utils.HasResponseCode(err) {
		return err
	}
	if _, ok := AsValidationError(err); ok {
		return utils.CodedError(err, http.StatusBadRequest)
	}
	return r.storeError(action, err)
}

func (r *Resource[T, P]) validate(txn *gorm.DB, row *T) error {
	verr := &ValidationError{}
	for _, rule := range r.opts.Rules {
		err := rule(txn, row)
		if err == nil {
			continue
		}
		if v, ok := AsValidationError(err); ok && !utils.HasResponseCode(err) {
			verr.Merge(v)
			continue
		}
		if utils.HasResponseCode(err) {
			return err
		}
		if errors.Is(err, schema.ErrDbAccessFailed) {
			return utils.CodedError(err, http.StatusInternalServerError)
		}
		return utils.CodedError(err, http.StatusBadRequest)
	}
	if !verr.Empty() {
		return utils.CodedError(verr, http.StatusBadRequest)
	}
	return nil
}

func (r *Resource[T, P]) List(ctx context.Context, scopes ...Scope) ([]T, error) {
	done := observe(r.opts.Name, "list")

	rows := []T{}
	result := r.query(ctx, r.db, scopes).Order(r.opts.Order).Find(&rows)
	if result.Error != nil {
		err := r.storeError("listing rows", result.Error)
		done(err)
		return nil, err
	}

	done(nil)
	return rows, nil
}

func (r *Resource[T, P]) get(ctx context.Context, txn *gorm.DB, id uint, scopes []Scope) (T, error) {
	var row T
	result := r.query(ctx, txn, scopes).Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return row, r.notFound(id)
		}
		return row, r.storeError("retrieving row", result.Error)
	}
	return row, nil
}

func (r *Resource[T, P]) Detail(ctx context.Context, id uint, scopes ...Scope) (T, error) {
	done := observe(r.opts.Name, "detail")
	row, err := r.get(ctx, r.db, id, scopes)
	done(err)
	return row, err
}

func (r *Resource[T, P]) Create(ctx context.Context, row *T) error {
	done := observe(r.opts.Name, "create")

	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		P(row).SetPrimaryKey(0)

		if err := r.validate(txn, row); err != nil {
			return err
		}

		q := txn
		if len(r.opts.Nested) == 0 {
			q = q.Omit(clause.Associations)
		}
		if result := q.Create(row); result.Error != nil {
			return r.storeError("creating row", result.Error)
		}
		return nil
	})
	err = r.finish("creating row", err)
	done(err)
	if err != nil {
		return err
	}

	slog.Info("created "+r.opts.Name, "id", P(row).PrimaryKey(), logging.Code(logging.ENTITY_CREATE))
	return nil
}

// Update loads the row, lets apply modify it and persists the result. Scopes
// narrow the lookup, so rows outside them report not found.
func (r *Resource[T, P]) Update(ctx context.Context, id uint, apply func(row *T) error, scopes ...Scope) (T, error) {
	done := observe(r.opts.Name, "update")

	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var row T
		result := txn.Scopes(scopes...).Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).First(&row)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return r.notFound(id)
			}
			return r.storeError("retrieving row", result.Error)
		}

		if err := apply(&row); err != nil {
			if utils.HasResponseCode(err) {
				return err
			}
			return utils.CodedError(err, http.StatusBadRequest)
		}
		P(&row).SetPrimaryKey(id)

		if err := r.validate(txn, &row); err != nil {
			return err
		}

		if result := txn.Omit(clause.Associations).Save(&row); result.Error != nil {
			return r.storeError("updating row", result.Error)
		}

		for _, name := range r.opts.Nested {
			children := reflect.ValueOf(&row).Elem().FieldByName(name)
			if !children.IsValid() || children.Kind() != reflect.Slice || children.IsNil() {
				continue
			}
			if err := txn.Model(&row).Association(name).Unscoped().Replace(children.Interface()); err != nil {
				return r.storeError("replacing "+name, err)
			}
		}
		return nil
	})
	err = r.finish("updating row", err)
	if err != nil {
		done(err)
		var zero T
		return zero, err
	}
	done(nil)

	slog.Info("updated "+r.opts.Name, "id", id, logging.Code(logging.ENTITY_UPDATE))
	return r.get(ctx, r.db, id, nil)
}

func (r *Resource[T, P]) Delete(ctx context.Context, id uint, scopes ...Scope) error {
	done := observe(r.opts.Name, "delete")

	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var row T
		result := txn.Scopes(scopes...).Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).First(&row)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return r.notFound(id)
			}
			return r.storeError("retrieving row", result.Error)
		}

		if result := txn.Delete(&row); result.Error != nil {
			return r.storeError("deleting row", result.Error)
		}
		return nil
	})
	err = r.finish("deleting row", err)
	done(err)
	if err != nil {
		return err
	}

	slog.Info("deleted "+r.opts.Name, "id", id, logging.Code(logging.ENTITY_DELETE))
	return nil
}

// BulkDelete removes every row whose key is in ids with a single statement and
// returns how many rows were removed. Unknown keys are ignored.
func (r *Resource[T, P]) BulkDelete(ctx context.Context, ids []uint, scopes ...Scope) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	done := observe(r.opts.Name, "bulk_delete")

	result := r.db.WithContext(ctx).Scopes(scopes...).Where("id IN ?", ids).Delete(new(T))
	if result.Error != nil {
		err := r.storeError("bulk deleting rows", result.Error)
		done(err)
		return 0, err
	}
	done(nil)

	slog.Info("bulk deleted "+r.opts.Name, "requested", len(ids), "deleted", result.RowsAffected, logging.Code(logging.ENTITY_BULK_DELETE))
	return result.RowsAffected, nil
}
