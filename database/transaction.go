package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// txScope is one transaction or savepoint. hooks wait for the outermost commit.
type txScope struct {
	db    *gorm.DB
	hooks []func()
}

// TxManager runs a function inside one database transaction. Every SQLHandler
// call made with the context passed to fn joins that transaction.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise. A nested call
// runs under a savepoint of the outer transaction, so a failed statement
// inside it (e.g. a unique violation) leaves the outer transaction usable.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if parent, ok := scopeFromContext(ctx); ok {
		scope := &txScope{}
		err := parent.db.Transaction(func(sp *gorm.DB) error {
			scope.db = sp
			return fn(context.WithValue(ctx, txKey{}, scope))
		})
		if err == nil {
			parent.hooks = append(parent.hooks, scope.hooks...)
		}
		return err
	}

	scope := &txScope{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope.db = tx
		return fn(context.WithValue(ctx, txKey{}, scope))
	})
	if err != nil {
		return err
	}
	for _, hook := range scope.hooks {
		hook()
	}
	return nil
}

// AfterCommit runs fn once the outermost transaction carried by ctx commits,
// or right away when ctx carries none. fn is dropped if that transaction, or
// the savepoint it was registered in, rolls back.
func (m *TxManager) AfterCommit(ctx context.Context, fn func()) {
	if scope, ok := scopeFromContext(ctx); ok {
		scope.hooks = append(scope.hooks, fn)
		return
	}
	fn()
}

func scopeFromContext(ctx context.Context) (*txScope, bool) {
	scope, ok := ctx.Value(txKey{}).(*txScope)
	return scope, ok && scope != nil && scope.db != nil
}

func txFromContext(ctx context.Context) (*gorm.DB, bool) {
	scope, ok := scopeFromContext(ctx)
	if !ok {
		return nil, false
	}
	return scope.db, true
}
