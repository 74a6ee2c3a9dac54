// Package repository implements the engine's persistence ports on top of gorm.
package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// base carries the pool and resolves the connection for a call: the
// transaction stored in ctx when there is one, the pool otherwise.
type base struct {
	db *gorm.DB
}

func (b base) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return b.db.WithContext(ctx)
}

// Transactor runs functions inside a store transaction.
type Transactor struct {
	base
}

// NewTransactor creates a Transactor over db.
func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{base{db: db}}
}

// InTx runs fn in a transaction. Repositories called with the ctx passed to fn
// join that transaction. Nested calls reuse the outer transaction.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}
	var fnErr error
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(context.WithValue(ctx, txKey{}, tx))
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return classify("commit", err)
}
