package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Atomic runs fn inside a transaction on db; any error or panic rolls back.
func Atomic(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}

// AtomicPair runs fn with one transaction on the regular database and one on
// the arbitrary database, committing the regular one first. Readers ignore
// answers whose applet_history_id does not resolve, so a failure between the
// two commits stays invisible. When both handles are the same pool a single
// transaction is used.
func AtomicPair(ctx context.Context, regular, arbitrary *gorm.DB, fn func(reg, arb *gorm.DB) error) (err error) {
	if arbitrary == nil || arbitrary == regular {
		return Atomic(ctx, regular, func(tx *gorm.DB) error { return fn(tx, tx) })
	}

	reg := regular.WithContext(ctx).Begin()
	if reg.Error != nil {
		return fmt.Errorf("begin regular: %w", reg.Error)
	}
	arb := arbitrary.WithContext(ctx).Begin()
	if arb.Error != nil {
		reg.Rollback()
		return fmt.Errorf("begin arbitrary: %w", arb.Error)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		arb.Rollback()
		reg.Rollback()
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err = fn(reg, arb); err != nil {
		return err
	}
	if err = reg.Commit().Error; err != nil {
		return fmt.Errorf("commit regular: %w", err)
	}
	committed = true
	if err = arb.Commit().Error; err != nil {
		arb.Rollback()
		return fmt.Errorf("commit arbitrary: %w", err)
	}
	return nil
}
