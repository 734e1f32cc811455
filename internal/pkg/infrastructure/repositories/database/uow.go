package database

import (
	"errors"

	"gorm.io/gorm"
)

//ErrUnitOfWorkDone is returned when Commit is called on a unit of work that has already ended
var ErrUnitOfWorkDone = errors.New("unit of work already committed or rolled back")

//UnitOfWork binds every repository to a single database transaction. Callers must Commit
//explicitly, a deferred Rollback after a successful Commit is a no-op. Units of work do not nest.
type UnitOfWork interface {
	Repositories

	Commit() error
	Rollback() error
}

type unitOfWork struct {
	repositories
	tx   *gorm.DB
	done bool
}

func (u *unitOfWork) Commit() error {
	if u.done {
		return ErrUnitOfWorkDone
	}
	u.done = true
	return u.tx.Commit().Error
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback().Error
}
