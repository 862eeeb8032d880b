package store

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/rta_backend/models"
	"gorm.io/gorm"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func mysqlErrorNumber(err error) uint16 {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number
	}
	return 0
}

func isDuplicateKeyErr(err error) bool {
	return mysqlErrorNumber(err) == mysqlErrDuplicateEntry || errors.Is(err, gorm.ErrDuplicatedKey)
}

// mapError turns driver failures into ledger errors. notFound is the reason
// used when the row does not exist.
func mapError(err error, notFound error, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NotFoundError(notFound, "%s", key)
	}
	switch mysqlErrorNumber(err) {
	case mysqlErrLockWaitTimeout:
		return models.ConcurrencyError(models.ErrLockTimeout, "%s", key)
	case mysqlErrDeadlock:
		return models.ConcurrencyError(models.ErrDeadlock, "%s", key)
	case mysqlErrDuplicateEntry:
		return ErrDuplicate
	}
	return err
}
