package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MariaDB server error numbers the repositories translate into domain
// errors.
const (
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
	errRowIsReferenced = 1451
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
)

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

// IsDuplicate reports a unique-key violation.
func IsDuplicate(err error) bool {
	return mysqlErrorNumber(err) == errDuplicateEntry
}

// IsForeignKeyViolation reports an insert or update that references a
// missing row, or a delete of a row that is still referenced.
func IsForeignKeyViolation(err error) bool {
	n := mysqlErrorNumber(err)
	return n == errNoReferencedRow || n == errRowIsReferenced
}

// IsRetryable reports lock errors after which the transaction may simply
// be run again.
func IsRetryable(err error) bool {
	n := mysqlErrorNumber(err)
	return n == errLockDeadlock || n == errLockWaitTimeout
}
