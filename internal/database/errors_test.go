package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestErrorClassification(t *testing.T) {
	dup := fmt.Errorf("inserting: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	fk := &mysql.MySQLError{Number: 1452}
	deadlock := &mysql.MySQLError{Number: 1213}
	plain := errors.New("boom")

	if !IsDuplicate(dup) || IsDuplicate(fk) || IsDuplicate(plain) {
		t.Error("IsDuplicate misclassified")
	}
	if !IsForeignKeyViolation(fk) || IsForeignKeyViolation(dup) {
		t.Error("IsForeignKeyViolation misclassified")
	}
	if !IsRetryable(deadlock) || IsRetryable(plain) {
		t.Error("IsRetryable misclassified")
	}
}
