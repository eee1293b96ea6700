package database

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the service reacts to.
const (
	erDupEntry                = 1062
	erLockWaitTimeout         = 1205
	erLockDeadlock            = 1213
	erRowIsReferenced         = 1451
	erCheckConstraintViolated = 3819
)

// IsLockTimeout reports whether err means the unit-of-work gave up waiting
// for a row lock: InnoDB's lock wait timeout, a deadlock victim, or the
// request deadline passing first.  A cancelled context is not a timeout;
// see IsCancelled.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == erLockWaitTimeout || me.Number == erLockDeadlock
	}
	return false
}

// IsCancelled reports whether err comes from the caller abandoning the
// request, typically a client disconnect.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// DuplicateKey reports whether err is a unique-key violation and, if so,
// the name of the violated key without its table prefix.
func DuplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != erDupEntry {
		return "", false
	}
	// Message shape: Duplicate entry '7-u1' for key 'bookings.uq_bookings_active'
	msg := me.Message
	i := strings.LastIndex(msg, "for key '")
	if i < 0 {
		return "", true
	}
	key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key, true
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erCheckConstraintViolated
}

// IsRowReferenced reports whether err is a delete refused by a foreign key
// that still points at the row.
func IsRowReferenced(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erRowIsReferenced
}
