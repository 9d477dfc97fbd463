// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package sqlconn

// Generic database/sql support: withTx() to do work in a transaction
// that can be retried, scanRows() to loop over the results of a
// multi-row SELECT, and the statement classification that decides
// between the two.

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/lib/pq"
)

// withTx calls some function with a database/sql transaction object.
// If f panics or returns a non-nil error, rolls the transaction back;
// otherwise commits it before returning.  Returns the error value from
// f, or some other error related to transaction management.
func withTx(ctx context.Context, db *sql.DB, readOnly bool, f func(*sql.Tx) error) (err error) {
	var (
		tx   *sql.Tx
		done bool
	)

	// If we have a failure, roll back; and if that rollback fails
	// and we don't yet have an error, set the error
	defer func() {
		if tx != nil && !done {
			err2 := tx.Rollback()
			if err == nil {
				err = err2
			}
		}
	}()

	// Run in a loop, repeating the work on serialization errors
	for {
		tx, err = db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
		if err != nil {
			tx = nil
			return
		}

		err = f(tx)

		if err == nil {
			err = tx.Commit()
			done = true
		}

		if isSerializationFailure(err) {
			if !done {
				err = tx.Rollback()
				if err == sql.ErrTxDone {
					err = nil
				} else if err != nil {
					return
				}
			}
			tx = nil
			done = false
			continue
		}

		break
	}
	return
}

func isSerializationFailure(err error) bool {
	pqerr, ok := err.(*pq.Error)
	return ok && pqerr.Code == "40001"
}

// scanRows calls a function for each row in the result.  The callback
// function should only call the Scan() method on the provided Rows
// object; this function will take care of advancing through the list
// of rows and closing the iterator as required.
func scanRows(rows *sql.Rows, f func() error) (err error) {
	var done bool
	defer func() {
		if !done {
			err2 := rows.Close()
			if err == nil {
				err = err2
			}
		}
	}()

	for rows.Next() {
		err = f()
		if err != nil {
			return
		}
	}
	done = true
	err = rows.Err()
	return
}

// queryKeywords start statements that return rows.
var queryKeywords = map[string]bool{
	"EXPLAIN": true,
	"SELECT":  true,
	"SHOW":    true,
	"TABLE":   true,
	"VALUES":  true,
	"WITH":    true,
}

// returnsRows guesses whether a statement produces a row set.
func returnsRows(statement string) bool {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return false
	}
	keyword := strings.ToUpper(strings.TrimLeft(fields[0], "("))
	if queryKeywords[keyword] {
		return true
	}
	return strings.Contains(strings.ToUpper(statement), "RETURNING")
}

// cell makes a scanned value presentable: text columns come back
// from most drivers as bytes.
func cell(v interface{}) interface{} {
	if b, ok := v.([]byte); ok && utf8.Valid(b) {
		return string(b)
	}
	return v
}
