package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"
)

const pgUniqueViolation = "23505"

// wrap attaches op to err and folds driver errors into ErrNotFound / ErrConflict.
func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return pkgerrors.Wrap(ErrNotFound, op)
	case isUniqueViolation(err):
		return pkgerrors.Wrapf(ErrConflict, "%s: %v", op, err)
	}
	return pkgerrors.Wrap(err, op)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// affected turns an update that touched nothing into ErrNotFound.
func affected(res sql.Result, err error, op string) error {
	if err != nil {
		return wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(err, op)
	}
	if n == 0 {
		return pkgerrors.Wrap(ErrNotFound, op)
	}
	return nil
}
