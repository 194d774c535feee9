// Package dao implements the persistence layer on top of sqlx. Each table has
// its own DAO; write paths take a *database.Transaction so the service layer
// controls transaction boundaries.
package dao

import "github.com/jmoiron/sqlx"

// sqlxIn expands an IN clause and rebinds the query for MySQL placeholders.
func sqlxIn(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.QUESTION, q), a, nil
}
