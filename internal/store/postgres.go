package store

import (
	"database/sql"
)

type PgBoardRepository struct {
	conn *sql.DB
}

func NewPgBoardRepository(dsn string) (*PgBoardRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgBoardRepository{conn: db}, nil
}

func (db *PgBoardRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgBoardRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
