// Package persistence is the write-behind store for session history.
// Two implementations exist, selected by config: the GORM driver and a
// plain database/sql driver. Both speak PostgreSQL.
package persistence

import (
	"errors"
	"fmt"

	"github.com/wfunc/rpgserver/config"
	"github.com/wfunc/rpgserver/models"
)

// ErrRecordNotFound is returned by every Load when nothing matches.
var ErrRecordNotFound = errors.New("record not found")

// Database is what the rest of the server sees.
type Database interface {
	SaveSessionState(record models.SessionRecord) error
	LoadSessionState(sessionID string) (models.SessionRecord, error)
	SaveMessage(record models.MessageRecord) error
	RecentMessages(sessionID string, limit int) ([]models.MessageRecord, error)
	SaveDiceRoll(record models.DiceRollRecord) error
	SaveCharacter(record models.CharacterRecord) error
	LoadCharacter(characterID string) (models.CharacterRecord, error)
	Close() error
}

// Open builds the Database the config asks for.
func Open(cfg config.DatabaseConfig) (Database, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "", "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "sql":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
