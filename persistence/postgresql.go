package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// PostgreSQL driver
	_ "github.com/lib/pq"

	"github.com/wfunc/rpgserver/models"
)

// PostgreSQL implements Database on database/sql directly.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id SERIAL PRIMARY KEY,
            session_id VARCHAR(255) UNIQUE NOT NULL,
            name VARCHAR(255) NOT NULL,
            status VARCHAR(50) NOT NULL,
            scene TEXT,
            players JSONB,
            characters JSONB,
            max_players INT DEFAULT 6,
            current_turn INT DEFAULT 0,
            round_number INT DEFAULT 1,
            total_messages INT DEFAULT 0,
            total_dice_rolls INT DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            session_id VARCHAR(255) NOT NULL,
            sender_id VARCHAR(255) NOT NULL,
            sender_name VARCHAR(255) NOT NULL,
            kind VARCHAR(50) NOT NULL,
            content TEXT NOT NULL,
            is_ooc BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id)`,
		`CREATE TABLE IF NOT EXISTS dice_rolls (
            id SERIAL PRIMARY KEY,
            session_id VARCHAR(255) NOT NULL,
            player_id VARCHAR(255) NOT NULL,
            player_name VARCHAR(255) NOT NULL,
            notation VARCHAR(50) NOT NULL,
            rolls JSONB,
            total INT NOT NULL,
            purpose VARCHAR(255),
            skill VARCHAR(100),
            dc INT,
            success BOOLEAN,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_dice_rolls_session ON dice_rolls (session_id)`,
		`CREATE TABLE IF NOT EXISTS characters (
            id SERIAL PRIMARY KEY,
            character_id VARCHAR(255) UNIQUE NOT NULL,
            owner_id VARCHAR(255) NOT NULL,
            name VARCHAR(255) NOT NULL,
            sheet JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgreSQL) SaveSessionState(record models.SessionRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	characters, err := json.Marshal(record.Characters)
	if err != nil {
		return err
	}

	_, err = p.db.Exec(`
        INSERT INTO sessions (session_id, name, status, scene, players, characters,
            max_players, current_turn, round_number, total_messages, total_dice_rolls, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP)
        ON CONFLICT (session_id) DO UPDATE SET
            name = EXCLUDED.name,
            status = EXCLUDED.status,
            scene = EXCLUDED.scene,
            players = EXCLUDED.players,
            characters = EXCLUDED.characters,
            max_players = EXCLUDED.max_players,
            current_turn = EXCLUDED.current_turn,
            round_number = EXCLUDED.round_number,
            total_messages = EXCLUDED.total_messages,
            total_dice_rolls = EXCLUDED.total_dice_rolls,
            updated_at = CURRENT_TIMESTAMP
    `, record.SessionID, record.Name, record.Status, record.Scene, players, characters,
		record.MaxPlayers, record.CurrentTurn, record.RoundNumber,
		record.TotalMessages, record.TotalDiceRolls)
	return err
}

func (p *PostgreSQL) LoadSessionState(sessionID string) (models.SessionRecord, error) {
	var record models.SessionRecord
	var players, characters []byte

	err := p.db.QueryRow(`
        SELECT session_id, name, status, scene, players, characters,
            max_players, current_turn, round_number, total_messages, total_dice_rolls, updated_at
        FROM sessions WHERE session_id = $1
    `, sessionID).Scan(&record.SessionID, &record.Name, &record.Status, &record.Scene,
		&players, &characters, &record.MaxPlayers, &record.CurrentTurn,
		&record.RoundNumber, &record.TotalMessages, &record.TotalDiceRolls, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return models.SessionRecord{}, err
	}

	if len(players) > 0 {
		if err := json.Unmarshal(players, &record.Players); err != nil {
			return models.SessionRecord{}, err
		}
	}
	if len(characters) > 0 {
		if err := json.Unmarshal(characters, &record.Characters); err != nil {
			return models.SessionRecord{}, err
		}
	}
	return record, nil
}

func (p *PostgreSQL) SaveMessage(record models.MessageRecord) error {
	_, err := p.db.Exec(`
        INSERT INTO messages (session_id, sender_id, sender_name, kind, content, is_ooc)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, record.SessionID, record.SenderID, record.SenderName, record.Kind, record.Content, record.IsOOC)
	return err
}

func (p *PostgreSQL) RecentMessages(sessionID string, limit int) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.db.Query(`
        SELECT session_id, sender_id, sender_name, kind, content, is_ooc, created_at
        FROM messages WHERE session_id = $1
        ORDER BY created_at DESC LIMIT $2
    `, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MessageRecord
	for rows.Next() {
		var record models.MessageRecord
		if err := rows.Scan(&record.SessionID, &record.SenderID, &record.SenderName,
			&record.Kind, &record.Content, &record.IsOOC, &record.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for replay.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (p *PostgreSQL) SaveDiceRoll(record models.DiceRollRecord) error {
	rolls, err := json.Marshal(record.Rolls)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
        INSERT INTO dice_rolls (session_id, player_id, player_name, notation, rolls, total, purpose, skill, dc, success)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, record.SessionID, record.PlayerID, record.PlayerName, record.Notation, rolls,
		record.Total, record.Purpose, record.Skill, record.DC, record.Success)
	return err
}

func (p *PostgreSQL) SaveCharacter(record models.CharacterRecord) error {
	_, err := p.db.Exec(`
        INSERT INTO characters (character_id, owner_id, name, sheet, updated_at)
        VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
        ON CONFLICT (character_id) DO UPDATE SET
            owner_id = EXCLUDED.owner_id,
            name = EXCLUDED.name,
            sheet = EXCLUDED.sheet,
            updated_at = CURRENT_TIMESTAMP
    `, record.CharacterID, record.OwnerID, record.Name, record.Sheet)
	return err
}

func (p *PostgreSQL) LoadCharacter(characterID string) (models.CharacterRecord, error) {
	var record models.CharacterRecord
	err := p.db.QueryRow(`
        SELECT character_id, owner_id, name, sheet, created_at, updated_at
        FROM characters WHERE character_id = $1
    `, characterID).Scan(&record.CharacterID, &record.OwnerID, &record.Name,
		&record.Sheet, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CharacterRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return models.CharacterRecord{}, err
	}
	return record, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
