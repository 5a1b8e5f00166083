package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/rpgserver/models"
)

// GormPostgreSQL implements Database on top of GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormSession{},
		&models.GormMessage{},
		&models.GormDiceRoll{},
		&models.GormCharacter{},
	)
}

// SaveSessionState upserts the snapshot keyed by session id.
func (p *GormPostgreSQL) SaveSessionState(record models.SessionRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	characters, err := json.Marshal(record.Characters)
	if err != nil {
		return err
	}

	var row models.GormSession
	result := p.db.Where("session_id = ?", record.SessionID).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		row = models.GormSession{SessionID: record.SessionID}
	} else if result.Error != nil {
		return result.Error
	}

	row.Name = record.Name
	row.Status = record.Status
	row.Scene = record.Scene
	row.Players = players
	row.Characters = characters
	row.MaxPlayers = record.MaxPlayers
	row.CurrentTurn = record.CurrentTurn
	row.RoundNumber = record.RoundNumber
	row.TotalMessages = record.TotalMessages
	row.TotalDiceRolls = record.TotalDiceRolls

	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) LoadSessionState(sessionID string) (models.SessionRecord, error) {
	var row models.GormSession
	if err := p.db.Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SessionRecord{}, ErrRecordNotFound
		}
		return models.SessionRecord{}, err
	}

	record := models.SessionRecord{
		SessionID:      row.SessionID,
		Name:           row.Name,
		Status:         row.Status,
		Scene:          row.Scene,
		MaxPlayers:     row.MaxPlayers,
		CurrentTurn:    row.CurrentTurn,
		RoundNumber:    row.RoundNumber,
		TotalMessages:  row.TotalMessages,
		TotalDiceRolls: row.TotalDiceRolls,
		UpdatedAt:      row.UpdatedAt,
	}
	if len(row.Players) > 0 {
		if err := json.Unmarshal(row.Players, &record.Players); err != nil {
			return models.SessionRecord{}, err
		}
	}
	if len(row.Characters) > 0 {
		if err := json.Unmarshal(row.Characters, &record.Characters); err != nil {
			return models.SessionRecord{}, err
		}
	}
	return record, nil
}

func (p *GormPostgreSQL) SaveMessage(record models.MessageRecord) error {
	row := models.GormMessage{
		SessionID:  record.SessionID,
		SenderID:   record.SenderID,
		SenderName: record.SenderName,
		Kind:       record.Kind,
		Content:    record.Content,
		IsOOC:      record.IsOOC,
	}
	return p.db.Create(&row).Error
}

func (p *GormPostgreSQL) RecentMessages(sessionID string, limit int) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.GormMessage
	err := p.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// Oldest first for replay.
	records := make([]models.MessageRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		records = append(records, models.MessageRecord{
			SessionID:  row.SessionID,
			SenderID:   row.SenderID,
			SenderName: row.SenderName,
			Kind:       row.Kind,
			Content:    row.Content,
			IsOOC:      row.IsOOC,
			CreatedAt:  row.CreatedAt,
		})
	}
	return records, nil
}

func (p *GormPostgreSQL) SaveDiceRoll(record models.DiceRollRecord) error {
	rolls, err := json.Marshal(record.Rolls)
	if err != nil {
		return err
	}
	row := models.GormDiceRoll{
		SessionID:  record.SessionID,
		PlayerID:   record.PlayerID,
		PlayerName: record.PlayerName,
		Notation:   record.Notation,
		Rolls:      rolls,
		Total:      record.Total,
		Purpose:    record.Purpose,
		Skill:      record.Skill,
		DC:         record.DC,
		Success:    record.Success,
	}
	return p.db.Create(&row).Error
}

// SaveCharacter upserts keyed by character id.
func (p *GormPostgreSQL) SaveCharacter(record models.CharacterRecord) error {
	var row models.GormCharacter
	result := p.db.Where("character_id = ?", record.CharacterID).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		row = models.GormCharacter{CharacterID: record.CharacterID}
	} else if result.Error != nil {
		return result.Error
	}

	row.OwnerID = record.OwnerID
	row.Name = record.Name
	row.Sheet = record.Sheet
	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) LoadCharacter(characterID string) (models.CharacterRecord, error) {
	var row models.GormCharacter
	if err := p.db.Where("character_id = ?", characterID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CharacterRecord{}, ErrRecordNotFound
		}
		return models.CharacterRecord{}, err
	}
	return models.CharacterRecord{
		CharacterID: row.CharacterID,
		OwnerID:     row.OwnerID,
		Name:        row.Name,
		Sheet:       row.Sheet,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// Transaction runs fn in a GORM transaction. GORM-only callers may
// depend on it directly; it is not part of the Database interface.
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
