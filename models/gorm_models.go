package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormSession mirrors SessionRecord for the GORM driver.
type GormSession struct {
	gorm.Model
	SessionID      string         `gorm:"uniqueIndex;not null"`
	Name           string         `gorm:"not null"`
	Status         string         `gorm:"not null"`
	Scene          string         `gorm:"type:text"`
	Players        datatypes.JSON `gorm:"type:jsonb"`
	Characters     datatypes.JSON `gorm:"type:jsonb"`
	MaxPlayers     int            `gorm:"default:6"`
	CurrentTurn    int            `gorm:"default:0"`
	RoundNumber    int            `gorm:"default:1"`
	TotalMessages  int            `gorm:"default:0"`
	TotalDiceRolls int            `gorm:"default:0"`
}

// GormMessage mirrors MessageRecord.
type GormMessage struct {
	gorm.Model
	SessionID  string `gorm:"index;not null"`
	SenderID   string `gorm:"not null"`
	SenderName string `gorm:"not null"`
	Kind       string `gorm:"not null"`
	Content    string `gorm:"type:text;not null"`
	IsOOC      bool   `gorm:"default:false"`
}

// GormDiceRoll mirrors DiceRollRecord.
type GormDiceRoll struct {
	gorm.Model
	SessionID  string         `gorm:"index;not null"`
	PlayerID   string         `gorm:"not null"`
	PlayerName string         `gorm:"not null"`
	Notation   string         `gorm:"not null"`
	Rolls      datatypes.JSON `gorm:"type:jsonb"`
	Total      int            `gorm:"not null"`
	Purpose    string
	Skill      string
	DC         int
	Success    *bool
}

// GormCharacter mirrors CharacterRecord. The sheet itself stays a JSON
// blob so sheet layout changes never need a migration.
type GormCharacter struct {
	gorm.Model
	CharacterID string         `gorm:"uniqueIndex;not null"`
	OwnerID     string         `gorm:"index;not null"`
	Name        string         `gorm:"not null"`
	Sheet       datatypes.JSON `gorm:"type:jsonb;not null"`
}
