// Package services holds the application services that sit between the
// live engine and the persistence layer.
package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/rpgserver/character"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/persistence"
)

// CharacterService loads and stores character sheets. Sheets are read
// on every action resolution, so loaded sheets are cached; SaveSheet
// invalidates the cache entry.
type CharacterService struct {
	db persistence.Database

	mutex sync.RWMutex
	cache map[string]*character.Sheet
}

func NewCharacterService(db persistence.Database) *CharacterService {
	return &CharacterService{
		db:    db,
		cache: make(map[string]*character.Sheet),
	}
}

// SheetFor returns the sheet for a character id.
func (s *CharacterService) SheetFor(characterID string) (*character.Sheet, error) {
	s.mutex.RLock()
	cached, ok := s.cache[characterID]
	s.mutex.RUnlock()
	if ok {
		return cached, nil
	}

	record, err := s.db.LoadCharacter(characterID)
	if err != nil {
		return nil, err
	}

	var sheet character.Sheet
	if err := json.Unmarshal(record.Sheet, &sheet); err != nil {
		return nil, fmt.Errorf("decode character %s: %w", characterID, err)
	}
	sheet.ID = record.CharacterID

	s.mutex.Lock()
	s.cache[characterID] = &sheet
	s.mutex.Unlock()
	return &sheet, nil
}

// SaveSheet stores a sheet, minting an id for a new character.
func (s *CharacterService) SaveSheet(ownerID string, sheet *character.Sheet) error {
	if sheet.ID == "" {
		sheet.ID = uuid.New().String()
	}

	data, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("encode character %s: %w", sheet.ID, err)
	}

	err = s.db.SaveCharacter(models.CharacterRecord{
		CharacterID: sheet.ID,
		OwnerID:     ownerID,
		Name:        sheet.Name,
		Sheet:       data,
	})
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.cache[sheet.ID] = sheet
	s.mutex.Unlock()
	return nil
}
