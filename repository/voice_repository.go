package repository

import (
	"fmt"

	"gorm.io/gorm"

	"melodizr/model"
)

// VoiceRepository defines the interface for the voice library, backed by
// GORM.
type VoiceRepository interface {
	CreateVoice(voice *model.Voice) error
	GetVoiceByID(id string) (*model.Voice, error)
	GetVoicesByUserID(userID int64) ([]*model.Voice, error)
	UpdateVoiceTitle(id string, title string) error
	DeleteVoice(id string) error
}

// gormVoiceRepository implements VoiceRepository over GORM.
type gormVoiceRepository struct {
	db *gorm.DB
}

// NewGormVoiceRepository creates a new gormVoiceRepository.
func NewGormVoiceRepository(db *gorm.DB) VoiceRepository {
	return &gormVoiceRepository{db: db}
}

// CreateVoice saves a voice to the library.
func (r *gormVoiceRepository) CreateVoice(voice *model.Voice) error {
	if err := r.db.Create(voice).Error; err != nil {
		return fmt.Errorf("failed to create voice %s: %w", voice.ID, err)
	}
	return nil
}

// GetVoiceByID retrieves a voice, returning nil when it does not exist.
func (r *gormVoiceRepository) GetVoiceByID(id string) (*model.Voice, error) {
	var voice model.Voice
	err := r.db.First(&voice, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil // Voice not found
		}
		return nil, fmt.Errorf("failed to query voice %s: %w", id, err)
	}
	return &voice, nil
}

// GetVoicesByUserID retrieves a user's voice library, newest first.
func (r *gormVoiceRepository) GetVoicesByUserID(userID int64) ([]*model.Voice, error) {
	var voices []*model.Voice
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&voices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query voices for user %d: %w", userID, err)
	}
	return voices, nil
}

// UpdateVoiceTitle renames a voice.
func (r *gormVoiceRepository) UpdateVoiceTitle(id string, title string) error {
	res := r.db.Model(&model.Voice{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("failed to rename voice %s: %w", id, res.Error)
	}
	return nil
}

// DeleteVoice removes a voice. Tracks converted from it keep their one-way
// original_voice_id reference; deletion never cascades.
func (r *gormVoiceRepository) DeleteVoice(id string) error {
	if err := r.db.Delete(&model.Voice{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete voice %s: %w", id, err)
	}
	return nil
}
