package audio

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxRawTextRunes bounds the text copy kept on a cache row.
const MaxRawTextRunes = 500

// AudioCache links a content identity to the object holding its audio.
// Key fields are never updated in place: a stale row is deleted and a new one
// inserted.
type AudioCache struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ContentIdentity string    `gorm:"column:content_identity;type:varchar(64);not null;uniqueIndex:idx_audio_cache_identity" json:"content_identity"`
	RawText         string    `gorm:"column:raw_text;type:text;not null" json:"raw_text"`
	Language        string    `gorm:"column:language;type:varchar(16);not null" json:"language"`
	Provider        string    `gorm:"column:provider;type:varchar(50);not null" json:"provider"`
	StorageKey      string    `gorm:"column:storage_key;type:varchar(500);not null;index" json:"storage_key"`
	ByteSize        *int64    `gorm:"column:byte_size" json:"byte_size,omitempty"`
	DurationSeconds *float64  `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;not null" json:"created_at"`
	LastAccessedAt  time.Time `gorm:"column:last_accessed_at;not null" json:"last_accessed_at"`
	AccessCount     int64     `gorm:"column:access_count;not null;default:0" json:"access_count"`
}

func (AudioCache) TableName() string { return "audio_cache" }

func (a *AudioCache) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.LastAccessedAt.IsZero() {
		a.LastAccessedAt = a.CreatedAt
	}
	if r := []rune(a.RawText); len(r) > MaxRawTextRunes {
		a.RawText = string(r[:MaxRawTextRunes])
	}
	return nil
}
