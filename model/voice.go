package model

import "time"

// VoiceType classifies what the user performed into the microphone.
type VoiceType string

const (
	VoiceHumming VoiceType = "humming"
	VoiceBeatbox VoiceType = "beatbox"
)

// SourceKind records how a voice's audio entered the system.
type SourceKind string

const (
	SourceRecording SourceKind = "recording"
	SourceFile      SourceKind = "file"
)

// Voice is a saved raw capture, independent of any project. A voice may be
// the origin of zero or more tracks; deleting a voice never cascades to the
// tracks converted from it.
type Voice struct {
	ID             string     `json:"id" gorm:"primaryKey;size:64"`
	UserID         int64      `json:"userId" gorm:"index"`
	Title          string     `json:"title" gorm:"size:255"`
	URI            string     `json:"uri" gorm:"size:767"`
	DurationMillis int64      `json:"durationMillis"`
	Type           VoiceType  `json:"type" gorm:"size:32"`
	SourceKind     SourceKind `json:"sourceKind" gorm:"size:32"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// TableName pins the GORM table name.
func (Voice) TableName() string { return "voices" }
