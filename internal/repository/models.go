package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Object types stored in the repository.
const (
	TypeCollection = "collection"
	TypeObject     = "object"
)

// Object is a published repository record. Collections and digital objects
// share the table; objects point at their collection through
// IsMemberOfCollection.
type Object struct {
	UUID                 string    `gorm:"primaryKey;size:36" json:"uuid"`
	ObjectType           string    `gorm:"not null;index;size:16" json:"object_type"`
	IsMemberOfCollection string    `gorm:"index;size:36" json:"is_member_of_collection,omitempty"`
	Handle               string    `json:"handle,omitempty"`
	URI                  string    `gorm:"index" json:"uri"`
	Mods                 string    `gorm:"type:text" json:"mods,omitempty"`
	Thumbnail            string    `json:"thumbnail,omitempty"`
	Master               string    `json:"master,omitempty"`
	Checksum             string    `gorm:"size:64" json:"checksum,omitempty"`
	FileSize             int64     `json:"file_size,omitempty"`
	MimeType             string    `gorm:"size:128" json:"mime_type,omitempty"`
	DisplayRecord        string    `gorm:"type:text" json:"display_record,omitempty"`
	Parts                string    `gorm:"type:text" json:"parts,omitempty"`
	Transcript           string    `gorm:"type:text" json:"transcript,omitempty"`
	TranscriptSearch     string    `gorm:"type:text" json:"transcript_search,omitempty"`
	IsCompound           bool      `gorm:"default:false" json:"is_compound"`
	IsPublished          bool      `gorm:"default:false" json:"is_published"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not mint one.
func (o *Object) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	return nil
}

// TableName specifies the table name for gorm.
func (Object) TableName() string {
	return "repo_objects"
}

// Transcript is a transcription of an object keyed by its call number.
type Transcript struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CallNumber string    `gorm:"uniqueIndex;not null" json:"call_number"`
	Transcript string    `gorm:"type:text" json:"transcript"`
	SearchText string    `gorm:"type:text" json:"search_text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for gorm.
func (Transcript) TableName() string {
	return "repo_transcripts"
}
