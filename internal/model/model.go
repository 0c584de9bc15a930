package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&LibraryInfo{},
	&Sequence{},
	&StatusSample{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// LibraryInfo describes the sequence library held in this database
type LibraryInfo struct {
	gorm.Model
	Name          string `json:"name" gorm:"size:127"`
	Description   string `json:"description" gorm:"size:255"`
	FormatVersion uint8  `json:"formatVersion"`
}

func (*LibraryInfo) TableName() string {
	return "library_infos"
}

////////////////////////
// SEQUENCES
////////////////////////

// Sequence is one saved input sequence. Data is the Frame Codec byte stream
// exactly as it would be written to a .rwi file.
type Sequence struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name        string            `json:"name" gorm:"size:255;uniqueIndex"`
	Entries     int               `json:"entries"`
	TotalFrames int               `json:"totalFrames"`
	Data        []byte            `json:"-"`
	Meta        datatypes.JSONMap `json:"meta"`
}

func (*Sequence) TableName() string {
	return "sequences"
}

////////////////////////
// TELEMETRY
////////////////////////

// StatusSample is a periodic engine status snapshot kept when no telemetry
// database is reachable.
type StatusSample struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	Time        time.Time `json:"time" gorm:"index"`
	Session     string    `json:"session" gorm:"size:36;index"`
	Mode        string    `json:"mode" gorm:"size:16"`
	Entries     int       `json:"entries"`
	TotalFrames int       `json:"totalFrames"`
	CursorIndex int       `json:"cursorIndex"`
	CursorRep   int       `json:"cursorRepeat"`
}

func (*StatusSample) TableName() string {
	return "status_samples"
}
