package diagnostic

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Diagnostic is one clinical encounter's written record. Records are never
// hard-deleted; documents are removed individually.
type Diagnostic struct {
	ID              string               `json:"id" gorm:"type:uuid;primaryKey"`
	PatientID       string               `json:"patientId" gorm:"not null;index"`
	DoctorID        string               `json:"doctorId" gorm:"not null"`
	Title           string               `json:"title" gorm:"not null"`
	Description     string               `json:"description" gorm:"not null"`
	Symptoms        string               `json:"symptoms" gorm:"not null"`
	Diagnosis       string               `json:"diagnosis" gorm:"not null"`
	Treatment       string               `json:"treatment" gorm:"not null"`
	Observations    *string              `json:"observations"`
	NextAppointment *time.Time           `json:"nextAppointment"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
	Documents       []DiagnosticDocument `json:"documents" gorm:"foreignKey:DiagnosticID"`
}

// DiagnosticDocument is one stored file attached to a Diagnostic. A row
// should exist only while its blob exists at FilePath; see the compensating
// deletes in the service layer.
type DiagnosticDocument struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey"`
	DiagnosticID   string    `json:"diagnosticId" gorm:"type:uuid;not null;index"`
	Filename       string    `json:"filename" gorm:"not null"`
	StoredFilename string    `json:"storedFilename" gorm:"not null"`
	FilePath       string    `json:"filePath" gorm:"not null"`
	FileType       string    `json:"fileType" gorm:"not null"`
	MimeType       string    `json:"mimeType" gorm:"not null"`
	FileSize       int64     `json:"fileSize" gorm:"not null"`
	Description    *string   `json:"description"`
	UploadedBy     string    `json:"uploadedBy" gorm:"not null"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (d *Diagnostic) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func (d *DiagnosticDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
