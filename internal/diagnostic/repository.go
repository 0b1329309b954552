package diagnostic

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

var ErrDiagnosticNotFound = errors.New("diagnostic not found")
var ErrDocumentNotFound = errors.New("document not found")

// Pagination describes one page of a patient's record list.
type Pagination struct {
	Total           int64 `json:"total"`
	Page            int   `json:"page"`
	Limit           int   `json:"limit"`
	TotalPages      int   `json:"totalPages"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

func NewPagination(total int64, page, limit int) Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		Total:           total,
		Page:            page,
		Limit:           limit,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

// SearchFilter holds the optional predicates of a diagnostic search. Date
// bounds are inclusive and apply to the record's creation time.
type SearchFilter struct {
	PatientID string
	Diagnosis string
	DateFrom  *time.Time
	DateTo    *time.Time
}

type Repository interface {
	Create(ctx context.Context, diagnostic *Diagnostic) error
	FindByID(ctx context.Context, id string) (*Diagnostic, error)
	ListByPatient(ctx context.Context, patientID string, page, limit int) ([]Diagnostic, Pagination, error)
	Update(ctx context.Context, id string, fields map[string]any) (*Diagnostic, error)
	AppendDocuments(ctx context.Context, diagnosticID string, documents []DiagnosticDocument) (*Diagnostic, error)
	FindDocumentByID(ctx context.Context, id string) (*DiagnosticDocument, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocumentsByPatient(ctx context.Context, patientID string, page, limit int) ([]DiagnosticDocument, Pagination, error)
	Search(ctx context.Context, filter SearchFilter) ([]Diagnostic, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new diagnostic repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// Create inserts the diagnostic and all its initial document rows in a
// single transaction; either everything lands or nothing does.
func (r *RepositoryImpl) Create(ctx context.Context, diagnostic *Diagnostic) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		diagnostic.CreatedAt = now
		diagnostic.UpdatedAt = now

		if err := tx.Create(diagnostic).Error; err != nil {
			return err
		}

		return tx.Preload("Documents").First(diagnostic, "id = ?", diagnostic.ID).Error
	})
}

// FindByID fetches a diagnostic with its documents eagerly attached.
// Absence is not an error: a missing id returns (nil, nil).
func (r *RepositoryImpl) FindByID(ctx context.Context, id string) (*Diagnostic, error) {
	var diagnostic Diagnostic
	err := r.db.WithContext(ctx).
		Preload("Documents").
		First(&diagnostic, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &diagnostic, nil
}

func (r *RepositoryImpl) ListByPatient(ctx context.Context, patientID string, page, limit int) ([]Diagnostic, Pagination, error) {
	var diagnostics []Diagnostic
	var total int64

	// Count total records
	if err := r.db.WithContext(ctx).Model(&Diagnostic{}).
		Where("patient_id = ?", patientID).
		Count(&total).Error; err != nil {
		return diagnostics, Pagination{}, err
	}

	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Preload("Documents").
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&diagnostics).Error

	return diagnostics, NewPagination(total, page, limit), err
}

// Update applies a partial field map. Only the supplied columns change;
// updated_at advances.
func (r *RepositoryImpl) Update(ctx context.Context, id string, fields map[string]any) (*Diagnostic, error) {
	fields["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&Diagnostic{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrDiagnosticNotFound
	}

	return r.FindByID(ctx, id)
}

// AppendDocuments verifies the diagnostic still exists inside the same
// transaction as the insert, then returns it with the full document set.
// A diagnostic that vanished since the caller's earlier check surfaces as
// ErrDiagnosticNotFound, an ordinary transaction failure.
func (r *RepositoryImpl) AppendDocuments(ctx context.Context, diagnosticID string, documents []DiagnosticDocument) (*Diagnostic, error) {
	var diagnostic Diagnostic

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&diagnostic, "id = ?", diagnosticID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDiagnosticNotFound
			}
			return err
		}

		for i := range documents {
			documents[i].DiagnosticID = diagnosticID
		}
		if err := tx.Create(&documents).Error; err != nil {
			return err
		}

		return tx.Preload("Documents").First(&diagnostic, "id = ?", diagnosticID).Error
	})
	if err != nil {
		return nil, err
	}

	return &diagnostic, nil
}

func (r *RepositoryImpl) FindDocumentByID(ctx context.Context, id string) (*DiagnosticDocument, error) {
	var document DiagnosticDocument
	err := r.db.WithContext(ctx).First(&document, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &document, nil
}

func (r *RepositoryImpl) DeleteDocument(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&DiagnosticDocument{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *RepositoryImpl) ListDocumentsByPatient(ctx context.Context, patientID string, page, limit int) ([]DiagnosticDocument, Pagination, error) {
	var documents []DiagnosticDocument
	var total int64

	base := r.db.WithContext(ctx).Model(&DiagnosticDocument{}).
		Joins("JOIN diagnostics ON diagnostics.id = diagnostic_documents.diagnostic_id").
		Where("diagnostics.patient_id = ?", patientID).
		Session(&gorm.Session{})

	if err := base.Count(&total).Error; err != nil {
		return documents, Pagination{}, err
	}

	offset := (page - 1) * limit
	err := base.
		Order("diagnostic_documents.created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&documents).Error

	return documents, NewPagination(total, page, limit), err
}

// Search runs the typed filter. The diagnosis match is a case-insensitive
// substring; the result set is assumed bounded, so no pagination here.
func (r *RepositoryImpl) Search(ctx context.Context, filter SearchFilter) ([]Diagnostic, error) {
	query := r.db.WithContext(ctx).Preload("Documents").Order("created_at DESC")

	if filter.PatientID != "" {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if filter.Diagnosis != "" {
		query = query.Where("LOWER(diagnosis) LIKE ?", "%"+strings.ToLower(filter.Diagnosis)+"%")
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		// inclusive upper bound: anything on that day counts
		query = query.Where("created_at < ?", filter.DateTo.AddDate(0, 0, 1))
	}

	var diagnostics []Diagnostic
	err := query.Find(&diagnostics).Error
	return diagnostics, err
}
