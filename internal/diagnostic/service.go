package diagnostic

import (
	"context"
	apiError "diagnostic-service/internal/errors"
	"diagnostic-service/internal/remote"
	"diagnostic-service/internal/upload"
	"diagnostic-service/internal/worker"
	"errors"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"
)

// DiagnosticInput is the validated body of a creation request.
type DiagnosticInput struct {
	Title           string
	Description     string
	Symptoms        string
	Diagnosis       string
	Treatment       string
	Observations    *string
	NextAppointment *time.Time
}

// DiagnosticUpdate carries a partial update; nil fields stay untouched.
type DiagnosticUpdate struct {
	Title           *string
	Description     *string
	Symptoms        *string
	Diagnosis       *string
	Treatment       *string
	Observations    *string
	NextAppointment *time.Time
}

type Service interface {
	CreateDiagnostic(ctx context.Context, patientID, doctorID, authHeader string, input DiagnosticInput, files []*multipart.FileHeader) (*Diagnostic, error)
	GetDiagnosticByID(ctx context.Context, id string) (*Diagnostic, error)
	GetDiagnosticsByPatient(ctx context.Context, patientID string, page, limit int) ([]Diagnostic, Pagination, error)
	UpdateDiagnostic(ctx context.Context, id string, input DiagnosticUpdate) (*Diagnostic, error)
	AddDocuments(ctx context.Context, diagnosticID, doctorID string, files []*multipart.FileHeader) (*Diagnostic, error)
	GetDocumentsByPatient(ctx context.Context, patientID string, page, limit int) ([]DiagnosticDocument, Pagination, error)
	GetDocumentByID(ctx context.Context, id string) (*DiagnosticDocument, error)
	DeleteDocument(ctx context.Context, id string) (*DiagnosticDocument, error)
	Search(ctx context.Context, filter SearchFilter) ([]Diagnostic, error)
}

type ServiceImpl struct {
	repo     Repository
	patients remote.PatientVerifier
	uploads  *upload.Store
	cleanup  *worker.Pool
}

func NewService(repo Repository, patients remote.PatientVerifier, uploads *upload.Store, cleanup *worker.Pool) Service {
	return &ServiceImpl{
		repo:     repo,
		patients: patients,
		uploads:  uploads,
		cleanup:  cleanup,
	}
}

// CreateDiagnostic runs the full creation workflow: verify the patient with
// the patients service, store the uploaded files, then persist the record
// and its document rows in one transaction. Files hit disk only after the
// patient check passes; a failed transaction triggers a compensating delete
// of every file written for this request.
func (s *ServiceImpl) CreateDiagnostic(ctx context.Context, patientID, doctorID, authHeader string, input DiagnosticInput, files []*multipart.FileHeader) (*Diagnostic, error) {
	patient, err := s.patients.VerifyPatient(ctx, patientID, authHeader)
	if err != nil {
		return nil, err
	}

	if patient.Status != remote.PatientStatusActive {
		return nil, apiError.BadRequest(
			"Paciente inactivo",
			"No se puede crear un diagnóstico para un paciente inactivo",
			nil,
		)
	}

	stored, err := s.uploads.Save(patientID, files)
	if err != nil {
		return nil, err
	}

	diagnostic := &Diagnostic{
		PatientID:       patientID,
		DoctorID:        doctorID,
		Title:           input.Title,
		Description:     input.Description,
		Symptoms:        input.Symptoms,
		Diagnosis:       input.Diagnosis,
		Treatment:       input.Treatment,
		Observations:    input.Observations,
		NextAppointment: input.NextAppointment,
		Documents:       documentsFromStored(stored, doctorID),
	}

	if err := s.repo.Create(ctx, diagnostic); err != nil {
		s.removeFiles(stored)
		return nil, apiError.Internal(err)
	}

	return diagnostic, nil
}

func (s *ServiceImpl) GetDiagnosticByID(ctx context.Context, id string) (*Diagnostic, error) {
	diagnostic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	if diagnostic == nil {
		return nil, diagnosticNotFound()
	}
	return diagnostic, nil
}

func (s *ServiceImpl) GetDiagnosticsByPatient(ctx context.Context, patientID string, page, limit int) ([]Diagnostic, Pagination, error) {
	diagnostics, pagination, err := s.repo.ListByPatient(ctx, patientID, page, limit)
	if err != nil {
		return nil, Pagination{}, apiError.Internal(err)
	}
	return diagnostics, pagination, nil
}

func (s *ServiceImpl) UpdateDiagnostic(ctx context.Context, id string, input DiagnosticUpdate) (*Diagnostic, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	if existing == nil {
		return nil, diagnosticNotFound()
	}

	fields := map[string]any{}
	if input.Title != nil {
		fields["title"] = *input.Title
	}
	if input.Description != nil {
		fields["description"] = *input.Description
	}
	if input.Symptoms != nil {
		fields["symptoms"] = *input.Symptoms
	}
	if input.Diagnosis != nil {
		fields["diagnosis"] = *input.Diagnosis
	}
	if input.Treatment != nil {
		fields["treatment"] = *input.Treatment
	}
	if input.Observations != nil {
		fields["observations"] = *input.Observations
	}
	if input.NextAppointment != nil {
		fields["next_appointment"] = *input.NextAppointment
	}

	updated, err := s.repo.Update(ctx, id, fields)
	if errors.Is(err, ErrDiagnosticNotFound) {
		return nil, diagnosticNotFound()
	}
	if err != nil {
		return nil, apiError.Internal(err)
	}
	return updated, nil
}

// AddDocuments appends files to an existing diagnostic. Same shape as
// creation minus the patient check: existence check, store files, insert
// rows transactionally, compensate on failure.
func (s *ServiceImpl) AddDocuments(ctx context.Context, diagnosticID, doctorID string, files []*multipart.FileHeader) (*Diagnostic, error) {
	if len(files) == 0 {
		return nil, apiError.BadRequest(
			"Archivos requeridos",
			"Debe proporcionar al menos un archivo",
			nil,
		)
	}

	existing, err := s.repo.FindByID(ctx, diagnosticID)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	if existing == nil {
		return nil, diagnosticNotFound()
	}

	stored, err := s.uploads.Save(existing.PatientID, files)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.AppendDocuments(ctx, diagnosticID, documentsFromStored(stored, doctorID))
	if err != nil {
		s.removeFiles(stored)
		if errors.Is(err, ErrDiagnosticNotFound) {
			return nil, diagnosticNotFound()
		}
		return nil, apiError.Internal(err)
	}

	return updated, nil
}

func (s *ServiceImpl) GetDocumentsByPatient(ctx context.Context, patientID string, page, limit int) ([]DiagnosticDocument, Pagination, error) {
	documents, pagination, err := s.repo.ListDocumentsByPatient(ctx, patientID, page, limit)
	if err != nil {
		return nil, Pagination{}, apiError.Internal(err)
	}
	return documents, pagination, nil
}

func (s *ServiceImpl) GetDocumentByID(ctx context.Context, id string) (*DiagnosticDocument, error) {
	document, err := s.repo.FindDocumentByID(ctx, id)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	if document == nil {
		return nil, documentNotFound()
	}
	return document, nil
}

// DeleteDocument removes the blob first, best effort, then the row. A blob
// already missing from storage logs a warning and the row still goes.
func (s *ServiceImpl) DeleteDocument(ctx context.Context, id string) (*DiagnosticDocument, error) {
	document, err := s.repo.FindDocumentByID(ctx, id)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	if document == nil {
		return nil, documentNotFound()
	}

	if err := s.uploads.RemovePath(document.FilePath); err != nil {
		log.Printf("Advertencia: no se pudo eliminar el archivo %s: %v", document.FilePath, err)
	}

	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, documentNotFound()
		}
		return nil, apiError.Internal(err)
	}

	return document, nil
}

func (s *ServiceImpl) Search(ctx context.Context, filter SearchFilter) ([]Diagnostic, error) {
	diagnostics, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	return diagnostics, nil
}

// removeFiles routes the compensating delete through the cleanup pool when
// one is wired, so the failing request doesn't also wait on disk I/O.
func (s *ServiceImpl) removeFiles(stored []upload.StoredFile) {
	if s.cleanup == nil {
		s.uploads.Remove(stored)
		return
	}
	s.cleanup.Submit(func(ctx context.Context) error {
		s.uploads.Remove(stored)
		return nil
	})
}

func documentsFromStored(stored []upload.StoredFile, uploadedBy string) []DiagnosticDocument {
	documents := make([]DiagnosticDocument, 0, len(stored))
	for _, f := range stored {
		documents = append(documents, DiagnosticDocument{
			Filename:       f.OriginalName,
			StoredFilename: f.StoredName,
			FilePath:       f.Path,
			FileType:       strings.ToLower(strings.TrimPrefix(filepath.Ext(f.OriginalName), ".")),
			MimeType:       f.MimeType,
			FileSize:       f.Size,
			UploadedBy:     uploadedBy,
		})
	}
	return documents
}

func diagnosticNotFound() *apiError.APIError {
	return apiError.NotFound(
		"Diagnóstico no encontrado",
		"No se encontró un diagnóstico con el ID proporcionado",
		nil,
	)
}

func documentNotFound() *apiError.APIError {
	return apiError.NotFound(
		"Documento no encontrado",
		"No se encontró un documento con el ID proporcionado",
		nil,
	)
}
