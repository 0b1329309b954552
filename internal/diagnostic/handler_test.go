package diagnostic

import (
	"bytes"
	"context"
	"diagnostic-service/internal/middleware"
	"diagnostic-service/internal/remote"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateDiagnostic(ctx context.Context, patientID, doctorID, authHeader string, input DiagnosticInput, files []*multipart.FileHeader) (*Diagnostic, error) {
	args := m.Called(ctx, patientID, doctorID, authHeader, input, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Diagnostic), args.Error(1)
}

func (m *MockService) GetDiagnosticByID(ctx context.Context, id string) (*Diagnostic, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Diagnostic), args.Error(1)
}

func (m *MockService) GetDiagnosticsByPatient(ctx context.Context, patientID string, page, limit int) ([]Diagnostic, Pagination, error) {
	args := m.Called(ctx, patientID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(Pagination), args.Error(2)
	}
	return args.Get(0).([]Diagnostic), args.Get(1).(Pagination), args.Error(2)
}

func (m *MockService) UpdateDiagnostic(ctx context.Context, id string, input DiagnosticUpdate) (*Diagnostic, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Diagnostic), args.Error(1)
}

func (m *MockService) AddDocuments(ctx context.Context, diagnosticID, doctorID string, files []*multipart.FileHeader) (*Diagnostic, error) {
	args := m.Called(ctx, diagnosticID, doctorID, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Diagnostic), args.Error(1)
}

func (m *MockService) GetDocumentsByPatient(ctx context.Context, patientID string, page, limit int) ([]DiagnosticDocument, Pagination, error) {
	args := m.Called(ctx, patientID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(Pagination), args.Error(2)
	}
	return args.Get(0).([]DiagnosticDocument), args.Get(1).(Pagination), args.Error(2)
}

func (m *MockService) GetDocumentByID(ctx context.Context, id string) (*DiagnosticDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DiagnosticDocument), args.Error(1)
}

func (m *MockService) DeleteDocument(ctx context.Context, id string) (*DiagnosticDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DiagnosticDocument), args.Error(1)
}

func (m *MockService) Search(ctx context.Context, filter SearchFilter) ([]Diagnostic, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Diagnostic), args.Error(1)
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	return router
}

func asDoctor(handlerFunc gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", &remote.Identity{ID: "doc-1", Email: "doc@example.com", Fullname: "Dra. García", Role: "MEDICO", Status: "ACTIVE"})
		c.Set("auth_header", "Bearer test-token")
		handlerFunc(c)
	}
}

func asPatient(handlerFunc gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", &remote.Identity{ID: "p1", Email: "ana@example.com", Fullname: "Ana Pérez", Role: "PACIENTE", Status: "ACTIVE"})
		c.Set("auth_header", "Bearer test-token")
		handlerFunc(c)
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileNames ...string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, w.WriteField(key, value))
	}
	for _, name := range fileNames {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="documents"; filename="%s"`, name))
		h.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("file-content"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

var validFields = map[string]string{
	"title":       "Control general",
	"description": "Control de rutina",
	"symptoms":    "Dolor de cabeza",
	"diagnosis":   "Migraña",
	"treatment":   "Ibuprofeno",
}

// TestCreateDiagnostic_Handler_Success returns 201 with the created record
func TestCreateDiagnostic_Handler_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/api/v1/diagnostics/:id", asDoctor(handler.Create))

	mockService.On("CreateDiagnostic",
		mock.Anything, "p1", "doc-1", "Bearer test-token",
		mock.MatchedBy(func(input DiagnosticInput) bool { return input.Title == "Control general" }),
		mock.MatchedBy(func(files []*multipart.FileHeader) bool { return len(files) == 1 }),
	).Return(&Diagnostic{ID: "diag-1", PatientID: "p1"}, nil)

	body, contentType := multipartBody(t, validFields, "resultado.pdf")
	req := httptest.NewRequest("POST", "/api/v1/diagnostics/p1", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Diagnóstico creado exitosamente", response["message"])
	mockService.AssertExpectations(t)
}

// TestCreateDiagnostic_Handler_MissingFields fails validation before the service runs
func TestCreateDiagnostic_Handler_MissingFields(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/api/v1/diagnostics/:id", asDoctor(handler.Create))

	body, contentType := multipartBody(t, map[string]string{"title": "solo título"})
	req := httptest.NewRequest("POST", "/api/v1/diagnostics/p1", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateDiagnostic", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestCreateDiagnostic_Handler_BadDate rejects a malformed nextAppointment
func TestCreateDiagnostic_Handler_BadDate(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/api/v1/diagnostics/:id", asDoctor(handler.Create))

	fields := map[string]string{}
	for k, v := range validFields {
		fields[k] = v
	}
	fields["nextAppointment"] = "31-12-2024"

	body, contentType := multipartBody(t, fields)
	req := httptest.NewRequest("POST", "/api/v1/diagnostics/p1", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestCreateDiagnostic_Handler_PatientIDFromBody serves the alias route
func TestCreateDiagnostic_Handler_PatientIDFromBody(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/api/v1/diagnostics", asDoctor(handler.Create))

	mockService.On("CreateDiagnostic",
		mock.Anything, "p9", "doc-1", "Bearer test-token", mock.Anything, mock.Anything,
	).Return(&Diagnostic{ID: "diag-2", PatientID: "p9"}, nil)

	fields := map[string]string{"patientId": "p9"}
	for k, v := range validFields {
		fields[k] = v
	}
	body, contentType := multipartBody(t, fields)
	req := httptest.NewRequest("POST", "/api/v1/diagnostics", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

// TestCreateDiagnostic_Handler_MissingPatientID
func TestCreateDiagnostic_Handler_MissingPatientID(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/api/v1/diagnostics", asDoctor(handler.Create))

	body, contentType := multipartBody(t, validFields)
	req := httptest.NewRequest("POST", "/api/v1/diagnostics", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ID de paciente requerido", response["error"])
}

// TestShowDiagnostic_Handler_Success returns identical data on repeat reads
func TestShowDiagnostic_Handler_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/:id", asDoctor(handler.ShowDiagnostic))

	diagnostic := &Diagnostic{ID: "diag-1", PatientID: "p1", Title: "Control general"}
	mockService.On("GetDiagnosticByID", mock.Anything, "diag-1").Return(diagnostic, nil)

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/v1/diagnostics/diag-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		bodies = append(bodies, w.Body.String())
	}

	assert.Equal(t, bodies[0], bodies[1], "reads without intervening writes must match")
}

// TestShowDiagnostic_Handler_NotFound
func TestShowDiagnostic_Handler_NotFound(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/:id", asDoctor(handler.ShowDiagnostic))

	mockService.On("GetDiagnosticByID", mock.Anything, "missing").Return(nil, diagnosticNotFound())

	req := httptest.NewRequest("GET", "/api/v1/diagnostics/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestShowPatientDiagnostics_WithPagination forwards page and limit
func TestShowPatientDiagnostics_WithPagination(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/documents/patient/:patientId", asDoctor(handler.ShowPatientDiagnostics))

	mockService.On("GetDiagnosticsByPatient", mock.Anything, "p1", 2, 15).
		Return([]Diagnostic{{ID: "diag-1"}}, NewPagination(25, 2, 15), nil)

	req := httptest.NewRequest("GET", "/api/v1/diagnostics/documents/patient/p1?page=2&limit=15", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotNil(t, response["pagination"])
	mockService.AssertExpectations(t)
}

// TestShowPatientDiagnostics_InvalidPage rejects page=0 before the service runs
func TestShowPatientDiagnostics_InvalidPage(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/documents/patient/:patientId", asDoctor(handler.ShowPatientDiagnostics))

	req := httptest.NewRequest("GET", "/api/v1/diagnostics/documents/patient/p1?page=0&limit=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "GetDiagnosticsByPatient", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestMyMedicalHistory_Success serves the authenticated patient's own records
func TestMyMedicalHistory_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/my-medical-history", asPatient(handler.ShowMyMedicalHistory))

	mockService.On("GetDiagnosticsByPatient", mock.Anything, "p1", 1, 10).
		Return([]Diagnostic{}, NewPagination(0, 1, 10), nil)

	req := httptest.NewRequest("GET", "/api/v1/diagnostics/my-medical-history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

// TestMyMedicalHistory_ForbiddenForDoctors re-checks the PACIENTE role
func TestMyMedicalHistory_ForbiddenForDoctors(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/my-medical-history", asDoctor(handler.ShowMyMedicalHistory))

	req := httptest.NewRequest("GET", "/api/v1/diagnostics/my-medical-history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockService.AssertNotCalled(t, "GetDiagnosticsByPatient", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestUpdateDiagnostic_Handler_Partial sends only the supplied fields
func TestUpdateDiagnostic_Handler_Partial(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.PUT("/api/v1/diagnostics/:id", asDoctor(handler.Update))

	mockService.On("UpdateDiagnostic", mock.Anything, "diag-1", mock.MatchedBy(func(u DiagnosticUpdate) bool {
		return u.Treatment != nil && *u.Treatment == "Paracetamol" && u.Title == nil
	})).Return(&Diagnostic{ID: "diag-1"}, nil)

	payload, _ := json.Marshal(map[string]string{"treatment": "Paracetamol"})
	req := httptest.NewRequest("PUT", "/api/v1/diagnostics/diag-1", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

// TestAddDocuments_Handler_Success
func TestAddDocuments_Handler_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/api/v1/diagnostics/:id/documents", asDoctor(handler.AddDocuments))

	mockService.On("AddDocuments", mock.Anything, "diag-1", "doc-1",
		mock.MatchedBy(func(files []*multipart.FileHeader) bool { return len(files) == 2 }),
	).Return(&Diagnostic{ID: "diag-1"}, nil)

	body, contentType := multipartBody(t, nil, "a.pdf", "b.pdf")
	req := httptest.NewRequest("POST", "/api/v1/diagnostics/diag-1/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

// TestDeleteDocument_Handler_Success
func TestDeleteDocument_Handler_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.DELETE("/api/v1/diagnostics/documents/:id", asDoctor(handler.DeleteDocument))

	mockService.On("DeleteDocument", mock.Anything, "doc-row-1").
		Return(&DiagnosticDocument{ID: "doc-row-1"}, nil)

	req := httptest.NewRequest("DELETE", "/api/v1/diagnostics/documents/doc-row-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Documento eliminado exitosamente", response["message"])
}

// TestSearch_Handler_DateFilter parses inclusive bounds into the filter
func TestSearch_Handler_DateFilter(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/search", asDoctor(handler.Search))

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	mockService.On("Search", mock.Anything, mock.MatchedBy(func(f SearchFilter) bool {
		return f.PatientID == "p1" &&
			f.Diagnosis == "migraña" &&
			f.DateFrom != nil && f.DateFrom.Equal(from) &&
			f.DateTo != nil && f.DateTo.Equal(to)
	})).Return([]Diagnostic{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/diagnostics/search?patientId=p1&diagnostic=migra%C3%B1a&dateFrom=2024-01-01&dateTo=2024-01-31", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

// TestSearch_Handler_BadDate
func TestSearch_Handler_BadDate(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/api/v1/diagnostics/search", asDoctor(handler.Search))

	req := httptest.NewRequest("GET", "/api/v1/diagnostics/search?dateFrom=01-01-2024", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}
