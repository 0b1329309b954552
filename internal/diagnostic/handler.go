package diagnostic

import (
	apiError "diagnostic-service/internal/errors"
	"diagnostic-service/internal/remote"
	"diagnostic-service/internal/utils"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("dateonly", func(fl validator.FieldLevel) bool {
			_, err := parseDate(fl.Field().String())
			return err == nil
		})
	}
}

// parseDate accepts both RFC3339 timestamps and plain dates, matching what
// the platform's frontends send for appointment fields.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

type CreateDiagnosticRequest struct {
	PatientID       string                  `form:"patientId"`
	Title           string                  `form:"title" binding:"required"`
	Description     string                  `form:"description" binding:"required"`
	Symptoms        string                  `form:"symptoms" binding:"required"`
	Diagnosis       string                  `form:"diagnosis" binding:"required"`
	Treatment       string                  `form:"treatment" binding:"required"`
	Observations    string                  `form:"observations"`
	NextAppointment string                  `form:"nextAppointment" binding:"omitempty,dateonly"`
	Documents       []*multipart.FileHeader `form:"documents"`
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateDiagnosticRequest
	if err := c.ShouldBind(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	// patient id comes from the path (named :id on the diagnostics tree,
	// :patientId on the documents alias), or from the body
	patientID := c.Param("patientId")
	if patientID == "" {
		patientID = c.Param("id")
	}
	if patientID == "" {
		patientID = form.PatientID
	}
	if patientID == "" {
		c.Error(apiError.BadRequest(
			"ID de paciente requerido",
			"Debe proporcionar un ID de paciente válido",
			nil,
		))
		return
	}

	user := currentUser(c)
	authHeader, _ := c.Get("auth_header")

	diagnostic, err := h.service.CreateDiagnostic(
		c.Request.Context(),
		patientID,
		user.ID,
		authHeader.(string),
		form.toInput(),
		form.Documents,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Diagnóstico creado exitosamente",
		"data":    diagnostic,
	})
}

func (form *CreateDiagnosticRequest) toInput() DiagnosticInput {
	input := DiagnosticInput{
		Title:       form.Title,
		Description: form.Description,
		Symptoms:    form.Symptoms,
		Diagnosis:   form.Diagnosis,
		Treatment:   form.Treatment,
	}
	if form.Observations != "" {
		input.Observations = &form.Observations
	}
	if form.NextAppointment != "" {
		// already validated by the dateonly rule
		if t, err := parseDate(form.NextAppointment); err == nil {
			input.NextAppointment = &t
		}
	}
	return input
}

func (h *Handler) ShowDiagnostic(c *gin.Context) {
	diagnostic, err := h.service.GetDiagnosticByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Diagnóstico obtenido exitosamente",
		"data":    diagnostic,
	})
}

// ShowPatientDiagnostics lists a patient's diagnostics, newest first.
func (h *Handler) ShowPatientDiagnostics(c *gin.Context) {
	page, limit, err := utils.GetPaginationParams(c)
	if err != nil {
		c.Error(err)
		return
	}

	diagnostics, pagination, err := h.service.GetDiagnosticsByPatient(
		c.Request.Context(),
		c.Param("patientId"),
		page,
		limit,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Documentos del paciente obtenidos exitosamente",
		"data":       diagnostics,
		"pagination": pagination,
	})
}

// ShowMyMedicalHistory serves a patient their own records. The route is
// already gated on PACIENTE; the handler re-checks so the invariant doesn't
// depend on route wiring.
func (h *Handler) ShowMyMedicalHistory(c *gin.Context) {
	user := currentUser(c)
	if user.Role != "PACIENTE" {
		c.Error(apiError.Forbidden("Solo los pacientes pueden acceder a su historia clínica", nil))
		return
	}

	page, limit, err := utils.GetPaginationParams(c)
	if err != nil {
		c.Error(err)
		return
	}

	diagnostics, pagination, err := h.service.GetDiagnosticsByPatient(
		c.Request.Context(),
		user.ID,
		page,
		limit,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Historia clínica obtenida exitosamente",
		"data":       diagnostics,
		"pagination": pagination,
	})
}

type UpdateDiagnosticRequest struct {
	Title           *string `json:"title" binding:"omitempty,min=1"`
	Description     *string `json:"description" binding:"omitempty,min=1"`
	Symptoms        *string `json:"symptoms" binding:"omitempty,min=1"`
	Diagnosis       *string `json:"diagnosis" binding:"omitempty,min=1"`
	Treatment       *string `json:"treatment" binding:"omitempty,min=1"`
	Observations    *string `json:"observations"`
	NextAppointment *string `json:"nextAppointment" binding:"omitempty,dateonly"`
}

func (h *Handler) Update(c *gin.Context) {
	var form UpdateDiagnosticRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	update := DiagnosticUpdate{
		Title:        form.Title,
		Description:  form.Description,
		Symptoms:     form.Symptoms,
		Diagnosis:    form.Diagnosis,
		Treatment:    form.Treatment,
		Observations: form.Observations,
	}
	if form.NextAppointment != nil {
		if t, err := parseDate(*form.NextAppointment); err == nil {
			update.NextAppointment = &t
		}
	}

	diagnostic, err := h.service.UpdateDiagnostic(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Diagnóstico actualizado exitosamente",
		"data":    diagnostic,
	})
}

func (h *Handler) AddDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	user := currentUser(c)

	diagnostic, err := h.service.AddDocuments(
		c.Request.Context(),
		c.Param("id"),
		user.ID,
		form.File["documents"],
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Documentos agregados exitosamente",
		"data":    diagnostic,
	})
}

// ShowPatientDocuments lists the document rows themselves, across all of a
// patient's diagnostics.
func (h *Handler) ShowPatientDocuments(c *gin.Context) {
	page, limit, err := utils.GetPaginationParams(c)
	if err != nil {
		c.Error(err)
		return
	}

	documents, pagination, err := h.service.GetDocumentsByPatient(
		c.Request.Context(),
		c.Param("patientId"),
		page,
		limit,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Documentos del paciente obtenidos exitosamente",
		"data":       documents,
		"pagination": pagination,
	})
}

// DownloadDocument streams the blob as an attachment under its original name.
func (h *Handler) DownloadDocument(c *gin.Context) {
	document, err := h.service.GetDocumentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.FileAttachment(document.FilePath, document.Filename)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	if _, err := h.service.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Documento eliminado exitosamente",
	})
}

func (h *Handler) Search(c *gin.Context) {
	filter := SearchFilter{
		PatientID: c.Query("patientId"),
		Diagnosis: c.Query("diagnostic"),
	}

	if raw := c.Query("dateFrom"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.Error(apiError.BadRequest(
				"Fecha inválida",
				"dateFrom debe tener el formato YYYY-MM-DD",
				err,
			))
			return
		}
		filter.DateFrom = &t
	}
	if raw := c.Query("dateTo"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.Error(apiError.BadRequest(
				"Fecha inválida",
				"dateTo debe tener el formato YYYY-MM-DD",
				err,
			))
			return
		}
		filter.DateTo = &t
	}

	diagnostics, err := h.service.Search(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Búsqueda realizada exitosamente",
		"data":    diagnostics,
	})
}

func currentUser(c *gin.Context) *remote.Identity {
	user, _ := c.Get("user")
	return user.(*remote.Identity)
}
