package remote

import (
	"context"
	apiError "diagnostic-service/internal/errors"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Patient is the snapshot the patients service returns for a single patient.
// Diagnostic creation requires Status == PatientStatusActive.
type Patient struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	DocumentNumber string `json:"documentNumber"`
	Gender         string `json:"gender"`
	Address        string `json:"address"`
	Status         string `json:"status"`
}

const PatientStatusActive = "ACTIVE"

type PatientsClient struct {
	baseURL    string
	httpClient *http.Client
}

type PatientVerifier interface {
	VerifyPatient(ctx context.Context, patientID string, authHeader string) (*Patient, error)
}

func NewPatientsClient(baseURL string) *PatientsClient {
	return &PatientsClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type patientResponse struct {
	Patient Patient `json:"patient"`
}

// VerifyPatient asks the patients service whether the patient exists,
// forwarding the caller's bearer header. Failures are never retried here;
// a degraded upstream is surfaced to the caller immediately.
func (p *PatientsClient) VerifyPatient(ctx context.Context, patientID string, authHeader string) (*Patient, error) {
	url := fmt.Sprintf(
		"%s/api/v1/users/patients/%s",
		p.baseURL,
		patientID,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apiError.ServiceUnavailable(
			"El servicio de pacientes no está disponible en este momento. Por favor, intenta más tarde.",
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apiError.NotFound(
			"Paciente no encontrado",
			"El paciente no existe en el sistema",
			nil,
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError.New(
			resp.StatusCode,
			"Error al verificar paciente",
			"No se pudo verificar la existencia del paciente",
			fmt.Errorf("patients service status=%d", resp.StatusCode),
		)
	}

	var payload patientResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apiError.ServiceUnavailable(
			"El servicio de pacientes devolvió una respuesta inválida",
			err,
		)
	}

	return &payload.Patient, nil
}
