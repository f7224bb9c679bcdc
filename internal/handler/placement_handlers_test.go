package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/etapa-productiva-api/internal/dto"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
)

type projectionServiceMock struct {
	year, month int
}

func (m *projectionServiceMock) Get(_ context.Context, instructorID string, year, month int) (*models.InstructorProjection, error) {
	m.year, m.month = year, month
	return &models.InstructorProjection{InstructorID: instructorID, Year: year, Month: month, AvailableHours: 160, ProgrammedHours: 40}, nil
}

func (m *projectionServiceMock) ListByInstructor(_ context.Context, _ string, year int) ([]models.InstructorProjection, error) {
	m.year = year
	return nil, nil
}

func (m *projectionServiceMock) Recompute(_ context.Context, instructorID string, year, month int) (*models.InstructorProjection, error) {
	return &models.InstructorProjection{InstructorID: instructorID, Year: year, Month: month}, nil
}

func TestProjectionHandlerGet(t *testing.T) {
	mockSvc := &projectionServiceMock{}
	c, w := newTestContext(http.MethodGet, "/projections/inst-1/2025/3", "")
	c.Params = gin.Params{{Key: "instructorId", Value: "inst-1"}, {Key: "year", Value: "2025"}, {Key: "month", Value: "3"}}
	NewProjectionHandler(mockSvc).Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2025, mockSvc.year)
	assert.Equal(t, 3, mockSvc.month)
	var body struct {
		Meta map[string]float64 `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 120.0, body.Meta["free_hours"])
}

func TestProjectionHandlerRejectsBadPeriod(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/projections/inst-1/abc/3", "")
	c.Params = gin.Params{{Key: "instructorId", Value: "inst-1"}, {Key: "year", Value: "abc"}, {Key: "month", Value: "3"}}
	NewProjectionHandler(&projectionServiceMock{}).Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodGet, "/projections/inst-1", "")
	c.Params = gin.Params{{Key: "instructorId", Value: "inst-1"}}
	NewProjectionHandler(&projectionServiceMock{}).List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type bitacoraServiceMock struct {
	overdueAsked bool
	lastCreate   dto.CreateBitacoraRequest
}

func (m *bitacoraServiceMock) Create(_ context.Context, _ *models.JWTClaims, placementID string, req dto.CreateBitacoraRequest) (*models.Bitacora, error) {
	m.lastCreate = req
	return &models.Bitacora{ID: "b-1", PlacementID: placementID, Number: 1, Status: models.DeliverablePending}, nil
}

func (m *bitacoraServiceMock) AttachDocument(_ context.Context, _ *models.JWTClaims, id string, _ dto.AttachDocumentRequest) (*models.Bitacora, error) {
	return &models.Bitacora{ID: id, Status: models.DeliverableExecuted}, nil
}

func (m *bitacoraServiceMock) Verify(_ context.Context, _ *models.JWTClaims, id string, _ dto.VerifyRequest) (*models.Bitacora, error) {
	return &models.Bitacora{ID: id, Status: models.DeliverableVerified}, nil
}

func (m *bitacoraServiceMock) Reject(_ context.Context, _ *models.JWTClaims, id string, _ dto.RejectRequest) (*models.Bitacora, error) {
	return &models.Bitacora{ID: id, Status: models.DeliverablePending}, nil
}

func (m *bitacoraServiceMock) Reopen(_ context.Context, _ *models.JWTClaims, id string, _ dto.RejectRequest) (*models.Bitacora, error) {
	return &models.Bitacora{ID: id, Status: models.DeliverablePending}, nil
}

func (m *bitacoraServiceMock) CompletionCount(context.Context, string) (int, int, error) {
	return 4, 12, nil
}

func (m *bitacoraServiceMock) ListByPlacement(context.Context, string) ([]models.Bitacora, error) {
	return []models.Bitacora{{ID: "b-1"}}, nil
}

func (m *bitacoraServiceMock) Overdue(context.Context, string, time.Time) ([]models.Bitacora, error) {
	m.overdueAsked = true
	return nil, nil
}

func TestBitacoraHandlerListIncludesProgress(t *testing.T) {
	mockSvc := &bitacoraServiceMock{}
	c, w := newTestContext(http.MethodGet, "/placements/pl-1/bitacoras?overdue=true", "")
	c.Params = gin.Params{{Key: "placementId", Value: "pl-1"}}
	NewBitacoraHandler(mockSvc).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.overdueAsked)
	var body struct {
		Meta map[string]int `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]int{"verified": 4, "required": 12}, body.Meta)
}

func TestBitacoraHandlerCreateWithoutBody(t *testing.T) {
	c, w := newTestContext(http.MethodPost, "/placements/pl-1/bitacoras", "")
	c.Params = gin.Params{{Key: "placementId", Value: "pl-1"}}
	NewBitacoraHandler(&bitacoraServiceMock{}).Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBitacoraHandlerRejectNeedsBody(t *testing.T) {
	c, w := newTestContext(http.MethodPost, "/bitacoras/b-1/reject", "")
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	NewBitacoraHandler(&bitacoraServiceMock{}).Reject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type seguimientoServiceMock struct {
	lastSchedule dto.ScheduleSeguimientoRequest
	verifyErr    error
}

func (m *seguimientoServiceMock) Schedule(_ context.Context, _ *models.JWTClaims, placementID string, req dto.ScheduleSeguimientoRequest) (*models.Seguimiento, error) {
	m.lastSchedule = req
	return &models.Seguimiento{ID: "s-1", PlacementID: placementID, Kind: req.Kind}, nil
}

func (m *seguimientoServiceMock) Execute(_ context.Context, _ *models.JWTClaims, id string, _ dto.ExecuteSeguimientoRequest) (*models.Seguimiento, error) {
	return &models.Seguimiento{ID: id, Status: models.DeliverableExecuted}, nil
}

func (m *seguimientoServiceMock) Verify(_ context.Context, _ *models.JWTClaims, id string, _ dto.VerifyRequest) (*models.Seguimiento, error) {
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return &models.Seguimiento{ID: id, Status: models.DeliverableVerified}, nil
}

func (m *seguimientoServiceMock) Reject(_ context.Context, _ *models.JWTClaims, id string, _ dto.RejectRequest) (*models.Seguimiento, error) {
	return &models.Seguimiento{ID: id, Status: models.DeliverablePending}, nil
}

func (m *seguimientoServiceMock) CompletionCount(context.Context, string) (int, int, error) {
	return 1, 3, nil
}

func (m *seguimientoServiceMock) ListByPlacement(context.Context, string) ([]models.Seguimiento, error) {
	return nil, nil
}

func TestSeguimientoHandlerSchedule(t *testing.T) {
	mockSvc := &seguimientoServiceMock{}
	c, w := newTestContext(http.MethodPost, "/placements/pl-1/seguimientos", `{"kind":"INITIAL","scheduled_for":"2025-03-12"}`)
	c.Params = gin.Params{{Key: "placementId", Value: "pl-1"}}
	NewSeguimientoHandler(mockSvc).Schedule(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.SeguimientoInitial, mockSvc.lastSchedule.Kind)
}

func TestSeguimientoHandlerVerifyForbidden(t *testing.T) {
	c, w := newTestContext(http.MethodPost, "/seguimientos/s-1/verify", "")
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	NewSeguimientoHandler(&seguimientoServiceMock{verifyErr: appErrors.ErrForbidden}).Verify(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type eligibilityServiceMock struct {
	verdict   *models.Verdict
	certifyFn func() (*models.Certification, error)
}

func (m *eligibilityServiceMock) EvaluateNow(context.Context, string) (*models.Verdict, error) {
	return m.verdict, nil
}

func (m *eligibilityServiceMock) CreateCertification(context.Context, *models.JWTClaims, string) (*models.Certification, error) {
	return m.certifyFn()
}

func TestEligibilityHandlerEvaluate(t *testing.T) {
	mockSvc := &eligibilityServiceMock{verdict: &models.Verdict{PlacementID: "pl-1", Missing: []models.ReasonCode{models.ReasonBitacoras}}}
	c, w := newTestContext(http.MethodGet, "/placements/pl-1/eligibility", "")
	c.Params = gin.Params{{Key: "placementId", Value: "pl-1"}}
	NewEligibilityHandler(mockSvc).Evaluate(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.Verdict `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.Eligible)
	assert.Equal(t, []models.ReasonCode{models.ReasonBitacoras}, body.Data.Missing)
}

func TestEligibilityHandlerCertify(t *testing.T) {
	tests := []struct {
		name   string
		fn     func() (*models.Certification, error)
		status int
	}{
		{"created", func() (*models.Certification, error) {
			return &models.Certification{ID: "cert-1", Status: models.CertificationPending}, nil
		}, http.StatusCreated},
		{"already certified", func() (*models.Certification, error) { return nil, appErrors.ErrAlreadyCertified }, http.StatusConflict},
		{"prerequisites", func() (*models.Certification, error) {
			return nil, appErrors.WithDetails(appErrors.ErrPrerequisitesNotMet, "", map[string]interface{}{"missing": []string{"hours"}})
		}, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodPost, "/placements/pl-1/certification", "")
			c.Params = gin.Params{{Key: "placementId", Value: "pl-1"}}
			NewEligibilityHandler(&eligibilityServiceMock{certifyFn: tc.fn}).Certify(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
