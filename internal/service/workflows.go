package service

import (
	"errors"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/workflow"
)

const (
	actionApprove  workflow.Action = "approve"
	actionReject   workflow.Action = "reject"
	actionSubmit   workflow.Action = "submit"
	actionVerify   workflow.Action = "verify"
	actionReopen   workflow.Action = "reopen"
	actionExecute  workflow.Action = "execute"
	actionReassign workflow.Action = "reassign"
	actionWithdraw workflow.Action = "withdraw"
	actionExtend   workflow.Action = "extend"
	actionRecord   workflow.Action = "record"
	actionRequest  workflow.Action = "request"
	actionCertify  workflow.Action = "certify"
)

const (
	payloadDocument = "document"
	payloadResults  = "results"
)

var entryWorkflow = workflow.New[models.EntryStatus]("hour entry",
	workflow.Rule[models.EntryStatus]{From: models.EntryStatusPending, Action: actionApprove, To: models.EntryStatusApproved},
	workflow.Rule[models.EntryStatus]{From: models.EntryStatusPending, Action: actionReject, To: models.EntryStatusRejected, Guards: []workflow.Guard{workflow.RequireReason}},
)

var assignmentWorkflow = workflow.New[models.AssignmentStatus]("assignment",
	workflow.Rule[models.AssignmentStatus]{From: models.AssignmentStatusActive, Action: actionReassign, To: models.AssignmentStatusReassigned, Guards: []workflow.Guard{workflow.RequireReason}},
	workflow.Rule[models.AssignmentStatus]{From: models.AssignmentStatusActive, Action: actionWithdraw, To: models.AssignmentStatusInactive, Guards: []workflow.Guard{workflow.RequireReason}},
	workflow.Rule[models.AssignmentStatus]{From: models.AssignmentStatusActive, Action: actionExtend, To: models.AssignmentStatusActive, Guards: []workflow.Guard{workflow.RequireReason}},
	workflow.Rule[models.AssignmentStatus]{From: models.AssignmentStatusActive, Action: actionRecord, To: models.AssignmentStatusActive},
)

var bitacoraWorkflow = workflow.New[models.DeliverableStatus]("bitacora",
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverablePending, Action: actionSubmit, To: models.DeliverableExecuted, Guards: []workflow.Guard{workflow.RequirePayload(payloadDocument)}},
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverableExecuted, Action: actionVerify, To: models.DeliverableVerified},
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverableExecuted, Action: actionReject, To: models.DeliverablePending, Guards: []workflow.Guard{workflow.RequireReason}},
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverableVerified, Action: actionReopen, To: models.DeliverablePending, Guards: []workflow.Guard{workflow.RequireReason}},
)

var seguimientoWorkflow = workflow.New[models.DeliverableStatus]("seguimiento",
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverableProgrammed, Action: actionExecute, To: models.DeliverableExecuted, Guards: []workflow.Guard{workflow.RequirePayload(payloadResults)}},
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverablePending, Action: actionExecute, To: models.DeliverableExecuted, Guards: []workflow.Guard{workflow.RequirePayload(payloadResults)}},
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverableExecuted, Action: actionVerify, To: models.DeliverableVerified},
	workflow.Rule[models.DeliverableStatus]{From: models.DeliverableExecuted, Action: actionReject, To: models.DeliverablePending, Guards: []workflow.Guard{workflow.RequireReason}},
)

var certificationWorkflow = workflow.New[models.CertificationStatus]("certification",
	workflow.Rule[models.CertificationStatus]{From: "", Action: actionRequest, To: models.CertificationPending},
	workflow.Rule[models.CertificationStatus]{From: models.CertificationPending, Action: actionCertify, To: models.CertificationCertified},
	workflow.Rule[models.CertificationStatus]{From: models.CertificationPending, Action: actionReject, To: models.CertificationRejected, Guards: []workflow.Guard{workflow.RequireReason}},
)

// transitionError maps workflow failures onto API errors. invalid overrides the error used
// for disallowed transitions.
func transitionError(err error, invalid *appErrors.Error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, workflow.ErrGuardRejected) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if invalid == nil {
		invalid = appErrors.ErrInvalidTransition
	}
	return appErrors.Wrap(err, invalid.Code, invalid.Status, invalid.Message)
}
