package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/covermed/hospital-coverage-scheduling/internal/assignment"
	"github.com/covermed/hospital-coverage-scheduling/internal/identity"
	"github.com/covermed/hospital-coverage-scheduling/internal/slot"
)

func createAssignmentHandler(svc *assignment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := identity.ActorFromContext(r.Context())
		if !ok || actor.Role != identity.RoleHospital {
			writeError(w, http.StatusForbidden, "hospital_required", "only hospitals create assignments")
			return
		}

		var req CreateAssignmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		subSlotID, err := uuid.Parse(req.SubSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_sub_slot_id", "sub_slot_id must be a valid UUID")
			return
		}

		var fee *decimal.Decimal
		if req.ConsultationFee != "" {
			parsed, err := decimal.NewFromString(req.ConsultationFee)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_fee", "consultation_fee must be a decimal number")
				return
			}
			fee = &parsed
		}

		created, err := svc.Create(r.Context(), actor.ID, doctorID, patientID, subSlotID, assignment.Priority(req.Priority), fee)
		if err != nil {
			handleAssignmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAssignmentResponse(created))
	}
}

func getAssignmentHandler(svc *assignment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_assignment_id", "id must be a valid UUID")
			return
		}

		a, err := svc.GetAssignment(r.Context(), id)
		if err != nil {
			handleAssignmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(a))
	}
}

func acceptAssignmentHandler(svc *assignment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := doctorAndID(w, r)
		if !ok {
			return
		}

		updated, err := svc.Accept(r.Context(), id, actor.ID)
		if err != nil {
			handleAssignmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(updated))
	}
}

func declineAssignmentHandler(svc *assignment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := doctorAndID(w, r)
		if !ok {
			return
		}

		var req DeclineRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		updated, err := svc.Decline(r.Context(), id, actor.ID, req.Reason)
		if err != nil {
			handleAssignmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(updated))
	}
}

func cancelAssignmentHandler(svc *assignment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := identity.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "identity_unresolved", "caller identity could not be resolved")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_assignment_id", "id must be a valid UUID")
			return
		}

		var req CancelRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		updated, err := svc.Cancel(r.Context(), id, actor, req.Reason)
		if err != nil {
			handleAssignmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(updated))
	}
}

func completeAssignmentHandler(svc *assignment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := doctorAndID(w, r)
		if !ok {
			return
		}

		var req CompleteRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		updated, err := svc.Complete(r.Context(), id, actor.ID, req.TreatmentNotes)
		if err != nil {
			handleAssignmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(updated))
	}
}

func doctorAndID(w http.ResponseWriter, r *http.Request) (identity.Actor, uuid.UUID, bool) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok || actor.Role != identity.RoleDoctor {
		writeError(w, http.StatusForbidden, "doctor_required", "only the assigned doctor may do this")
		return identity.Actor{}, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_assignment_id", "id must be a valid UUID")
		return identity.Actor{}, uuid.Nil, false
	}

	return actor, id, true
}

func handleAssignmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assignment.ErrInvalidPriority):
		writeError(w, http.StatusBadRequest, "invalid_priority", err.Error())
	case errors.Is(err, assignment.ErrAssignmentNotFound):
		writeError(w, http.StatusNotFound, "assignment_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, assignment.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "not_allowed", err.Error())
	case errors.Is(err, assignment.ErrAssignmentExpired):
		writeError(w, http.StatusConflict, "assignment_expired", err.Error())
	case errors.Is(err, assignment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, assignment.ErrSlotNotBooked):
		writeError(w, http.StatusConflict, "slot_not_booked", err.Error())
	case errors.Is(err, assignment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
