package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/covermed/hospital-coverage-scheduling/internal/assignment"
	"github.com/covermed/hospital-coverage-scheduling/internal/payment"
)

func settleAssignmentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_assignment_id", "id must be a valid UUID")
			return
		}

		p, err := svc.Settle(r.Context(), assignmentID)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func getPaymentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		p, err := svc.GetPayment(r.Context(), id)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func markPaymentPaidHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		p, err := svc.MarkPaid(r.Context(), id)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func beginPayoutHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		p, err := svc.BeginPayout(r.Context(), id)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func failPayoutHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		// The reason body is optional.
		var req FailPayoutRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		p, err := svc.FailPayout(r.Context(), id, req.Reason)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

// gatewayConfirmationHandler ingests the payment gateway's confirmation
// event. The gateway is the caller; the core never initiates gateway calls.
func gatewayConfirmationHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GatewayConfirmationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		assignmentID, err := uuid.Parse(req.AssignmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_assignment_id", "assignment_id must be a valid UUID")
			return
		}

		amount, err := decimal.NewFromString(req.AmountConfirmed)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount_confirmed must be a decimal number")
			return
		}

		p, err := svc.ConfirmGatewayPayment(r.Context(), assignmentID, req.GatewayPaymentID, amount)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func handlePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrInvalidFee), errors.Is(err, payment.ErrInvalidRate):
		writeError(w, http.StatusBadRequest, "invalid_fee", err.Error())
	case errors.Is(err, payment.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, assignment.ErrAssignmentNotFound):
		writeError(w, http.StatusNotFound, "assignment_not_found", err.Error())
	case errors.Is(err, payment.ErrAssignmentNotCompleted):
		writeError(w, http.StatusConflict, "assignment_not_completed", err.Error())
	case errors.Is(err, payment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_payment_transition", err.Error())
	case errors.Is(err, payment.ErrAmountMismatch):
		writeError(w, http.StatusConflict, "amount_mismatch", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
