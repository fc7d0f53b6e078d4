package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/covermed/hospital-coverage-scheduling/internal/identity"
	"github.com/covermed/hospital-coverage-scheduling/internal/slot"
)

func publishSlotHandler(mgr *slot.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := identity.ActorFromContext(r.Context())
		if !ok || actor.Role != identity.RoleDoctor {
			writeError(w, http.StatusForbidden, "doctor_required", "only doctors publish availability")
			return
		}

		var req PublishSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		tr, err := parseRange(req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
			return
		}

		created, err := mgr.PublishSlot(r.Context(), actor.ID, date, tr, req.IsManual)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(created))
	}
}

func reserveSubSlotHandler(mgr *slot.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := identity.ActorFromContext(r.Context())
		if !ok || actor.Role != identity.RoleHospital {
			writeError(w, http.StatusForbidden, "hospital_required", "only hospitals reserve sub-slots")
			return
		}

		parentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req ReserveSubSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		tr, err := parseRange(req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
			return
		}

		reserved, err := mgr.ReserveSubSlot(r.Context(), parentID, actor.ID, tr)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(reserved))
	}
}

func releaseSubSlotHandler(mgr *slot.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := mgr.ReleaseSubSlot(r.Context(), id); err != nil {
			handleSlotError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listBookedSubSlotsHandler(mgr *slot.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		booked, err := mgr.ListBookedSubSlots(r.Context(), parentID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(booked))
		for i := range booked {
			resp = append(resp, toSlotResponse(&booked[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func availableRangesHandler(mgr *slot.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		ranges, err := mgr.AvailableRanges(r.Context(), parentID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		if ranges == nil {
			ranges = []slot.TimeRange{}
		}
		writeJSON(w, http.StatusOK, ranges)
	}
}

func parseRange(start, end string) (slot.TimeRange, error) {
	s, err := slot.ParseTimeOfDay(start)
	if err != nil {
		return slot.TimeRange{}, err
	}
	e, err := slot.ParseTimeOfDay(end)
	if err != nil {
		return slot.TimeRange{}, err
	}
	return slot.TimeRange{Start: s, End: e}, nil
}

func handleSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.Is(err, slot.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, "out_of_range", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotNotParent):
		writeError(w, http.StatusConflict, "not_a_parent_slot", err.Error())
	case errors.Is(err, slot.ErrSlotBlocked):
		writeError(w, http.StatusConflict, "slot_blocked", err.Error())
	case errors.Is(err, slot.ErrSlotOverlap):
		writeError(w, http.StatusConflict, "slot_overlap", err.Error())
	case errors.Is(err, slot.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_busy", "slot is currently being reserved, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
