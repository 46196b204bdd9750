package http

import (
	"net/http"

	"ucontrol/internal/core"
	"ucontrol/internal/period"
)

const (
	actionGetPeriods = "getPeriods"
	actionCheckDate  = "checkDate"
)

type cutoffActionRequest struct {
	Action      string `json:"action"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Date        string `json:"date"`
	PeriodMonth string `json:"periodMonth"`
}

func (s *Server) handleGetCutoff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Cutoff.Get())
}

func (s *Server) handleUpdateCutoff(w http.ResponseWriter, r *http.Request) {
	var u period.CutoffUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	view, err := s.svc.Cutoff.Update(ctx, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCutoffAction answers period queries under the current cutoff day.
func (s *Server) handleCutoffAction(w http.ResponseWriter, r *http.Request) {
	var req cutoffActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	switch req.Action {
	case actionGetPeriods:
		if err := missingFields([2]string{"startDate", req.StartDate}, [2]string{"endDate", req.EndDate}); err != nil {
			writeError(w, r, err)
			return
		}
		start, err := parseDateField("startDate", req.StartDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		end, err := parseDateField("endDate", req.EndDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"periods": s.svc.Cutoff.Periods(start, end)})

	case actionCheckDate:
		if err := missingFields([2]string{"date", req.Date}, [2]string{"periodMonth", req.PeriodMonth}); err != nil {
			writeError(w, r, err)
			return
		}
		d, err := parseDateField("date", req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in, err := s.svc.Cutoff.CheckDate(d, req.PeriodMonth)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"isInPeriod": in})

	case "":
		writeError(w, r, missingFields([2]string{"action", ""}))
	default:
		writeError(w, r, badRequest("Acción no válida: %q (use %s o %s)", req.Action, actionGetPeriods, actionCheckDate))
	}
}

func parseDateField(name, value string) (core.Date, error) {
	d, err := core.ParseDate(sanitizeInput(value))
	if err != nil {
		return core.Date{}, badRequest("Fecha inválida en %s: %q (formato YYYY-MM-DD)", name, value)
	}
	return d, nil
}
