package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
	"github.com/heartbeathq/heartbeat/internal/middleware"
	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/services"
	"github.com/heartbeathq/heartbeat/internal/store"
)

// degradedReporter is implemented by the fallback store wrapper.
type degradedReporter interface {
	Degraded() bool
}

// Router wires the HTTP surface to the services.
type Router struct {
	store        store.Store
	pulses       *services.PulseService
	dispatch     *services.DispatchService
	responses    *services.ResponseService
	analysis     *services.AnalysisService
	export       *services.ExportService
	authRequired bool
	log          *logrus.Entry
}

type RouterConfig struct {
	Store     store.Store
	Pulses    *services.PulseService
	Dispatch  *services.DispatchService
	Responses *services.ResponseService
	Analysis  *services.AnalysisService
	Export    *services.ExportService
	// AuthRequired rejects dashboard operations without a valid bearer
	// token. Response submission stays open either way.
	AuthRequired bool
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		store:        cfg.Store,
		pulses:       cfg.Pulses,
		dispatch:     cfg.Dispatch,
		responses:    cfg.Responses,
		analysis:     cfg.Analysis,
		export:       cfg.Export,
		authRequired: cfg.AuthRequired,
		log:          logger.Component("api"),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/pulses", rt.handlePulses)      // POST create, GET list
	mux.HandleFunc("/api/pulses/", rt.handlePulseScope) // id-scoped operations
	mux.HandleFunc("/api/responses", rt.handleResponses) // POST submit, GET list
}

// owner resolves the acting operator. Without auth everything belongs to the
// default operator.
func (rt *Router) owner(r *http.Request) (string, bool) {
	if uid, ok := middleware.OwnerFromContext(r.Context()); ok {
		return uid, true
	}
	if rt.authRequired {
		return "", false
	}
	return services.DefaultOwnerID, true
}

// pulseView decorates a pulse with its derived state and the storage health
// flag so the dashboard can warn about degraded persistence.
func (rt *Router) pulseView(p any) map[string]any {
	out := map[string]any{"pulse": p}
	if d, ok := rt.store.(degradedReporter); ok && d.Degraded() {
		out["storageDegraded"] = true
	}
	return out
}

// POST /api/pulses — create; GET /api/pulses — list the owner's pulses
func (rt *Router) handlePulses(w http.ResponseWriter, r *http.Request) {
	owner, ok := rt.owner(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name            string   `json:"name"`
			Emails          []string `json:"emails"`
			CustomQuestions []string `json:"customQuestions"`
			// Send triggers the first invitation batch immediately.
			Send bool `json:"send"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		p, err := rt.pulses.Create(r.Context(), owner, req.Name, req.Emails, req.CustomQuestions)
		if err != nil {
			writeError(w, err)
			return
		}
		out := rt.pulseView(p)
		out["state"] = p.State()
		if req.Send {
			report, err := rt.dispatch.SendAll(r.Context(), p.ID, nil)
			if err != nil {
				rt.log.WithError(err).WithField("pulse_id", p.ID).Warn("initial send failed")
			} else {
				out["dispatch"] = report
			}
		}
		writeJSON(w, http.StatusCreated, out)

	case http.MethodGet:
		pulses, err := rt.pulses.List(r.Context(), owner)
		if err != nil {
			writeError(w, err)
			return
		}
		type item struct {
			ID            string `json:"id"`
			Name          string `json:"name,omitempty"`
			CreatedAt     string `json:"createdAt"`
			Recipients    int    `json:"recipients"`
			SentCount     int    `json:"sentCount"`
			PendingCount  int    `json:"pendingCount"`
			ResponseCount int    `json:"responseCount"`
			HasAnalysis   bool   `json:"hasAnalysis"`
			Responded     bool   `json:"responded"`
			State         string `json:"state"`
		}
		out := make([]item, 0, len(pulses))
		for _, p := range pulses {
			out = append(out, item{
				ID:            p.ID,
				Name:          p.Name,
				CreatedAt:     p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				Recipients:    len(p.RecipientEmails),
				SentCount:     len(p.SentEmails),
				PendingCount:  len(p.PendingEmails),
				ResponseCount: p.ResponseCount,
				HasAnalysis:   p.HasAnalysis,
				Responded:     p.Responded(),
				State:         string(p.State()),
			})
		}
		resp := map[string]any{"pulses": out}
		if d, ok := rt.store.(degradedReporter); ok && d.Degraded() {
			resp["storageDegraded"] = true
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Routes under /api/pulses/{id}:
//
//	GET    /api/pulses/{id}            pulse detail
//	DELETE /api/pulses/{id}            delete with cascade
//	POST   /api/pulses/{id}/emails     send next / all invitations
//	GET    /api/pulses/{id}/recipients sent and pending lists
//	POST   /api/pulses/{id}/analyze    run or fetch the analysis
//	GET    /api/pulses/{id}/export     PDF report
func (rt *Router) handlePulseScope(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/pulses/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	if _, ok := rt.owner(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		rt.getPulse(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		rt.deletePulse(w, r, id)
	case action == "emails" && r.Method == http.MethodPost:
		rt.sendEmails(w, r, id)
	case action == "recipients" && r.Method == http.MethodGet:
		rt.getRecipients(w, r, id)
	case action == "analyze" && r.Method == http.MethodPost:
		rt.analyzePulse(w, r, id)
	case action == "export" && r.Method == http.MethodGet:
		rt.exportPulse(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) getPulse(w http.ResponseWriter, r *http.Request, id string) {
	p, err := rt.pulses.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := rt.pulseView(p)
	out["state"] = p.State()
	out["responded"] = p.Responded()
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) deletePulse(w http.ResponseWriter, r *http.Request, id string) {
	if err := rt.pulses.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// POST /api/pulses/{id}/emails
// {"mode": "next"} sends one invitation, {"mode": "all"} (default) drains
// the pending list. "emails" seeds recipients on a placeholder pulse.
func (rt *Router) sendEmails(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Mode   string   `json:"mode"`
		Emails []string `json:"emails"`
	}
	if r.Body != nil {
		// An empty body means "send everything".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.Mode == "next" {
		res, err := rt.dispatch.SendNext(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	report, err := rt.dispatch.SendAll(r.Context(), id, req.Emails)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) getRecipients(w http.ResponseWriter, r *http.Request, id string) {
	p, err := rt.pulses.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"emails":        p.RecipientEmails,
		"sentEmails":    p.SentEmails,
		"pendingEmails": p.PendingEmails,
		"responded":     p.Responded(),
	})
}

func (rt *Router) analyzePulse(w http.ResponseWriter, r *http.Request, id string) {
	res, err := rt.analysis.Analyze(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) exportPulse(w http.ResponseWriter, r *http.Request, id string) {
	p, err := rt.pulses.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	pdf, err := rt.export.BuildAnalysisPDF(p)
	if err != nil {
		writeError(w, err)
		return
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "pulse-analysis-"+name+".pdf"))
	_, _ = w.Write(pdf)
}

// POST /api/responses — submit; GET /api/responses?pulseId= — list raw
// responses (empty once analyzed).
func (rt *Router) handleResponses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			PulseID      string   `json:"pulseId"`
			RespondentID string   `json:"respondentId"`
			Response     string   `json:"response"`
			Questions    []string `json:"questions"`
			Answers      []string `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		var (
			resp *models.Response
			err  error
		)
		if len(req.Answers) > 0 {
			resp, err = rt.responses.SubmitAnswers(r.Context(), req.PulseID, req.RespondentID, req.Questions, req.Answers)
		} else {
			resp, err = rt.responses.Submit(r.Context(), req.PulseID, req.RespondentID, req.Response)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		out := map[string]any{"ok": true, "id": resp.ID}
		if p, err := rt.pulses.Get(r.Context(), req.PulseID); err == nil {
			out["responseCount"] = p.ResponseCount
		}
		writeJSON(w, http.StatusCreated, out)

	case http.MethodGet:
		pulseID := r.URL.Query().Get("pulseId")
		responses, err := rt.responses.List(r.Context(), pulseID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"responses": responses, "count": len(responses)})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
