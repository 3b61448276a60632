package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/sessions"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// jobRoutes serves observed jobs and submits new ones.
type jobRoutes struct {
	store    storage.Store
	sessions *sessions.Coordinator
	master   salt.Client
}

type jobResponse struct {
	models.Job
	Returns []models.JobReturn `json:"returns"`
}

func (j *jobRoutes) list(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := parsePaging(r, 0)
	if err != nil {
		return err
	}
	jobs, err := j.store.ListJobs(r.Context(), limit, offset)
	if err != nil {
		return storeErr(err, "jobs")
	}
	return writeJSON(w, http.StatusOK, jobs)
}

func (j *jobRoutes) get(w http.ResponseWriter, r *http.Request) error {
	job, err := j.store.GetJobByJID(r.Context(), chi.URLParam(r, "jid"))
	if err != nil {
		return storeErr(err, "job")
	}
	returns, err := j.store.ListJobReturns(r.Context(), job.ID)
	if err != nil {
		return storeErr(err, "job returns")
	}
	return writeJSON(w, http.StatusOK, jobResponse{Job: *job, Returns: returns})
}

// run submits a job to the master under the caller's token and relays the
// master's raw result document.
func (j *jobRoutes) run(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}

	var req salt.RunRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Client == "" || req.Fun == "" {
		return errors.NewInvalidRequestError("client and fun are required", nil)
	}

	result, err := sessions.Call(r.Context(), j.sessions, status, func(token *salt.Token) (json.RawMessage, error) {
		return j.master.Run(r.Context(), token, req)
	})
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result); err != nil {
		logger.Errorw("writing job result", "error", err)
	}
	return nil
}
