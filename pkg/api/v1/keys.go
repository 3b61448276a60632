package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/minions"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/sessions"
)

// keyRoutes brokers the master's key inventory.
type keyRoutes struct {
	sessions     *sessions.Coordinator
	master       salt.Client
	materializer *minions.Materializer
}

// list fetches the key inventory. The materialized fleet view is pruned
// against it as a side effect, so minions the master dropped disappear
// without waiting for a bus event.
func (k *keyRoutes) list(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	keys, err := sessions.Call(r.Context(), k.sessions, status, func(token *salt.Token) ([]salt.MinionKey, error) {
		return k.master.ListKeys(r.Context(), token)
	})
	if err != nil {
		return err
	}

	if n, err := k.materializer.Prune(r.Context(), salt.KnownIDs(keys)); err != nil {
		logger.Errorw("pruning minions after key list", "error", err)
	} else if n > 0 {
		logger.Infof("Pruned %d minions no longer known to the master", n)
	}

	return writeJSON(w, http.StatusOK, keys)
}

func (k *keyRoutes) accept(w http.ResponseWriter, r *http.Request) error {
	return k.mutate(w, r, k.master.AcceptKey)
}

func (k *keyRoutes) reject(w http.ResponseWriter, r *http.Request) error {
	return k.mutate(w, r, k.master.RejectKey)
}

func (k *keyRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	return k.mutate(w, r, k.master.DeleteKey)
}

func (k *keyRoutes) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, token *salt.Token, state salt.KeyState, id string) error) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	state := chi.URLParam(r, "state")
	if !salt.ValidKeyState(state) {
		return errors.NewInvalidRequestError(fmt.Sprintf("invalid key state %q", state), nil)
	}
	id := chi.URLParam(r, "id")

	err = sessions.Do(r.Context(), k.sessions, status, func(token *salt.Token) error {
		return op(r.Context(), token, salt.KeyState(state), id)
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}
