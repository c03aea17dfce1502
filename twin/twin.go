package twin

import (
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/meshworks/twin-registry/core/access"
	"github.com/meshworks/twin-registry/core/logger"
	"github.com/meshworks/twin-registry/core/schema"
)

// Twin is a registered digital-twin record, owned by one user.
type Twin struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	SpecURL         string     `json:"specURL"`
	Capabilities    []string   `json:"capabilities"`
	EventMeshURL    string     `json:"eventMeshURL"`
	LastTelemetryAt *time.Time `json:"lastTelemetryAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// API is the RESTful interface of the twin registry.
type API struct {
	store               Store
	defaultEventMeshURL string
	validator           *schema.Validator
}

// Builder is a builder helper for the twin registry API
type Builder struct {
	// Store is the twin record store. This is mandatory.
	Store Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// DefaultEventMeshURL is used for registrations that do not name an
	// event mesh endpoint.
	DefaultEventMeshURL string
}

const twinRequestSchemaID = "urn:twin-registry:twin-request"

// twinRequestSchema describes the shape of register and update bodies.
// Field presence is checked in the handlers, the schema only rejects
// documents of the wrong shape.
var twinRequestSchema = `{
	"$id": "` + twinRequestSchemaID + `",
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"specURL": {"type": "string"},
		"capabilities": {"type": "array", "items": {"type": "string"}},
		"eventMeshURL": {"type": "string"}
	}
}`

// MustNewAPI realizes the actual API. It adds the actual routes to the router.
func MustNewAPI(b *Builder) *API {

	if b.Store == nil {
		panic("Store is missing")
	}

	if b.Router == nil {
		panic("Router is missing")
	}

	a := &API{
		store:               b.Store,
		defaultEventMeshURL: b.DefaultEventMeshURL,
		validator:           schema.MustNewValidator(twinRequestSchema),
	}
	a.handleRoutes(b.Router)

	return a
}

// handleRoutes adds handlers for the routes of the twin registry
func (a *API) handleRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("twin registry")
	rlog.Debugln("  handle route: /twin.register POST")
	rlog.Debugln("  handle route: /twin.query GET")
	rlog.Debugln("  handle route: /twins GET")
	rlog.Debugln("  handle route: /twin/{twin_id} GET,PUT,DELETE")
	rlog.Debugln("  handle route: /twin/{twin_id}/heartbeat POST")

	router.HandleFunc("/twin.register", a.register).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/twin.query", a.query).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/twins", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/twin.query", http.StatusFound)
	}).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/twin/{twin_id}", a.get).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/twin/{twin_id}", a.update).Methods(http.MethodPut)
	router.HandleFunc("/twin/{twin_id}", a.delete).Methods(http.MethodDelete)
	router.HandleFunc("/twin/{twin_id}/heartbeat", a.heartbeat).Methods(http.MethodOptions, http.MethodPost)
}

// userCaller returns the user caller for the request, or writes 401 and
// returns nil. Privileged service callers are rejected as well: every route
// but the per-twin heartbeat needs a user identity for owner scoping.
func userCaller(w http.ResponseWriter, r *http.Request) *access.Caller {
	caller := access.CallerFromContext(r.Context())
	if !caller.IsUser() {
		writeError(w, http.StatusUnauthorized, "user authorization required")
		return nil
	}
	return caller
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	caller := userCaller(w, r)
	if caller == nil {
		return
	}

	body, _ := io.ReadAll(r.Body)
	if err := a.validator.Validate(twinRequestSchemaID, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		ID           string   `json:"id"`
		SpecURL      string   `json:"specURL"`
		Capabilities []string `json:"capabilities"`
		EventMeshURL string   `json:"eventMeshURL"`
	}
	json.Unmarshal(body, &req)

	if len(req.SpecURL) == 0 {
		writeError(w, http.StatusBadRequest, "specURL is required")
		return
	}
	if !validateCapabilities(req.Capabilities) {
		writeError(w, http.StatusBadRequest, "capability must not contain the ',' delimiter")
		return
	}

	t := Twin{
		ID:           req.ID,
		OwnerID:      caller.UserID,
		SpecURL:      req.SpecURL,
		Capabilities: req.Capabilities,
		EventMeshURL: req.EventMeshURL,
	}
	if len(t.ID) == 0 {
		t.ID = uuid.New().String()
	}
	if len(t.EventMeshURL) == 0 {
		t.EventMeshURL = a.defaultEventMeshURL
	}
	if t.Capabilities == nil {
		t.Capabilities = []string{}
	}

	created, err := a.store.Create(r.Context(), t)
	if err != nil {
		rlog.WithError(err).Errorln("cannot create twin")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) query(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	caller := userCaller(w, r)
	if caller == nil {
		return
	}

	twins, err := a.store.ListByOwner(r.Context(), caller.UserID)
	if err != nil {
		rlog.WithError(err).Errorln("cannot list twins")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, twins)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	caller := userCaller(w, r)
	if caller == nil {
		return
	}

	id := mux.Vars(r)["twin_id"]
	t, err := a.store.GetByIDAndOwner(r.Context(), id, caller.UserID)
	if err == ErrNotFound {
		writeError(w, http.StatusNotFound, "no such twin")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("cannot read twin")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	caller := userCaller(w, r)
	if caller == nil {
		return
	}

	body, _ := io.ReadAll(r.Body)
	if err := a.validator.Validate(twinRequestSchemaID, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// absent fields keep their stored value
	var req struct {
		SpecURL      *string   `json:"specURL"`
		Capabilities *[]string `json:"capabilities"`
	}
	json.Unmarshal(body, &req)

	if req.SpecURL != nil && len(*req.SpecURL) == 0 {
		writeError(w, http.StatusBadRequest, "specURL is required")
		return
	}
	if req.Capabilities != nil && !validateCapabilities(*req.Capabilities) {
		writeError(w, http.StatusBadRequest, "capability must not contain the ',' delimiter")
		return
	}

	id := mux.Vars(r)["twin_id"]
	t, err := a.store.UpdateByIDAndOwner(r.Context(), id, caller.UserID,
		Update{SpecURL: req.SpecURL, Capabilities: req.Capabilities})
	if err == ErrNotFound {
		writeError(w, http.StatusBadRequest, "no such twin")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("cannot update twin")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	caller := userCaller(w, r)
	if caller == nil {
		return
	}

	id := mux.Vars(r)["twin_id"]
	err := a.store.DeleteByIDAndOwner(r.Context(), id, caller.UserID)
	if err == ErrNotFound {
		writeError(w, http.StatusBadRequest, "no such twin")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("cannot delete twin")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// heartbeat stamps the twin's last telemetry time. The route accepts a
// privileged service caller or the twin's owner; for service callers the
// owner scope does not apply.
func (a *API) heartbeat(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	caller := access.CallerFromContext(r.Context())
	if !caller.IsService() && !caller.IsUser() {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	ownerID := ""
	if caller.IsUser() {
		ownerID = caller.UserID
	}

	id := mux.Vars(r)["twin_id"]
	err := a.store.Touch(r.Context(), id, ownerID, time.Now().UTC())
	if err == ErrNotFound {
		writeError(w, http.StatusBadRequest, "no such twin")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("cannot stamp twin telemetry")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, object interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jsonData, _ := json.MarshalIndent(object, "", " ")
	w.Write(jsonData)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
