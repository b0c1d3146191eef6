// Package integration exercises the full HTTP stack: echo, the middleware
// chain, handlers, services, and the file-backed store, with no network or
// external processes involved.
package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careroute/careroute/internal/domain/assignment"
	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/routing"
	"github.com/careroute/careroute/internal/platform/auth"
	"github.com/careroute/careroute/internal/platform/middleware"
	"github.com/careroute/careroute/internal/platform/store"
)

// testServer is an in-process server wired exactly like the production one,
// minus the listener. token, when set, is attached to every request as a
// bearer credential.
type testServer struct {
	e     *echo.Echo
	mem   *store.MemoryStore
	path  string
	token string
}

// newTestServer builds a server over a fresh snapshot path in a temp dir.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServer(t, filepath.Join(t.TempDir(), "snapshot.json"), nil)
}

// restartTestServer builds a second server over an existing snapshot path,
// simulating a process restart.
func restartTestServer(t *testing.T, path string) *testServer {
	t.Helper()
	return startTestServer(t, path, nil)
}

// startTestServer wires the stack. authMiddleware nil means dev auth (every
// request is admin); tests that cover the JWT path pass their own.
func startTestServer(t *testing.T, path string, authMiddleware echo.MiddlewareFunc) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	mem := store.NewMemory(path, logger)
	if err := mem.Load(); err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}

	regSvc := registry.NewService(mem.Patients(), mem.Doctors())
	querySvc := query.NewService(mem.Queries(), mem.Patients(), mem.Doctors(),
		routing.NewRouter(), nil, logger)
	engine := assignment.NewEngine()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	if authMiddleware != nil {
		e.Use(authMiddleware)
	} else {
		e.Use(auth.DevAuthMiddleware())
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	registry.NewHandler(regSvc).RegisterRoutes(apiV1)
	query.NewHandler(querySvc).RegisterRoutes(apiV1)
	assignment.NewHandler(engine, regSvc, querySvc).RegisterRoutes(apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "careroute",
			"store":   "memory",
		})
	})

	return &testServer{e: e, mem: mem, path: path}
}

// request serves one HTTP request through the full middleware chain. A non-nil
// body is sent as JSON.
func (ts *testServer) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if ts.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

// decodeJSON unmarshals a response body, failing the test on bad JSON.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// patientList and queryList mirror the paginated list envelope.
type patientList struct {
	Data  []*registry.Patient `json:"data"`
	Total int                 `json:"total"`
}

type queryList struct {
	Data  []*query.MedicalQuery `json:"data"`
	Total int                   `json:"total"`
}

// mustRegisterDoctor registers a doctor through the API and returns it.
func (ts *testServer) mustRegisterDoctor(t *testing.T, in registry.RegisterDoctorInput) *registry.Doctor {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/doctors", in)
	if rec.Code != http.StatusCreated {
		t.Fatalf("registering doctor: status %d, body %s", rec.Code, rec.Body.String())
	}
	var d registry.Doctor
	decodeJSON(t, rec, &d)
	return &d
}

// mustRegisterPatient registers a patient through the API and returns it.
func (ts *testServer) mustRegisterPatient(t *testing.T, in registry.RegisterPatientInput) *registry.Patient {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/patients", in)
	if rec.Code != http.StatusCreated {
		t.Fatalf("registering patient: status %d, body %s", rec.Code, rec.Body.String())
	}
	var p registry.Patient
	decodeJSON(t, rec, &p)
	return &p
}

// mustAssign binds a patient to a doctor through the API.
func (ts *testServer) mustAssign(t *testing.T, patientID, doctorID string) {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/patients/"+patientID+"/assign",
		map[string]string{"doctor_id": doctorID})
	if rec.Code != http.StatusOK {
		t.Fatalf("assigning patient: status %d, body %s", rec.Code, rec.Body.String())
	}
}

// mustSubmit submits a query through the API and returns it.
func (ts *testServer) mustSubmit(t *testing.T, in query.SubmitInput) *query.MedicalQuery {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/queries", in)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submitting query: status %d, body %s", rec.Code, rec.Body.String())
	}
	var q query.MedicalQuery
	decodeJSON(t, rec, &q)
	return &q
}

// newMemoryStore builds a bare store for tests that bypass the HTTP layer.
func newMemoryStore(path string) *store.MemoryStore {
	return store.NewMemory(path, zerolog.Nop())
}

// corruptFile overwrites a file with bytes that are not valid JSON.
func corruptFile(path string) error {
	return os.WriteFile(path, []byte("{not json"), 0o644)
}
