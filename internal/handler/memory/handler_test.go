package memory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type fakeMemory struct {
	summary string
	cleared []string
	err     error
}

func (f *fakeMemory) GetSummary(_ context.Context, _ string) (string, error) {
	return f.summary, f.err
}

func (f *fakeMemory) Clear(_ context.Context, userID string) error {
	f.cleared = append(f.cleared, userID)
	return f.err
}

func router(svc Service) *chi.Mux {
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func TestGetMemory(t *testing.T) {
	r := router(&fakeMemory{summary: "Recent conversation topics: hi"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/memory?userId=u1", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"summary":"Recent conversation topics: hi"}`, resp.Body.String())
}

func TestGetMemoryRequiresUserID(t *testing.T) {
	r := router(&fakeMemory{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/memory", nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestClearMemory(t *testing.T) {
	fake := &fakeMemory{}
	r := router(fake)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/memory", strings.NewReader(`{"userId":"u1"}`)))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"u1"}, fake.cleared)
}

func TestClearMemoryStoreFailure(t *testing.T) {
	r := router(&fakeMemory{err: errors.New("db down")})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/memory", strings.NewReader(`{"userId":"u1"}`)))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "db down")
}
