package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithRetry(3, time.Millisecond, 5*time.Millisecond))
	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, &out))
	assert.True(t, out.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithRetry(3, time.Millisecond, time.Millisecond))
	err := c.GetJSON(context.Background(), srv.URL, nil, &struct{}{})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetJSONDecodeErrorIsFinal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := NewClient(WithRetry(2, time.Millisecond, time.Millisecond))
	err := c.GetJSON(context.Background(), srv.URL, nil, &struct{}{})
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type pageRequest struct {
	Page  int    `query:"page" default:"1" validate:"gte=1"`
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Order string `query:"order" default:"desc" validate:"oneof=asc desc"`
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?limit=20", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	var in pageRequest
	require.Nil(t, ReadAndValidateRequest(c, &in))
	assert.Equal(t, 1, in.Page)
	assert.Equal(t, 20, in.Limit)
	assert.Equal(t, "desc", in.Order)

	req = httptest.NewRequest(http.MethodGet, "/?limit=9000&order=up", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	in = pageRequest{}
	errs, ok := ReadAndValidateRequest(c, &in).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "limit", errs[0].Field)
	assert.Equal(t, "ERR_LTE", errs[0].Code)
	assert.Equal(t, "ERR_ONEOF", errs[1].Code)
}

func TestAppErrorResponseStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, NotFoundError("product X not found")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitCSV(" a, b,,c "))
	assert.Nil(t, SplitCSV(""))
}

func TestHealthzReportsFailedDependency(t *testing.T) {
	var down atomic.Bool
	s := NewServer(nil, WithMetricsPath(""), WithCORS(false), WithHealthCheck(func(context.Context) error {
		if down.Load() {
			return errors.New("clickhouse: connection refused")
		}
		return nil
	}))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down.Store(true)
	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_UNAVAILABLE")
}
