package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
)

func serveConfig() config.ServeConfig {
	return config.ServeConfig{Limit: 10, RequestTimeout: time.Minute, ShutdownTimeout: time.Second}
}

func sampleResult() calc.CalculationResult {
	return calc.CalculationResult{
		MotorName:            "MN5008",
		Manufacturer:         "T-Motor",
		PropDiameter:         "18",
		PropPitch:            "10.0",
		Power:                calc.Number(612),
		MotorWeight:          calc.Number(380),
		TractionBySpeed:      map[int]calc.Value{0: calc.Number(4000), 9: calc.Number(3820)},
		EffAtTargetPower:     calc.OutOfRange(),
		TargetPowerMatchMode: calc.ModeError,
	}
}

const validBody = `{"weight": 18000, "wingspan": "3900", "wing_area": "190.3", "speed": "1", "thrust": "5000", "battery_cells": 6}`

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/calculate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s := NewServer(serveConfig(), nil, zaptest.NewLogger(t))
	for _, path := range []string{"/", "/healthz"} {
		rec := httptest.NewRecorder()
		s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status": "eCalc Automation API is running"}`, rec.Body.String())
	}
}

func TestCalculate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotInputs map[string]string
		var gotLimit int
		pipeline := func(ctx context.Context, inputs map[string]string, limit int) ([]calc.CalculationResult, error) {
			gotInputs, gotLimit = inputs, limit
			return []calc.CalculationResult{sampleResult()}, nil
		}
		s := NewServer(serveConfig(), pipeline, zaptest.NewLogger(t))

		rec := post(t, s.Routes(), validBody)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, 10, gotLimit)
		assert.Equal(t, map[string]string{
			"weight":        "18000",
			"wingspan":      "3900",
			"wing_area":     "190.3",
			"speed":         "1",
			"thrust":        "5000",
			"battery_cells": "6",
			"wing_type":     DefaultWingType,
		}, gotInputs)
		assert.JSONEq(t, `[{
			"motor_name": "MN5008",
			"manufacturer": "T-Motor",
			"prop_diam": "18",
			"prop_pitch": "10.0",
			"power": "612",
			"traction": "4000",
			"motor_weight": "380",
			"drive_weight": "N/A",
			"eff_at_power": "OutOfRange",
			"target_power_match_mode": "error"
		}]`, rec.Body.String())
	})

	t.Run("WingTypeOverride", func(t *testing.T) {
		var gotInputs map[string]string
		pipeline := func(ctx context.Context, inputs map[string]string, limit int) ([]calc.CalculationResult, error) {
			gotInputs = inputs
			return nil, nil
		}
		s := NewServer(serveConfig(), pipeline, zaptest.NewLogger(t))

		rec := post(t, s.Routes(), strings.Replace(validBody, "}", `, "wing_type": "Asa voadora"}`, 1))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Asa voadora", gotInputs["wing_type"])
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("MissingFields", func(t *testing.T) {
		called := false
		pipeline := func(context.Context, map[string]string, int) ([]calc.CalculationResult, error) {
			called = true
			return nil, nil
		}
		s := NewServer(serveConfig(), pipeline, zaptest.NewLogger(t))

		rec := post(t, s.Routes(), `{"weight": "18000", "speed": "1"}`)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "wingspan, wing_area, thrust, battery_cells")
		assert.False(t, called)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		s := NewServer(serveConfig(), nil, zaptest.NewLogger(t))

		for _, body := range []string{`{"weight":`, `{"weight": true}`} {
			rec := post(t, s.Routes(), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Contains(t, rec.Body.String(), "Invalid request body")
		}
	})

	t.Run("PipelineError", func(t *testing.T) {
		pipeline := func(context.Context, map[string]string, int) ([]calc.CalculationResult, error) {
			return nil, errors.New("login failed")
		}
		s := NewServer(serveConfig(), pipeline, zaptest.NewLogger(t))

		rec := post(t, s.Routes(), validBody)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"detail": "login failed"}`, rec.Body.String())
	})

	t.Run("OneCalculationAtATime", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		pipeline := func(ctx context.Context, _ map[string]string, _ int) ([]calc.CalculationResult, error) {
			close(started)
			<-release
			return nil, nil
		}
		s := NewServer(serveConfig(), pipeline, zaptest.NewLogger(t))
		h := s.Routes()

		first := make(chan int, 1)
		go func() { first <- post(t, h, validBody).Code }()
		<-started

		rec := post(t, h, validBody)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		close(release)
		assert.Equal(t, http.StatusOK, <-first)
	})
}

func TestSetupFinderInputFields(t *testing.T) {
	var in SetupFinderInput
	require.NoError(t, json.Unmarshal([]byte(`{"weight": 18000.5, "wingspan": null, "wing_area": "190,3"}`), &in))
	assert.Equal(t, Field("18000.5"), in.Weight)
	assert.Equal(t, Field(""), in.Wingspan)
	assert.Equal(t, Field("190,3"), in.WingArea)

	_, missing := in.Inputs()
	assert.Equal(t, []string{"wingspan", "speed", "thrust", "battery_cells"}, missing)
}

func TestServeShutsDownWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(serveConfig(), nil, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
