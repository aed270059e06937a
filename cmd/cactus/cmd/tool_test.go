package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cactus "github.com/blacktop/go-cactus"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		a, b    any
		op      string
		want    string
		wantErr string
	}{
		{a: 15.0, b: 27.0, op: "add", want: "42.00"},
		{a: "144", b: 12, op: "/", want: "12.00"},
		{a: 2.5, b: 4.0, op: "multiply", want: "10.00"},
		{a: 1.0, b: 3.0, op: "subtract", want: "-2.00"},
		{a: 1.0, b: 0.0, op: "divide", wantErr: "division by zero"},
		{a: true, b: 1.0, op: "add", wantErr: "invalid argument 'a'"},
	}
	for _, tt := range tests {
		res, err := calculate(context.Background(), map[string]any{"a": tt.a, "b": tt.b, "operation": tt.op})
		require.NoError(t, err)
		if tt.wantErr != "" {
			assert.Contains(t, res.Error, tt.wantErr)
			continue
		}
		assert.Empty(t, res.Error)
		assert.Equal(t, tt.want, res.Content)
	}
}

func TestCalculatorToolValidation(t *testing.T) {
	tools := cactus.NewToolbox()
	tools.Register(calculatorTool, cactus.ToolHandlerFunc(calculate))

	res := tools.Execute(context.Background(), cactus.ToolCall{
		Name:      "calculator",
		Arguments: map[string]any{"a": 2.0, "b": 3.0, "operation": "modulo"},
	})
	assert.Contains(t, res.Error, "validation failed")

	res = tools.Execute(context.Background(), cactus.ToolCall{
		Name:      "calculator",
		Arguments: map[string]any{"a": 2.0, "b": 3.0, "operation": "*"},
	})
	assert.Empty(t, res.Error)
	assert.Equal(t, "6.00", res.Content)
}

func TestWeatherHelpers(t *testing.T) {
	assert.Equal(t, "Clear sky", weatherCondition(0))
	assert.Equal(t, "Thunderstorm with hail", weatherCondition(99))
	assert.Equal(t, "Unknown", weatherCondition(42))

	assert.Equal(t, "N", windDirection(0))
	assert.Equal(t, "E", windDirection(90))
	assert.Equal(t, "SSW", windDirection(200))
	assert.Equal(t, "N", windDirection(355))
}

func TestWeatherHandler(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "London", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"name":"London","display_name":"London, England","lat":"51.5074","lon":"-0.1278"}]`))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "51.507400", r.URL.Query().Get("latitude"))
		w.Write([]byte(`{"current":{"time":"2025-10-01T12:00","temperature_2m":20,"relative_humidity_2m":55,
			"surface_pressure":1012.5,"wind_speed_10m":10,"wind_direction_10m":270,"weather_code":2}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	oldGeo, oldForecast := geocodeURL, forecastURL
	geocodeURL, forecastURL = srv.URL+"/search", srv.URL+"/forecast"
	defer func() { geocodeURL, forecastURL = oldGeo, oldForecast }()

	h := &weatherHandler{client: srv.Client()}
	res, err := h.Execute(context.Background(), map[string]any{"location": "London", "units": "fahrenheit"})
	require.NoError(t, err)
	require.Empty(t, res.Error)
	assert.Contains(t, res.Content, "Weather for London (51.5074, -0.1278)")
	assert.Contains(t, res.Content, "Temperature: 68.0°F")
	assert.Contains(t, res.Content, "Condition: Partly cloudy")
	assert.Contains(t, res.Content, "Wind: 6.2 mph W")

	res, err = h.Execute(context.Background(), map[string]any{"location": "London"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Temperature: 20.0°C")
	assert.Contains(t, res.Content, "Wind: 10.0 km/h W")
}

func TestWeatherHandlerNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	old := geocodeURL
	geocodeURL = srv.URL
	defer func() { geocodeURL = old }()

	h := &weatherHandler{client: srv.Client()}
	res, err := h.Execute(context.Background(), map[string]any{"location": "Atlantis"})
	require.NoError(t, err)
	assert.Equal(t, "failed to find location: location not found: Atlantis", res.Error)
}

func TestShowMap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, showMap(&buf, false))
	assert.Contains(t, buf.String(), "King's Cross to Tower Bridge")
	assert.Contains(t, buf.String(), "Points:   63")

	buf.Reset()
	require.NoError(t, showMap(&buf, true))
	assert.Contains(t, buf.String(), `"FeatureCollection"`)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a", firstLine("a\nb"))
	assert.Equal(t, "abc", firstLine("abc"))
}

func TestDownloadHint(t *testing.T) {
	err := downloadHint(fmt.Errorf("failed to download qwen3-0.6: %w", cactus.ErrNoDownloadURL))
	assert.ErrorIs(t, err, cactus.ErrNoDownloadURL)
	assert.Contains(t, err.Error(), "catalog.download_url")

	other := errors.New("boom")
	assert.Same(t, other, downloadHint(other))
}
