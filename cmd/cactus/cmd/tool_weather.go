package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
	"github.com/blacktop/go-cactus/internal/screen"
)

var (
	geocodeURL  = "https://nominatim.openstreetmap.org/search"
	forecastURL = "https://api.open-meteo.com/v1/forecast"
)

// weatherTool is the get_weather tool of the function calling demo.
var weatherTool = screen.WeatherTool()

type openMeteoResponse struct {
	Current struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		Humidity    int     `json:"relative_humidity_2m"`
		Pressure    float64 `json:"surface_pressure"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WindDir     int     `json:"wind_direction_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

type geocodeResult struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

type location struct {
	Name     string
	Lat, Lon float64
}

// weatherHandler answers get_weather with live OpenMeteo data.
type weatherHandler struct {
	client *http.Client
}

func (w *weatherHandler) Execute(ctx context.Context, args map[string]any) (cactus.ToolResult, error) {
	query, _ := args["location"].(string)
	units, _ := args["units"].(string)

	loc, err := w.geocode(ctx, query)
	if err != nil {
		return cactus.ToolResult{Error: fmt.Sprintf("failed to find location: %v", err)}, nil
	}
	data, err := w.forecast(ctx, loc)
	if err != nil {
		return cactus.ToolResult{Error: fmt.Sprintf("failed to fetch weather data: %v", err)}, nil
	}

	cur := data.Current
	temp := fmt.Sprintf("%.1f°C", cur.Temperature)
	wind := fmt.Sprintf("%.1f km/h", cur.WindSpeed)
	if strings.EqualFold(units, "fahrenheit") {
		temp = fmt.Sprintf("%.1f°F", cur.Temperature*9/5+32)
		wind = fmt.Sprintf("%.1f mph", cur.WindSpeed*0.621371)
	}
	return cactus.ToolResult{Content: fmt.Sprintf(`Weather for %s (%.4f, %.4f):
Temperature: %s
Condition: %s
Humidity: %d%%
Wind: %s %s
Pressure: %.1f hPa
Observed: %s`,
		loc.Name, loc.Lat, loc.Lon, temp, weatherCondition(cur.WeatherCode), cur.Humidity,
		wind, windDirection(cur.WindDir), cur.Pressure, cur.Time)}, nil
}

func (w *weatherHandler) getJSON(ctx context.Context, endpoint string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "cactus-cli")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// geocode resolves a place name with OpenStreetMap Nominatim.
func (w *weatherHandler) geocode(ctx context.Context, query string) (*location, error) {
	var results []geocodeResult
	if err := w.getJSON(ctx, geocodeURL, url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("location not found: %s", query)
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %v", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %v", err)
	}
	name := results[0].Name
	if name == "" {
		name = results[0].DisplayName
	}
	return &location{Name: name, Lat: lat, Lon: lon}, nil
}

func (w *weatherHandler) forecast(ctx context.Context, loc *location) (*openMeteoResponse, error) {
	var data openMeteoResponse
	if err := w.getJSON(ctx, forecastURL, url.Values{
		"latitude":  {strconv.FormatFloat(loc.Lat, 'f', 6, 64)},
		"longitude": {strconv.FormatFloat(loc.Lon, 'f', 6, 64)},
		"current":   {"temperature_2m,relative_humidity_2m,surface_pressure,wind_speed_10m,wind_direction_10m,weather_code"},
		"timezone":  {"auto"},
	}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// weatherCondition maps a WMO weather code to text.
func weatherCondition(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Foggy"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing rain"
	case 71, 73, 75:
		return "Snow"
	case 77:
		return "Snow grains"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown"
	}
}

func windDirection(degrees int) string {
	dirs := []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}
	return dirs[int((float64(degrees)+11.25)/22.5)%len(dirs)]
}

const weatherSystem = `You are a cheerful weather assistant with access to the get_weather tool.
You MUST call get_weather for current conditions and never make weather up.
Answer with a short, emoji-filled description of the real data.`

var weatherCmd = &cobra.Command{
	Use:   "weather [location]",
	Short: "Ask about the weather with the get_weather tool",
	Long: `Without a location this runs the function calling demo: the model is
asked about the weather in New York and the tool call it makes is shown
together with the live result. With a location the tool result is fed back so
the model can describe the weather.`,
	Example: `  # Function calling demo
  cactus tool weather

  # Describe the weather somewhere
  cactus tool weather "London, UK"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			fmt.Println("🌤️  Weather Tool Ready")
			fmt.Printf("Location: %s\n", args[0])
			prompt := fmt.Sprintf("What's the weather in %s right now?", args[0])
			return answerWithTools(cmd.Context(), weatherSystem, prompt, 200)
		}
		return functionDemo(cmd.Context())
	},
}

// functionDemo drives the function calling screen to completion.
func functionDemo(ctx context.Context) error {
	tools := cactus.NewToolbox()
	tools.Register(weatherTool, &weatherHandler{client: httpClient()})

	lm := newLM()
	ui := NewChatUI()
	s := screen.NewFunctionCallingScreen(lm, tools, func(v screen.FunctionView) {
		ui.UpdateTypingIndicator(v.Status)
	})
	defer s.Dispose()

	ui.ShowTypingIndicator(s.View().Status)
	err := runSteps(ctx, s, s.Download, s.Initialize, s.Generate)
	ui.HideTypingIndicator()
	if err != nil {
		return err
	}

	v := s.View()
	ui.PrintUserMessage(screen.WeatherPrompt)
	ui.PrintAssistantMessage(v.Summary())
	ui.PrintStatus(v.Status)
	if v.TPS > 0 {
		ui.PrintStatus(fmt.Sprintf("⏱️  TTFT %sms • %s tok/s", screen.Fixed(v.TTFT, 2), screen.Fixed(v.TPS, 2)))
	}
	return nil
}

func init() {
	toolCmd.AddCommand(weatherCmd)
}
