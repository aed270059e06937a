package screen

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

//go:embed route.geojson
var routeGeoJSON []byte

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Bounds is the bounding box of a route.
type Bounds struct {
	Min Point
	Max Point
}

// Center returns the middle of the box.
func (b Bounds) Center() Point {
	return Point{Lat: (b.Min.Lat + b.Max.Lat) / 2, Lon: (b.Min.Lon + b.Max.Lon) / 2}
}

// Route is a walking route with its start and destination markers.
type Route struct {
	Name  string
	Via   string
	Start Point
	End   Point
	Path  []Point
}

var (
	kingsCross  = Point{Lat: 51.530196851073775, Lon: -0.12006173031079728}
	towerBridge = Point{Lat: 51.5082258920356, Lon: -0.07524119963609556}
)

type geoFeature struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	Geometry   struct {
		Type        string `json:"type"`
		Coordinates any    `json:"coordinates"`
	} `json:"geometry"`
}

// LondonRoute returns the King's Cross to Tower Bridge route.
func LondonRoute() (Route, error) {
	var f struct {
		Properties map[string]string `json:"properties"`
		Geometry   struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	if err := json.Unmarshal(routeGeoJSON, &f); err != nil {
		return Route{}, fmt.Errorf("failed to parse route: %w", err)
	}
	r := Route{
		Name:  f.Properties["name"],
		Via:   f.Properties["via"],
		Start: kingsCross,
		End:   towerBridge,
	}
	for _, c := range f.Geometry.Coordinates {
		r.Path = append(r.Path, Point{Lat: c[1], Lon: c[0]})
	}
	return r, nil
}

const earthRadiusMeters = 6371008.8

// Haversine returns the great circle distance between a and b in meters.
func Haversine(a, b Point) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Distance is the length of the path in meters.
func (r Route) Distance() float64 {
	var d float64
	for i := 1; i < len(r.Path); i++ {
		d += Haversine(r.Path[i-1], r.Path[i])
	}
	return d
}

// Bounds covers the path and both markers.
func (r Route) Bounds() Bounds {
	b := Bounds{Min: r.Start, Max: r.Start}
	for _, p := range append([]Point{r.End}, r.Path...) {
		b.Min.Lat = math.Min(b.Min.Lat, p.Lat)
		b.Min.Lon = math.Min(b.Min.Lon, p.Lon)
		b.Max.Lat = math.Max(b.Max.Lat, p.Lat)
		b.Max.Lon = math.Max(b.Max.Lon, p.Lon)
	}
	return b
}

// GeoJSON renders the route line and the Start and Destination markers as a
// FeatureCollection.
func (r Route) GeoJSON() ([]byte, error) {
	line := geoFeature{Type: "Feature", Properties: map[string]string{"name": r.Name, "stroke": "#4285F4"}}
	line.Geometry.Type = "LineString"
	coords := make([][2]float64, 0, len(r.Path))
	for _, p := range r.Path {
		coords = append(coords, [2]float64{p.Lon, p.Lat})
	}
	line.Geometry.Coordinates = coords

	marker := func(title string, p Point) geoFeature {
		f := geoFeature{Type: "Feature", Properties: map[string]string{"title": title}}
		f.Geometry.Type = "Point"
		f.Geometry.Coordinates = [2]float64{p.Lon, p.Lat}
		return f
	}
	return json.MarshalIndent(map[string]any{
		"type":     "FeatureCollection",
		"features": []geoFeature{line, marker("Start", r.Start), marker("Destination", r.End)},
	}, "", "  ")
}

// MapView is the state of a MapScreen.
type MapView struct {
	DateTime string
}

// MapScreen shows the fixed route with a live clock.
type MapScreen struct {
	*base[MapView]

	Route Route
	// Now is the clock source, time.Now by default.
	Now func() time.Time
}

// NewMapScreen loads the route. Start begins the clock.
func NewMapScreen(onChange func(MapView)) (*MapScreen, error) {
	r, err := LondonRoute()
	if err != nil {
		return nil, err
	}
	return &MapScreen{base: newBase(MapView{}, onChange), Route: r, Now: time.Now}, nil
}

// Start refreshes the clock every second until Dispose.
func (s *MapScreen) Start() {
	s.launch(func(ctx context.Context) {
		tick(ctx, time.Second, s.Now, func(now string) {
			s.update(func(v *MapView) { v.DateTime = now })
		})
	})
}

// Dispose implements Screen.
func (s *MapScreen) Dispose() {
	s.dispose()
}
