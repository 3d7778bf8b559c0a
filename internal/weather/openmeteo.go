// Package weather resolves the weather at a field from its coordinates.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cropdoc/internal/provider"
	"cropdoc/internal/types"
)

// Provider fetches the current weather at a coordinate. A nil snapshot with a
// nil error means the provider had nothing to say.
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64) (*types.WeatherSnapshot, error)
}

const sourceOpenMeteo = "open-meteo"

// OpenMeteo calls the Open-Meteo forecast API, which needs no key.
type OpenMeteo struct {
	baseURL string
	http    *http.Client
}

func NewOpenMeteo(baseURL string, timeout time.Duration) *OpenMeteo {
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1/forecast"
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &OpenMeteo{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type openMeteoResp struct {
	Current struct {
		Time          string   `json:"time"`
		Temperature   *float64 `json:"temperature_2m"`
		Humidity      *float64 `json:"relative_humidity_2m"`
		Precipitation *float64 `json:"precipitation"`
		WeatherCode   *int     `json:"weather_code"`
	} `json:"current"`
}

func (o *OpenMeteo) Fetch(ctx context.Context, lat, lon float64) (*types.WeatherSnapshot, error) {
	u, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, provider.Wrap(sourceOpenMeteo, "parse url", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation,weather_code")
	q.Set("timezone", "UTC")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, provider.Wrap(sourceOpenMeteo, "build request", err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, provider.Wrap(sourceOpenMeteo, "get", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, provider.StatusError(sourceOpenMeteo, resp.StatusCode, body)
	}
	var out openMeteoResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.Wrap(sourceOpenMeteo, "decode response", err)
	}
	return toSnapshot(out), nil
}

func toSnapshot(r openMeteoResp) *types.WeatherSnapshot {
	c := r.Current
	w := &types.WeatherSnapshot{
		TemperatureC: c.Temperature,
		HumidityPct:  c.Humidity,
		Source:       sourceOpenMeteo,
	}
	if c.WeatherCode != nil {
		w.Condition = Condition(*c.WeatherCode)
	}
	if c.Temperature != nil {
		w.HeatLevel = HeatLevel(*c.Temperature)
	}
	if c.Humidity != nil {
		precip := 0.0
		if c.Precipitation != nil {
			precip = *c.Precipitation
		}
		w.MoistureLevel = MoistureLevel(*c.Humidity, precip)
	}
	if t, err := time.Parse("2006-01-02T15:04", c.Time); err == nil {
		t = t.UTC()
		w.ObservedAt = &t
	}
	if w.TemperatureC == nil && w.HumidityPct == nil && w.Condition == "" {
		return nil
	}
	return w
}

// HeatLevel buckets an air temperature in °C.
func HeatLevel(c float64) string {
	switch {
	case c < 10:
		return "cold"
	case c < 25:
		return "mild"
	case c < 32:
		return "warm"
	default:
		return "hot"
	}
}

// MoistureLevel buckets relative humidity, treating any rain as wet.
func MoistureLevel(humidity, precipitationMM float64) string {
	switch {
	case precipitationMM > 0:
		return "wet"
	case humidity < 40:
		return "dry"
	case humidity < 70:
		return "moderate"
	default:
		return "humid"
	}
}

// Condition names a WMO weather interpretation code.
func Condition(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	default:
		return fmt.Sprintf("wmo-%d", code)
	}
}
