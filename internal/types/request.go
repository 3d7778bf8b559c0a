package types

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// DiagnosisRequest is one photo plus the farmer's context. It is built once by
// the transport layer and never modified by the pipeline.
type DiagnosisRequest struct {
	Image    []byte   `json:"-"`
	MIMEType string   `json:"mimeType,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// ImageBase64 returns the transport encoding of the photo.
func (r *DiagnosisRequest) ImageBase64() string {
	if r == nil || len(r.Image) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(r.Image)
}

// ImageMIME returns the declared MIME type, sniffing the bytes when empty.
func (r *DiagnosisRequest) ImageMIME() string {
	if r == nil {
		return "image/jpeg"
	}
	if m := strings.TrimSpace(r.MIMEType); m != "" {
		return m
	}
	if len(r.Image) == 0 {
		return "image/jpeg"
	}
	m := http.DetectContentType(r.Image)
	if !strings.HasPrefix(m, "image/") {
		return "image/jpeg"
	}
	return m
}

// Metadata is the free-text farming context attached to a photo.
type Metadata struct {
	CropType      string           `json:"cropType,omitempty"`
	Latitude      *float64         `json:"latitude,omitempty"`
	Longitude     *float64         `json:"longitude,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	AffectedParts AffectedParts    `json:"affectedParts,omitempty"`
	Weather       *WeatherSnapshot `json:"weather,omitempty"`
	Timestamp     *time.Time       `json:"timestamp,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (m Metadata) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// AffectedParts is an ordered list of plant parts. Clients send either a JSON
// array or a single comma-separated string.
type AffectedParts []string

// ParseAffectedParts splits a comma-separated list, trimming blanks.
func ParseAffectedParts(s string) AffectedParts {
	var out AffectedParts
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// UnmarshalJSON accepts ["leaf","stem"], "leaf, stem" or null.
func (a *AffectedParts) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		var out AffectedParts
		for _, p := range list {
			out = append(out, ParseAffectedParts(p)...)
		}
		*a = out
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = ParseAffectedParts(s)
		return nil
	}
	// Odd payloads degrade to "nothing reported" instead of failing the request.
	*a = nil
	return nil
}

// WeatherSnapshot is the weather at the field when the photo was taken.
type WeatherSnapshot struct {
	TemperatureC  *float64   `json:"temperatureC,omitempty"`
	HumidityPct   *float64   `json:"humidityPct,omitempty"`
	Condition     string     `json:"condition,omitempty"`
	HeatLevel     string     `json:"heatLevel,omitempty"`
	MoistureLevel string     `json:"moistureLevel,omitempty"`
	Source        string     `json:"source,omitempty"`
	ObservedAt    *time.Time `json:"observedAt,omitempty"`
}

// IsEmpty reports whether no field of the snapshot carries data.
func (w *WeatherSnapshot) IsEmpty() bool {
	if w == nil {
		return true
	}
	return w.TemperatureC == nil &&
		w.HumidityPct == nil &&
		strings.TrimSpace(w.Condition) == "" &&
		strings.TrimSpace(w.HeatLevel) == "" &&
		strings.TrimSpace(w.MoistureLevel) == "" &&
		strings.TrimSpace(w.Source) == "" &&
		w.ObservedAt == nil
}
