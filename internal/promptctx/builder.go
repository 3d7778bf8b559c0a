// Package promptctx turns request metadata into the narrative blocks that are
// spliced into diagnosis and planning prompts.
package promptctx

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"cropdoc/internal/types"
)

//go:embed crops.yaml
var cropsYAML []byte

// CropGuidance is one entry of the closed crop catalog.
type CropGuidance struct {
	Name           string   `yaml:"name"`
	Aliases        []string `yaml:"aliases"`
	Family         string   `yaml:"family"`
	CommonDiseases []string `yaml:"common_diseases"`
	CommonPests    []string `yaml:"common_pests"`
	Focus          []string `yaml:"focus"`
}

// PromptContext carries the three sections every prompt expects.
type PromptContext struct {
	Crop        *CropGuidance
	CropText    string
	WeatherText string
	PartsText   string
}

// Render joins the sections in fixed order.
func (p PromptContext) Render() string {
	var b strings.Builder
	b.WriteString("[CROP CONTEXT]\n")
	b.WriteString(p.CropText)
	b.WriteString("\n\n[WEATHER CONTEXT]\n")
	b.WriteString(p.WeatherText)
	b.WriteString("\n\n[AFFECTED PARTS]\n")
	b.WriteString(p.PartsText)
	b.WriteString("\n")
	return b.String()
}

var (
	catalogOnce sync.Once
	catalog     map[string]*CropGuidance
	catalogErr  error
)

func loadCatalog() (map[string]*CropGuidance, error) {
	catalogOnce.Do(func() {
		var crops []CropGuidance
		if err := yaml.Unmarshal(cropsYAML, &crops); err != nil {
			catalogErr = fmt.Errorf("promptctx: decode crop catalog: %w", err)
			return
		}
		catalog = make(map[string]*CropGuidance, len(crops)*2)
		for i := range crops {
			c := &crops[i]
			catalog[strings.ToLower(c.Name)] = c
			for _, a := range c.Aliases {
				catalog[strings.ToLower(strings.TrimSpace(a))] = c
			}
		}
	})
	return catalog, catalogErr
}

// LookupCrop matches cropType against the catalog, ignoring case.
func LookupCrop(cropType string) (*CropGuidance, bool) {
	key := strings.ToLower(strings.TrimSpace(cropType))
	if key == "" {
		return nil, false
	}
	cat, err := loadCatalog()
	if err != nil {
		return nil, false
	}
	c, ok := cat[key]
	return c, ok
}

// KnownCrops lists catalog names.
func KnownCrops() []string {
	cat, err := loadCatalog()
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, c := range cat {
		if !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
	}
	return out
}

// Build assembles crop, weather and affected-part narratives. weather
// overrides meta.Weather when non-nil.
func Build(meta types.Metadata, weather *types.WeatherSnapshot) PromptContext {
	if weather == nil {
		weather = meta.Weather
	}
	crop, _ := LookupCrop(meta.CropType)
	return PromptContext{
		Crop:        crop,
		CropText:    cropText(meta.CropType, crop),
		WeatherText: WeatherNarrative(weather),
		PartsText:   PartsNarrative(meta.AffectedParts),
	}
}

func cropText(cropType string, c *CropGuidance) string {
	if c == nil {
		var b strings.Builder
		if ct := strings.TrimSpace(cropType); ct != "" {
			fmt.Fprintf(&b, "Reported crop: %s (not in the reference catalog).\n", ct)
		} else {
			b.WriteString("Crop type was not reported.\n")
		}
		b.WriteString("Identify the crop from the photo before diagnosing. Consider fungal, bacterial, viral, pest and nutrient causes; ")
		b.WriteString("prefer broadly safe, integrated management advice when the crop is uncertain.")
		return b.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Crop: %s", c.Name)
	if c.Family != "" {
		fmt.Fprintf(&b, " (%s)", c.Family)
	}
	b.WriteString("\n")
	if len(c.CommonDiseases) > 0 {
		fmt.Fprintf(&b, "Common diseases: %s\n", strings.Join(c.CommonDiseases, ", "))
	}
	if len(c.CommonPests) > 0 {
		fmt.Fprintf(&b, "Common pests: %s\n", strings.Join(c.CommonPests, ", "))
	}
	for _, f := range c.Focus {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

// WeatherNarrative describes the snapshot, or says there is none. It always
// returns a non-empty section.
func WeatherNarrative(w *types.WeatherSnapshot) string {
	if w.IsEmpty() {
		return "No weather data available for this observation."
	}
	var lines []string
	if w.TemperatureC != nil {
		lines = append(lines, fmt.Sprintf("Temperature: %.1f°C", *w.TemperatureC))
	}
	if w.HumidityPct != nil {
		lines = append(lines, fmt.Sprintf("Humidity: %.0f%%", *w.HumidityPct))
	}
	if s := strings.TrimSpace(w.Condition); s != "" {
		lines = append(lines, "Conditions: "+s)
	}
	if s := strings.TrimSpace(w.HeatLevel); s != "" {
		lines = append(lines, "Heat level: "+s)
	}
	if s := strings.TrimSpace(w.MoistureLevel); s != "" {
		lines = append(lines, "Moisture level: "+s)
	}
	if s := strings.TrimSpace(w.Source); s != "" {
		lines = append(lines, "Source: "+s)
	}
	if w.ObservedAt != nil {
		lines = append(lines, "Observed at: "+w.ObservedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	lines = append(lines, "Weigh weather-driven pathogens (humidity favours fungal and bacterial disease, heat favours mites and stress disorders).")
	return strings.Join(lines, "\n")
}

// PartsNarrative describes which plant parts the farmer flagged.
func PartsNarrative(parts types.AffectedParts) string {
	var clean []string
	for _, p := range parts {
		clean = append(clean, ParseAffectedPartsText(p)...)
	}
	if len(clean) == 0 {
		return "No specific plant part was reported. Infer the affected parts visually from the photo."
	}
	return fmt.Sprintf("The farmer reports symptoms on: %s. Focus the examination on these parts first.", strings.Join(clean, ", "))
}

// ParseAffectedPartsText normalizes a comma-separated string into parts.
func ParseAffectedPartsText(s string) []string {
	return []string(types.ParseAffectedParts(s))
}
