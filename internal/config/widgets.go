package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/timeline"
	"github.com/tripboard/tripboard/internal/transit"
)

// Widget is one configured departure board.
type Widget struct {
	Name      string         `yaml:"name" validate:"required,max=64"`
	Mode      string         `yaml:"mode" validate:"required,oneof=bus lightRail"`
	StopID    string         `yaml:"stopId" validate:"max=32"`
	Automatic bool           `yaml:"automatic"`
	Position  *stop.Position `yaml:"position"`

	// Zero means the process default.
	HorizonMinutes int `yaml:"horizonMinutes" validate:"gte=0,lte=240"`
	StepMinutes    int `yaml:"stepMinutes" validate:"gte=0,lte=60"`
}

type widgetsFile struct {
	Widgets []Widget `yaml:"widgets" validate:"dive"`
}

// LoadWidgets reads and validates a widget definitions file.
func LoadWidgets(path string) ([]Widget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading widgets file: %w", err)
	}
	return ParseWidgets(data)
}

// ParseWidgets parses and validates widget definitions. Names must be unique.
func ParseWidgets(data []byte) ([]Widget, error) {
	var file widgetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing widgets: %w", err)
	}

	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("validating widgets: %w", err)
	}

	seen := make(map[string]bool, len(file.Widgets))
	for _, w := range file.Widgets {
		if seen[w.Name] {
			return nil, fmt.Errorf("validating widgets: duplicate name %q", w.Name)
		}
		seen[w.Name] = true
	}

	return file.Widgets, nil
}

// TimelineConfig converts the widget into a timeline configuration. A
// manual widget with no stop id queries the mode's default stop.
func (w Widget) TimelineConfig(defaultHorizon, defaultStep time.Duration) timeline.Config {
	mode := transit.Mode(w.Mode)

	stopID := w.StopID
	if !w.Automatic && stopID == "" {
		stopID = mode.DefaultStopID()
	}

	cfg := timeline.Config{
		Key: w.Name,
		Request: stop.Request{
			Mode:      mode,
			StopID:    stopID,
			Automatic: w.Automatic,
			Position:  w.Position,
		},
		Horizon: defaultHorizon,
		Step:    defaultStep,
	}
	if w.HorizonMinutes > 0 {
		cfg.Horizon = time.Duration(w.HorizonMinutes) * time.Minute
	}
	if w.StepMinutes > 0 {
		cfg.Step = time.Duration(w.StepMinutes) * time.Minute
	}
	return cfg
}

// DefaultWidgets returns one manual widget per mode at its default stop.
func DefaultWidgets() []Widget {
	widgets := make([]Widget, 0, len(transit.Modes()))
	for _, m := range transit.Modes() {
		widgets = append(widgets, Widget{Name: string(m), Mode: string(m), StopID: m.DefaultStopID()})
	}
	return widgets
}
