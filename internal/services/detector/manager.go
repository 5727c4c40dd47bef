package detector

import (
	"errors"
	"fmt"
	"sort"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/features"
)

var ErrUnknownResolution = errors.New("detector: resolution not configured")

// Option configures Manager.
type Option func(*Config)

// Config holds detector-manager configuration.
type Config struct {
	Gap              GapConfig
	Swing            SwingConfig
	GapEnabled       bool
	SwingEnabled     bool
	Volatility       string
	VolatilityWindow int
	VolumeWindow     int
}

// WithGap enables the gap detector with cfg.
func WithGap(cfg GapConfig) Option {
	return func(c *Config) {
		c.Gap = cfg
		c.GapEnabled = true
	}
}

// WithSwing enables the swing detector with cfg.
func WithSwing(cfg SwingConfig) Option {
	return func(c *Config) {
		c.Swing = cfg
		c.SwingEnabled = true
	}
}

// WithoutGap disables the gap detector.
func WithoutGap() Option {
	return func(c *Config) {
		c.GapEnabled = false
	}
}

// WithoutSwing disables the swing detector.
func WithoutSwing() Option {
	return func(c *Config) {
		c.SwingEnabled = false
	}
}

// WithIndicators selects the volatility estimator and indicator windows.
func WithIndicators(estimator string, volWindow, volumeWindow int) Option {
	return func(c *Config) {
		c.Volatility = estimator
		c.VolatilityWindow = volWindow
		c.VolumeWindow = volumeWindow
	}
}

type lane struct {
	indicators *features.Set
	detectors  []Detector
}

// Manager owns one lane of indicators and detectors per resolution.
type Manager struct {
	lanes       map[models.Resolution]*lane
	resolutions []models.Resolution
}

// NewManager builds a lane for every distinct resolution.
func NewManager(resolutions []models.Resolution, opts ...Option) (*Manager, error) {
	cfg := Config{
		Gap:              DefaultGapConfig(),
		Swing:            DefaultSwingConfig(),
		GapEnabled:       true,
		SwingEnabled:     true,
		Volatility:       features.EstimatorATR,
		VolatilityWindow: 14,
		VolumeWindow:     20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SwingEnabled && (cfg.Swing.Lookback < MinLookback || cfg.Swing.Lookback > MaxLookback) {
		return nil, models.NewValidationError("swing.lookback", fmt.Sprintf("%d outside [%d, %d]", cfg.Swing.Lookback, MinLookback, MaxLookback))
	}

	m := &Manager{lanes: make(map[models.Resolution]*lane, len(resolutions))}
	for _, r := range resolutions {
		if _, ok := m.lanes[r]; ok {
			continue
		}
		vol, err := features.NewVolatility(cfg.Volatility, cfg.VolatilityWindow)
		if err != nil {
			return nil, fmt.Errorf("resolution %s: %w", r, err)
		}
		l := &lane{indicators: &features.Set{Volatility: vol, Volume: features.NewVolumeSMA(cfg.VolumeWindow)}}
		if cfg.GapEnabled {
			l.detectors = append(l.detectors, NewGapDetector(r, cfg.Gap))
		}
		if cfg.SwingEnabled {
			l.detectors = append(l.detectors, NewSwingDetector(r, cfg.Swing))
		}
		m.lanes[r] = l
		m.resolutions = append(m.resolutions, r)
	}
	sort.Slice(m.resolutions, func(i, j int) bool { return m.resolutions[i] < m.resolutions[j] })
	return m, nil
}

// Resolutions returns the configured resolutions, finest first.
func (m *Manager) Resolutions() []models.Resolution {
	out := make([]models.Resolution, len(m.resolutions))
	copy(out, m.resolutions)
	return out
}

// Update advances the resolution's indicators with bar, then runs its
// detectors with the fresh values.
func (m *Manager) Update(res models.Resolution, bar models.Bar) ([]models.PatternEvent, error) {
	l, ok := m.lanes[res]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResolution, res)
	}
	return l.detect(bar, l.indicators.Update(bar)), nil
}

// UpdateWith runs the resolution's detectors with caller-supplied indicator
// values; the manager's own indicators are left untouched.
func (m *Manager) UpdateWith(res models.Resolution, bar models.Bar, ind features.Values) ([]models.PatternEvent, error) {
	l, ok := m.lanes[res]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResolution, res)
	}
	return l.detect(bar, ind), nil
}

// Reset clears one resolution's detectors and indicators.
func (m *Manager) Reset(res models.Resolution) error {
	l, ok := m.lanes[res]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResolution, res)
	}
	l.reset()
	return nil
}

// ResetAll clears every lane.
func (m *Manager) ResetAll() {
	for _, l := range m.lanes {
		l.reset()
	}
}

func (l *lane) detect(bar models.Bar, ind features.Values) []models.PatternEvent {
	var out []models.PatternEvent
	for _, d := range l.detectors {
		out = append(out, d.Update(bar, ind)...)
	}
	return out
}

func (l *lane) reset() {
	l.indicators.Reset()
	for _, d := range l.detectors {
		d.Reset()
	}
}
