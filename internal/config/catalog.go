package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HoursConfig is an opening window for one weekday.
type HoursConfig struct {
	Day        int    `yaml:"day"`   // 1=Mon, 7=Sun
	Open       string `yaml:"open"`  // "09:00"
	Close      string `yaml:"close"` // "17:00"
	BreakStart string `yaml:"break_start,omitempty"`
	BreakEnd   string `yaml:"break_end,omitempty"`
	Closed     bool   `yaml:"closed,omitempty"`
}

// OfferConfig describes a purchasable offer of a service.
type OfferConfig struct {
	ID              int    `yaml:"id"`
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	PriceCents      int64  `yaml:"price_cents"`
	Currency        string `yaml:"currency"`
	IsActive        *bool  `yaml:"is_active,omitempty"`
}

// EmployeeConfig describes an employee of a service.
type EmployeeConfig struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	TelegramChatID int64  `yaml:"telegram_chat_id,omitempty"`
	IsActive       *bool  `yaml:"is_active,omitempty"`
}

// ServiceConfig represents a single service with its offers, employees and weekly hours.
type ServiceConfig struct {
	ID           int              `yaml:"id"`
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Timezone     string           `yaml:"timezone"`
	IsActive     bool             `yaml:"is_active"`
	OpeningHours []HoursConfig    `yaml:"opening_hours"`
	Offers       []OfferConfig    `yaml:"offers"`
	Employees    []EmployeeConfig `yaml:"employees"`
}

// HolidayConfig closes every service on a date.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-25"
	Name string `yaml:"name"`
}

// DefaultsConfig represents global default settings.
type DefaultsConfig struct {
	Timezone string       `yaml:"timezone"`
	Hours    *HoursConfig `yaml:"hours"`
	DaysOff  []int        `yaml:"days_off"` // 1=Mon, 7=Sun
	Currency string       `yaml:"currency"`
}

// CatalogConfig is the root configuration for catalog.yaml.
type CatalogConfig struct {
	Services []ServiceConfig `yaml:"services"`
	Defaults DefaultsConfig  `yaml:"defaults"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*CatalogConfig, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes, validates and defaults catalog YAML.
func ParseCatalog(data []byte) (*CatalogConfig, error) {
	var cfg CatalogConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *CatalogConfig) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}

	serviceIDs := make(map[int]bool)
	offerIDs := make(map[int]bool)
	employeeIDs := make(map[int]bool)

	for i, svc := range c.Services {
		prefix := fmt.Sprintf("service[%d]", i)
		if svc.ID <= 0 {
			return fmt.Errorf("%s: id must be positive, got %d", prefix, svc.ID)
		}
		if serviceIDs[svc.ID] {
			return fmt.Errorf("%s: duplicate id %d", prefix, svc.ID)
		}
		serviceIDs[svc.ID] = true

		if svc.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}
		if svc.Timezone != "" {
			if _, err := time.LoadLocation(svc.Timezone); err != nil {
				return fmt.Errorf("%s: unknown timezone %q", prefix, svc.Timezone)
			}
		}

		days := make(map[int]bool)
		for j := range svc.OpeningHours {
			h := &svc.OpeningHours[j]
			hp := fmt.Sprintf("%s.opening_hours[%d]", prefix, j)
			if h.Day < 1 || h.Day > 7 {
				return fmt.Errorf("%s: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", hp, h.Day)
			}
			if days[h.Day] {
				return fmt.Errorf("%s: duplicate day %d", hp, h.Day)
			}
			days[h.Day] = true
			if err := validateHours(h, hp); err != nil {
				return err
			}
		}

		for j, o := range svc.Offers {
			op := fmt.Sprintf("%s.offers[%d]", prefix, j)
			if o.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", op, o.ID)
			}
			if offerIDs[o.ID] {
				return fmt.Errorf("%s: duplicate id %d", op, o.ID)
			}
			offerIDs[o.ID] = true
			if o.Name == "" {
				return fmt.Errorf("%s: name is required", op)
			}
			if o.DurationMinutes <= 0 {
				return fmt.Errorf("%s: duration_minutes must be positive", op)
			}
			if o.PriceCents < 0 {
				return fmt.Errorf("%s: price_cents cannot be negative", op)
			}
		}

		for j, e := range svc.Employees {
			ep := fmt.Sprintf("%s.employees[%d]", prefix, j)
			if e.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", ep, e.ID)
			}
			if employeeIDs[e.ID] {
				return fmt.Errorf("%s: duplicate id %d", ep, e.ID)
			}
			employeeIDs[e.ID] = true
			if e.Name == "" {
				return fmt.Errorf("%s: name is required", ep)
			}
		}
	}

	if c.Defaults.Timezone != "" {
		if _, err := time.LoadLocation(c.Defaults.Timezone); err != nil {
			return fmt.Errorf("defaults.timezone: unknown timezone %q", c.Defaults.Timezone)
		}
	}

	if c.Defaults.Hours != nil {
		if err := validateHours(c.Defaults.Hours, "defaults.hours"); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	for i, d := range c.Defaults.DaysOff {
		if d < 1 || d > 7 {
			return fmt.Errorf("defaults.days_off[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", i, d)
		}
	}

	return nil
}

// validateHours checks a window configuration for errors. Closed days skip time checks.
func validateHours(h *HoursConfig, prefix string) error {
	if h.Closed {
		return nil
	}
	if h.Open == "" {
		return fmt.Errorf("%s.open is required", prefix)
	}
	if h.Close == "" {
		return fmt.Errorf("%s.close is required", prefix)
	}

	open, err := clockMinutes(h.Open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, h.Open)
	}

	closeAt, err := clockMinutes(h.Close)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, h.Close)
	}

	if closeAt <= open {
		return fmt.Errorf("%s: close must be after open", prefix)
	}

	if (h.BreakStart == "") != (h.BreakEnd == "") {
		return fmt.Errorf("%s: break_start and break_end must be set together", prefix)
	}

	if h.BreakStart != "" {
		breakStart, err := clockMinutes(h.BreakStart)
		if err != nil {
			return fmt.Errorf("%s.break_start: invalid format '%s', expected HH:MM", prefix, h.BreakStart)
		}

		breakEnd, err := clockMinutes(h.BreakEnd)
		if err != nil {
			return fmt.Errorf("%s.break_end: invalid format '%s', expected HH:MM", prefix, h.BreakEnd)
		}

		if breakEnd <= breakStart {
			return fmt.Errorf("%s: break_end must be after break_start", prefix)
		}

		if breakStart < open || breakEnd > closeAt {
			return fmt.Errorf("%s: break must be within opening hours", prefix)
		}
	}

	return nil
}

// applyDefaults fills timezone, currency and weekly hours of services that omit them.
// Days without configured hours get the default window, or stay closed when listed in days_off.
func (c *CatalogConfig) applyDefaults() {
	for i := range c.Services {
		svc := &c.Services[i]
		if svc.Timezone == "" {
			svc.Timezone = c.Defaults.Timezone
		}

		for j := range svc.Offers {
			if svc.Offers[j].Currency == "" {
				svc.Offers[j].Currency = c.Defaults.Currency
			}
		}

		if c.Defaults.Hours == nil {
			continue
		}

		configured := make(map[int]bool, len(svc.OpeningHours))
		for _, h := range svc.OpeningHours {
			configured[h.Day] = true
		}
		for day := 1; day <= 7; day++ {
			if configured[day] {
				continue
			}
			h := *c.Defaults.Hours
			h.Day = day
			h.Closed = h.Closed || c.isDayOff(day)
			svc.OpeningHours = append(svc.OpeningHours, h)
		}
	}
}

func (c *CatalogConfig) isDayOff(day int) bool {
	for _, d := range c.Defaults.DaysOff {
		if d == day {
			return true
		}
	}
	return false
}

// ServiceByID returns service config by ID.
func (c *CatalogConfig) ServiceByID(id int) *ServiceConfig {
	for i := range c.Services {
		if c.Services[i].ID == id {
			return &c.Services[i]
		}
	}
	return nil
}

// IsHoliday checks if a date is a holiday.
func (c *CatalogConfig) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format("2006-01-02")
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// String returns a summary of the configuration.
func (c *CatalogConfig) String() string {
	active, offers, employees := 0, 0, 0
	for _, svc := range c.Services {
		if svc.IsActive {
			active++
		}
		offers += len(svc.Offers)
		employees += len(svc.Employees)
	}
	return fmt.Sprintf("CatalogConfig: %d services (%d active), %d offers, %d employees, %d holidays",
		len(c.Services), active, offers, employees, len(c.Holidays))
}

// clockMinutes parses HH:MM into minutes after midnight. "24:00" is accepted as
// the end of the day.
func clockMinutes(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
