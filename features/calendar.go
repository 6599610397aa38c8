package features

import (
	"strings"
	"sync"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/us"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

var holidaySets = map[string][]*cal.Holiday{
	"US": us.Holidays,
	"GB": gb.Holidays,
	"UK": gb.Holidays,
	"CA": ca.Holidays,
}

// HolidayCalendar reports public holidays of one country.
type HolidayCalendar struct {
	country string
	cal     *cal.BusinessCalendar
	mu      sync.Mutex
	cache   map[time.Time]bool
}

// NewHolidayCalendar returns the calendar for an ISO country code. An empty
// code means US.
func NewHolidayCalendar(country string) (*HolidayCalendar, error) {
	code := strings.ToUpper(strings.TrimSpace(country))
	if code == "" {
		code = "US"
	}
	set, ok := holidaySets[code]
	if !ok {
		return nil, errors.NewValidationError("holiday_country", "unsupported country", country)
	}
	c := cal.NewBusinessCalendar()
	c.AddHoliday(set...)
	return &HolidayCalendar{country: code, cal: c, cache: map[time.Time]bool{}}, nil
}

// Country returns the normalised country code.
func (h *HolidayCalendar) Country() string { return h.country }

// IsHoliday reports whether the calendar day of t is a holiday or the observed
// day of one.
func (h *HolidayCalendar) IsHoliday(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.cache[day]; ok {
		return v
	}
	actual, observed, _ := h.cal.IsHoliday(day)
	h.cache[day] = actual || observed
	return actual || observed
}
