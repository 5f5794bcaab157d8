package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var startParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseStart accepts a date, an RFC 3339 timestamp or a phrase such as
// "next monday" relative to now. The service aligns the result to the
// start of its week.
func parseStart(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return now, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}

	r, err := startParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse start %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand start %q", s)
	}
	return r.Time.In(loc), nil
}
