package week

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnrecognizedDate is returned when input is neither YYYY-MM-DD nor a
// phrase the natural-language parser understands.
var ErrUnrecognizedDate = errors.New("unrecognized date")

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDate resolves input relative to now. It accepts YYYY-MM-DD, then
// English phrases such as "tomorrow" or "next friday". Empty input is now.
// The result is in now's location.
func ParseDate(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "today") {
		return now, nil
	}
	if t, err := time.ParseInLocation(DateLayout, input, now.Location()); err == nil {
		return t, nil
	}

	res, err := dateParser.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", input, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", input, ErrUnrecognizedDate)
	}
	return res.Time.In(now.Location()), nil
}
