package model

// CarType selects which per-lane counters contribute to a report.
type CarType string

const (
	CarTypeHeavy CarType = "H"
	CarTypeLight CarType = "L"
	CarTypeBoth  CarType = "both"
)

// ParseCarType mirrors the upload form contract: anything that is not an
// explicit H or L selection means both categories.
func ParseCarType(raw string) CarType {
	switch raw {
	case string(CarTypeHeavy):
		return CarTypeHeavy
	case string(CarTypeLight):
		return CarTypeLight
	default:
		return CarTypeBoth
	}
}

// Label returns the CSV/chart rendering of the car type. The combined
// selection keeps its Polish label for parity with the exported reports.
func (c CarType) Label() string {
	if c == CarTypeBoth {
		return "Oba"
	}
	return string(c)
}

var weekdayNumbers = map[string]int{
	"Monday":    0,
	"Tuesday":   1,
	"Wednesday": 2,
	"Thursday":  3,
	"Friday":    4,
	"Saturday":  5,
	"Sunday":    6,
}

var weekdayTranslations = map[string]string{
	"Monday":    "Poniedziałek",
	"Tuesday":   "Wtorek",
	"Wednesday": "Środa",
	"Thursday":  "Czwartek",
	"Friday":    "Piątek",
	"Saturday":  "Sobota",
	"Sunday":    "Niedziela",
}

// WeekdayNumber maps an English weekday name to the Monday=0 numbering used
// by the report filter. The second result is false for unknown names.
func WeekdayNumber(name string) (int, bool) {
	n, ok := weekdayNumbers[name]
	return n, ok
}

// TranslateWeekday returns the Polish weekday name used in chart titles,
// falling back to the input when there is no translation.
func TranslateWeekday(name string) string {
	if t, ok := weekdayTranslations[name]; ok {
		return t
	}
	return name
}
