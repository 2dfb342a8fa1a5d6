// Package normalizer translates textual device attribute states reported by the hub into the
// numeric values exposed as metrics.
package normalizer

import (
	"strconv"
	"strings"
)

const (
	// DataTypeNumber is the attribute data type whose current value is exported verbatim.
	DataTypeNumber = "NUMBER"
)

// Mapper converts the current value of a capability to a canonical numeric string. ok is false
// when the value has no numeric representation and the attribute should be omitted.
type Mapper func(value string) (out string, ok bool)

// Rule binds a capability name to its Mapper.
type Rule struct {
	Capability string
	Map        Mapper
}

// rules is evaluated in declaration order and the first capability match wins. A capability
// listed twice is only ever resolved by its first entry.
var rules = []Rule{
	{"acceleration", activeWhen("active")},
	{"alarm", inactiveWhen("off", "inactive")},
	{"presence", activeWhen("present")},
	{"presence", activeWhen("present")},
	{"switch", activeWhen("on")},
	{"button", activeWhen("pushed")},
	{"carbonMonoxide", activeWhen("detected")},
	{"status", activeWhen("playing")},
	{"consumableStatus", activeWhen("good")},
	{"contact", inactiveWhen("closed")},
	{"indicatorStatus", activeWhen("when on")},
	{"lock", inactiveWhen("locked")},
	{"motion", activeWhen("active")},
	{"shock", activeWhen("detected")},
	{"mute", activeWhen("muted")},
	{"sleeping", activeWhen("sleeping")},
	{"smoke", activeWhen("detected")},
	{"sound", activeWhen("detected")},
	{"tamper", activeWhen("detected")},
	{"door", enum("closed", "closing", "open", "opening", "unknown")},
	{"thermostatMode", enum("off", "auto", "heat", "cool", "emergency heat")},
	{"thermostatFanMode", inactiveWhen("off")},
	{"thermostatOperatingState", enum("idle", "heating", "cooling", "pending heat", "pending cool", "vent economizer", "fan only")},
	{"thermostatSetpointMode", inactiveWhen("followSchedule")},
	{"timedSession", activeWhen("running")},
	{"touch", activeWhen("touched")},
	{"valve", activeWhen("open")},
	{"camera", activeWhen("on")},
	{"water", activeWhen("wet")},
	{"windowShade", activeWhen("opening", "partially open", "open")},
	{"optimisation", activeWhen("active")},
	{"windowFunction", activeWhen("active")},
	{"rain", activeWhen("active")},
	{"rainHeavy", activeWhen("active")},
	{"heatAlarm", activeWhen("overheat")},
}

// Rules returns a copy of the rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Normalize returns the canonical numeric value for an attribute. Capability names and values
// are compared case-insensitively. Attributes without a matching rule fall back to a verbatim
// passthrough for NUMBER typed values and to 1 for a literal "on"; anything else reports
// ok=false.
func Normalize(capability, dataType, value string) (out string, ok bool) {
	return normalize(rules, capability, dataType, value)
}

func normalize(table []Rule, capability, dataType, value string) (string, bool) {
	if r, found := lookup(table, capability); found {
		return r.Map(value)
	}
	if dataType == DataTypeNumber {
		if value == "" {
			return "", false
		}
		return value, true
	}
	if strings.EqualFold(value, "on") {
		return "1", true
	}
	return "", false
}

func lookup(table []Rule, capability string) (Rule, bool) {
	for _, r := range table {
		if strings.EqualFold(r.Capability, capability) {
			return r, true
		}
	}
	return Rule{}, false
}

func matchesAny(value string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(value, c) {
			return true
		}
	}
	return false
}

// activeWhen maps any of the listed values to 1 and everything else to 0.
func activeWhen(values ...string) Mapper {
	return func(value string) (string, bool) {
		if matchesAny(value, values) {
			return "1", true
		}
		return "0", true
	}
}

// inactiveWhen maps any of the listed values to 0 and everything else to 1.
func inactiveWhen(values ...string) Mapper {
	return func(value string) (string, bool) {
		if matchesAny(value, values) {
			return "0", true
		}
		return "1", true
	}
}

// enum maps each listed value to its position. Unlisted values have no numeric form.
func enum(values ...string) Mapper {
	return func(value string) (string, bool) {
		for i, v := range values {
			if strings.EqualFold(value, v) {
				return strconv.Itoa(i), true
			}
		}
		return "", false
	}
}
