package promserver

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/stoewer/go-strcase"
	"github.com/syepes/hubitat-exporter/pkg/hub"
	"github.com/syepes/hubitat-exporter/pkg/normalizer"
)

var labelValueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

type label struct {
	name  string
	value string
}

// buildStats summarizes one BuildMetrics call.
type buildStats struct {
	devices           int
	lines             int
	correlationMisses int
}

// BuildMetrics renders device attributes in the text exposition format, one line per attribute
// with a numeric value. Devices and attributes keep their fetch order.
//
// With a non-nil inventory, devices are labelled with their inventory record and devices
// missing from the inventory are skipped. The empty-id placeholder device is always skipped
// without a warning and never matches an inventory record. With a nil inventory every other
// device is rendered with the reduced simple label set.
func BuildMetrics(ctx context.Context, details []hub.DeviceDetail, inventory InventoryIndex) string {
	out, _ := buildMetrics(ctx, details, inventory)
	return out
}

func buildMetrics(ctx context.Context, details []hub.DeviceDetail, inventory InventoryIndex) (string, buildStats) {
	l := log.Ctx(ctx)
	var (
		b     strings.Builder
		stats buildStats
	)
	for _, d := range details {
		if d.ID == "" {
			continue
		}
		var labels []label
		if inventory != nil {
			rec, ok := inventory.Lookup(d.ID.String())
			if !ok {
				stats.correlationMisses++
				l.Warn().Str("device_id", d.ID.String()).Msg("device id not found in inventory")
				continue
			}
			labels = detailedLabels(d, rec)
		} else {
			labels = simpleLabels(d)
		}
		stats.devices++
		for _, a := range d.Attributes {
			v, ok := normalizer.Normalize(a.Name, a.DataType, a.CurrentValue.String())
			if !ok {
				continue
			}
			writeLine(&b, metricName(a.Name), labels, v)
			stats.lines++
		}
	}
	return b.String(), stats
}

// metricName converts a camelCase attribute name to snake case. Letters and digits are split
// into separate words, so co2Level becomes co_2_level.
func metricName(attribute string) string {
	s := strcase.SnakeCase(attribute)
	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	for i, r := range s {
		if i > 0 && prev != '_' && r != '_' && unicode.IsDigit(prev) != unicode.IsDigit(r) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func detailedLabels(d hub.DeviceDetail, rec hub.InventoryRecord) []label {
	return []label{
		{"hub_name", rec.HubName.String()},
		{"hub_location_name", rec.LocationName.String()},
		{"device_network_id", rec.DeviceNetworkID.String()},
		{"device_driver_type", d.Type.String()},
		{"device_driver", rec.DeviceTypeName.String()},
		{"device_name", d.Name.String()},
		{"device_label", d.Label.String()},
	}
}

func simpleLabels(d hub.DeviceDetail) []label {
	return []label{
		{"device_name", d.Name.String()},
		{"device_label", d.Label.String()},
		{"device_driver_type", d.Type.String()},
	}
}

func writeLine(b *strings.Builder, metric string, labels []label, value string) {
	b.WriteString(metric)
	b.WriteByte('{')
	for i, lp := range labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(lp.name)
		b.WriteString(`="`)
		labelValueEscaper.WriteString(b, lp.value)
		b.WriteByte('"')
	}
	b.WriteString("} ")
	b.WriteString(value)
	b.WriteByte('\n')
}
