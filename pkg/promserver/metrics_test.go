package promserver

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syepes/hubitat-exporter/pkg/hub"
)

func decodeDetail(t *testing.T, raw string) hub.DeviceDetail {
	t.Helper()
	var d hub.DeviceDetail
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	return d
}

func decodeRecords(t *testing.T, raw string) []hub.InventoryRecord {
	t.Helper()
	var r []hub.InventoryRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func TestBuildMetrics(t *testing.T) {
	frontDoor := `{"id": "1", "name": "Door1", "label": "FrontDoor", "type": "contact", "attributes": [
		{"name": "contact", "currentValue": "open", "dataType": "ENUM"}
	]}`
	inventory := `[{"id": "1", "hubName": "H", "locationName": "L", "deviceNetworkId": "N", "deviceTypeName": "T"}]`

	tcs := []struct {
		name      string
		details   []string
		inventory string
		expect    string
	}{
		{
			name:      "detailed contact sensor",
			details:   []string{frontDoor},
			inventory: inventory,
			expect:    `contact{hub_name="H",hub_location_name="L",device_network_id="N",device_driver_type="contact",device_driver="T",device_name="Door1",device_label="FrontDoor"} 1` + "\n",
		},
		{
			name:    "simple contact sensor",
			details: []string{frontDoor},
			expect:  `contact{device_name="Door1",device_label="FrontDoor",device_driver_type="contact"} 1` + "\n",
		},
		{
			name: "attribute order and names",
			details: []string{`{"id": "5", "name": "Multi", "label": "Hall", "type": "Multi Sensor", "attributes": [
				{"name": "temperature", "currentValue": 21.5, "dataType": "NUMBER"},
				{"name": "lastCheckin", "currentValue": "2024-01-01", "dataType": "STRING"},
				{"name": "colorTemperature", "currentValue": "2700", "dataType": "NUMBER"},
				{"name": "switch", "currentValue": "on", "dataType": "ENUM"},
				{"name": "motion", "currentValue": "inactive", "dataType": "ENUM"},
				{"name": "battery", "currentValue": null, "dataType": "NUMBER"}
			]}`},
			expect: `temperature{device_name="Multi",device_label="Hall",device_driver_type="Multi Sensor"} 21.5` + "\n" +
				`color_temperature{device_name="Multi",device_label="Hall",device_driver_type="Multi Sensor"} 2700` + "\n" +
				`switch{device_name="Multi",device_label="Hall",device_driver_type="Multi Sensor"} 1` + "\n" +
				`motion{device_name="Multi",device_label="Hall",device_driver_type="Multi Sensor"} 0` + "\n",
		},
		{
			name:    "placeholder device renders nothing",
			details: []string{`{}`},
			expect:  "",
		},
		{
			name:      "placeholder device skipped in detailed mode",
			details:   []string{`{}`, frontDoor},
			inventory: inventory,
			expect:    `contact{hub_name="H",hub_location_name="L",device_network_id="N",device_driver_type="contact",device_driver="T",device_name="Door1",device_label="FrontDoor"} 1` + "\n",
		},
		{
			name: "label values are escaped",
			details: []string{`{"id": "2", "name": "Lamp \"A\"", "label": "back\\slash\nnew", "type": "t", "attributes": [
				{"name": "switch", "currentValue": "off", "dataType": "ENUM"}
			]}`},
			expect: `switch{device_name="Lamp \"A\"",device_label="back\\slash\nnew",device_driver_type="t"} 0` + "\n",
		},
		{
			name: "numbers are written as reported",
			details: []string{`{"id": "6", "name": "Meter", "label": "Meter", "type": "t", "attributes": [
				{"name": "energy", "currentValue": 12345678901234567890, "dataType": "NUMBER"},
				{"name": "voltage", "currentValue": 230.0, "dataType": "NUMBER"}
			]}`},
			expect: `energy{device_name="Meter",device_label="Meter",device_driver_type="t"} 12345678901234567890` + "\n" +
				`voltage{device_name="Meter",device_label="Meter",device_driver_type="t"} 230.0` + "\n",
		},
		{
			name: "digits in attribute names",
			details: []string{`{"id": "7", "name": "Air", "label": "Air", "type": "t", "attributes": [
				{"name": "co2Level", "currentValue": 410, "dataType": "NUMBER"},
				{"name": "pm25", "currentValue": 3, "dataType": "NUMBER"}
			]}`},
			expect: `co_2_level{device_name="Air",device_label="Air",device_driver_type="t"} 410` + "\n" +
				`pm_25{device_name="Air",device_label="Air",device_driver_type="t"} 3` + "\n",
		},
		{
			name:    "no devices",
			details: nil,
			expect:  "",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			var details []hub.DeviceDetail
			for _, raw := range tc.details {
				details = append(details, decodeDetail(t, raw))
			}
			var idx InventoryIndex
			if tc.inventory != "" {
				idx = NewInventoryIndex(decodeRecords(t, tc.inventory))
			}
			assert.Equal(t, tc.expect, BuildMetrics(ctx, details, idx))
		})
	}
}

func TestBuildMetricsPlaceholderNeverCorrelates(t *testing.T) {
	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())
	placeholder := hub.DeviceDetail{Attributes: []hub.Attribute{{Name: "switch", CurrentValue: "on", DataType: "ENUM"}}}
	idx := NewInventoryIndex(decodeRecords(t, `[{"id": "", "hubName": "sentinel"}]`))

	out, stats := buildMetrics(ctx, []hub.DeviceDetail{placeholder}, idx)
	assert.Empty(t, out)
	assert.Equal(t, buildStats{}, stats)

	out, stats = buildMetrics(ctx, []hub.DeviceDetail{placeholder}, nil)
	assert.Empty(t, out)
	assert.Equal(t, buildStats{}, stats)
	assert.Empty(t, logs.String())
}

func TestMetricName(t *testing.T) {
	tcs := []struct {
		in     string
		expect string
	}{
		{"switch", "switch"},
		{"carbonMonoxide", "carbon_monoxide"},
		{"lastCheckin", "last_checkin"},
		{"thermostatOperatingState", "thermostat_operating_state"},
		{"co2Level", "co_2_level"},
		{"pm25", "pm_25"},
		{"button1", "button_1"},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.expect, metricName(tc.in), tc.in)
	}
}

func TestBuildMetricsCorrelationMiss(t *testing.T) {
	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	details := []hub.DeviceDetail{
		{},
		decodeDetail(t, `{"id": "999", "name": "Ghost", "label": "Ghost", "type": "t", "attributes": [
			{"name": "switch", "currentValue": "on", "dataType": "ENUM"}
		]}`),
		decodeDetail(t, `{"id": "1", "name": "Lamp", "label": "Lamp", "type": "t", "attributes": [
			{"name": "switch", "currentValue": "on", "dataType": "ENUM"}
		]}`),
	}
	idx := NewInventoryIndex(decodeRecords(t, `[{"id": "1", "hubName": "H"}]`))

	out, stats := buildMetrics(ctx, details, idx)
	assert.Equal(t, `switch{hub_name="H",hub_location_name="",device_network_id="",device_driver_type="t",device_driver="",device_name="Lamp",device_label="Lamp"} 1`+"\n", out)
	assert.Equal(t, buildStats{devices: 1, lines: 1, correlationMisses: 1}, stats)

	var entry map[string]any
	lines := bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "999", entry["device_id"])
	assert.Equal(t, "device id not found in inventory", entry["message"])
}

func TestBuildMetricsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	details := []hub.DeviceDetail{
		decodeDetail(t, `{"id": "3", "name": "Thermostat", "label": "Hall", "type": "t", "attributes": [
			{"name": "thermostatMode", "currentValue": "heat", "dataType": "ENUM"},
			{"name": "thermostatOperatingState", "currentValue": "idle", "dataType": "ENUM"},
			{"name": "temperature", "currentValue": 19, "dataType": "NUMBER"}
		]}`),
	}
	idx := NewInventoryIndex(decodeRecords(t, `[{"id": 3, "hubName": "H"}]`))
	first := BuildMetrics(ctx, details, idx)
	require.NotEmpty(t, first)
	assert.Equal(t, first, BuildMetrics(ctx, details, idx))
}

func TestInventoryIndex(t *testing.T) {
	idx := NewInventoryIndex(decodeRecords(t, `[
		{"id": "1", "hubName": "first"},
		{"id": 2, "hubName": "numeric"},
		{"id": "1", "hubName": "second"}
	]`))
	require.Len(t, idx, 2)

	r, ok := idx.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "second", r.HubName.String())

	r, ok = idx.Lookup("2")
	require.True(t, ok)
	assert.Equal(t, "numeric", r.HubName.String())

	_, ok = idx.Lookup("3")
	assert.False(t, ok)

	var nilIdx InventoryIndex
	_, ok = nilIdx.Lookup("1")
	assert.False(t, ok)
}
