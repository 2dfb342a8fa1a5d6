package promserver

import (
	"github.com/syepes/hubitat-exporter/pkg/hub"
	"github.com/syepes/hubitat-exporter/pkg/normalizer"
)

// DeviceView is a device detail joined with its inventory record and the value each attribute
// exports.
type DeviceView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Label      string          `json:"label"`
	DriverType string          `json:"driver_type"`
	Inventory  *InventoryView  `json:"inventory,omitempty"`
	Attributes []AttributeView `json:"attributes"`
}

// InventoryView holds the inventory fields used as labels.
type InventoryView struct {
	HubName         string `json:"hub_name"`
	LocationName    string `json:"location_name"`
	DeviceNetworkID string `json:"device_network_id"`
	Driver          string `json:"driver"`
}

// AttributeView describes one attribute: its metric name, raw value and, when Exported, the
// normalized value written to the exposition.
type AttributeView struct {
	Name     string `json:"name"`
	Metric   string `json:"metric"`
	DataType string `json:"data_type"`
	Value    string `json:"value"`
	Exported bool   `json:"exported"`
	Exposed  string `json:"exposed,omitempty"`
}

// DeviceViews describes every fetched device, skipping the empty-id placeholder. Unlike
// BuildMetrics it keeps devices missing from the inventory and attributes without a numeric
// value.
func DeviceViews(details []hub.DeviceDetail, inventory InventoryIndex) []DeviceView {
	views := make([]DeviceView, 0, len(details))
	for _, d := range details {
		if d.ID == "" {
			continue
		}
		v := DeviceView{
			ID:         d.ID.String(),
			Name:       d.Name.String(),
			Label:      d.Label.String(),
			DriverType: d.Type.String(),
			Attributes: make([]AttributeView, 0, len(d.Attributes)),
		}
		if rec, ok := inventory.Lookup(v.ID); ok {
			v.Inventory = &InventoryView{
				HubName:         rec.HubName.String(),
				LocationName:    rec.LocationName.String(),
				DeviceNetworkID: rec.DeviceNetworkID.String(),
				Driver:          rec.DeviceTypeName.String(),
			}
		}
		for _, a := range d.Attributes {
			exposed, ok := normalizer.Normalize(a.Name, a.DataType, a.CurrentValue.String())
			v.Attributes = append(v.Attributes, AttributeView{
				Name:     a.Name,
				Metric:   metricName(a.Name),
				DataType: a.DataType,
				Value:    a.CurrentValue.String(),
				Exported: ok,
				Exposed:  exposed,
			})
		}
		views = append(views, v)
	}
	return views
}
