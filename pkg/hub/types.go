package hub

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// FlexString decodes a JSON string, number, boolean or null into its string form. Numbers keep
// their literal text. null becomes the empty string. Objects and arrays are rejected.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch n := v.(type) {
	case map[string]any, []any:
		return fmt.Errorf("decoding %s: wrong type", string(b))
	case json.Number:
		*f = FlexString(n.String())
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", string(b), err)
	}
	*f = FlexString(s)
	return nil
}

// String returns the decoded value.
func (f FlexString) String() string {
	return string(f)
}

// InventoryRecord is one row of the hub wide device inventory (`/device/list/all/data`).
type InventoryRecord struct {
	ID               FlexString `json:"id"`
	Name             FlexString `json:"name"`
	Label            FlexString `json:"label"`
	DisplayName      FlexString `json:"displayName"`
	Type             FlexString `json:"type"`
	Status           FlexString `json:"status"`
	HubName          FlexString `json:"hubName"`
	LocationName     FlexString `json:"locationName"`
	LocationID       FlexString `json:"locationId"`
	DeviceTypeName   FlexString `json:"deviceTypeName"`
	DeviceTypeID     FlexString `json:"deviceTypeId"`
	DeviceNetworkID  FlexString `json:"deviceNetworkId"`
	ZigbeeID         FlexString `json:"zigbeeId"`
	LanID            FlexString `json:"lanId"`
	HubID            FlexString `json:"hubId"`
	ParentDeviceID   FlexString `json:"parentDeviceId"`
	LinkedDevice     FlexString `json:"linkedDevice"`
	LastActivityTime FlexString `json:"lastActivityTime"`
	IsComponent      FlexString `json:"isComponent"`
	DisplayAsChild   FlexString `json:"displayAsChild"`
	MeshEnabled      FlexString `json:"meshEnabled"`
	Disabled         FlexString `json:"disabled"`
}

// DeviceRef is one entry of the Maker API device list.
type DeviceRef struct {
	ID    FlexString `json:"id"`
	Name  FlexString `json:"name"`
	Label FlexString `json:"label"`
}

// DeviceDetail is the full Maker API view of a single device.
type DeviceDetail struct {
	ID           FlexString        `json:"id"`
	Name         FlexString        `json:"name"`
	Label        FlexString        `json:"label"`
	Type         FlexString        `json:"type"`
	Attributes   []Attribute       `json:"attributes"`
	Capabilities []json.RawMessage `json:"capabilities"`
	Commands     []json.RawMessage `json:"commands"`
}

// Attribute is a single named and typed device state.
type Attribute struct {
	Name         string     `json:"name"`
	CurrentValue FlexString `json:"currentValue"`
	DataType     string     `json:"dataType"`
	Values       []string   `json:"values,omitempty"`
}
