package family

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const deviceConfigSchema = `{
	"type": "object",
	"additionalProperties": {
		"anyOf": [
			{"type": "string", "minLength": 1},
			{
				"type": "object",
				"required": ["ip"],
				"properties": {
					"ip": {"type": "string", "minLength": 1},
					"unitId": {"type": "integer", "minimum": 0, "maximum": 255},
					"port": {"type": "integer", "minimum": 1, "maximum": 65535}
				}
			}
		]
	}
}`

const enableMapSchema = `{
	"type": "object",
	"additionalProperties": {"type": "boolean"}
}`

var (
	compiledDeviceConfigSchema = jsonschema.MustCompileString("deviceConfig.json", deviceConfigSchema)
	compiledEnableMapSchema    = jsonschema.MustCompileString("enableMap.json", enableMapSchema)
)

const defaultPort = 502
const defaultUnitID = 1

// deviceVariant mirrors the "{ip, unitId}" object form of a device config
// entry; the bare-string form is handled separately in parseDeviceConfig.
type deviceVariant struct {
	IP     string `json:"ip"`
	UnitID *int   `json:"unitId"`
	Port   *int   `json:"port"`
}

// parseDeviceConfig validates and decodes a device config document
// ({tankId: "ip" | {ip, unitId}}) into normalized Devices keyed by tank id.
// The map carries no order; the loader sorts by tank id afterwards.
func parseDeviceConfig(raw []byte) (map[string]Device, error) {
	var asAny interface{}
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return nil, fmt.Errorf("family: invalid device config json: %w", err)
	}
	if err := compiledDeviceConfigSchema.Validate(asAny); err != nil {
		return nil, fmt.Errorf("family: device config schema validation failed: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("family: device config decode: %w", err)
	}

	devices := make(map[string]Device, len(entries))
	for tankID, entry := range entries {
		dev, err := normalizeDeviceEntry(tankID, entry)
		if err != nil {
			return nil, err
		}
		devices[tankID] = dev
	}
	return devices, nil
}

func normalizeDeviceEntry(tankID string, entry json.RawMessage) (Device, error) {
	var asString string
	if err := json.Unmarshal(entry, &asString); err == nil {
		return Device{TankID: tankID, IP: asString, UnitID: defaultUnitID, Port: defaultPort}, nil
	}

	var v deviceVariant
	if err := json.Unmarshal(entry, &v); err != nil {
		return Device{}, fmt.Errorf("family: device %q: unsupported entry shape: %w", tankID, err)
	}

	unitID := defaultUnitID
	if v.UnitID != nil {
		unitID = *v.UnitID
	}
	port := defaultPort
	if v.Port != nil {
		port = *v.Port
	}
	return Device{TankID: tankID, IP: v.IP, UnitID: byte(unitID), Port: port}, nil
}

// parseEnableMap validates and decodes an enable-map document
// ({tankId: boolean}).
func parseEnableMap(raw []byte) (map[string]bool, error) {
	var asAny interface{}
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return nil, fmt.Errorf("family: invalid enable map json: %w", err)
	}
	if err := compiledEnableMapSchema.Validate(asAny); err != nil {
		return nil, fmt.Errorf("family: enable map schema validation failed: %w", err)
	}

	var out map[string]bool
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("family: enable map decode: %w", err)
	}
	return out, nil
}
