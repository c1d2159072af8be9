// Package family discovers device families from the config directory,
// normalizes their device lists, binds each family to its register map,
// and reloads that set periodically so the poller always has a current
// (family, device) work list without itself touching the filesystem.
package family

import (
	"github.com/modbus-edge/gateway/internal/registermap"
)

// Recognized config file names and the family id they produce.
const (
	CtrlFile = "tankConfig.json"
	UtilFile = "utilityConfig.json"
	BmmFile  = "bmmConfig.json"

	EnableMapFile = "enableConfig.json"

	CtrlRegisterMapFile = "registerMap.json"
	UtilRegisterMapFile = "registerMap.json"
	BmmRegisterMapFile  = "registerMap.bmm.json"
)

const (
	IDCtrl = "ctrl"
	IDUtil = "util"
	IDBmm  = "bmm"
)

// Device is the normalized device record: the duck-typed "ip string" or
// "{ip, unitId}" JSON shape is resolved to this at the config boundary so
// nothing downstream has to re-discriminate it.
type Device struct {
	TankID string
	IP     string
	UnitID byte
	Port   int
}

// Family is a named group of devices sharing a register map and
// device-id prefix.
type Family struct {
	ID           string
	DevicePrefix string
	MapContext   *registermap.RegisterMap
	Devices      []Device
}

// Blocks is a convenience accessor mirroring MapContext.GetBlocks(), kept
// on Family so callers that only hold a Family clone don't need a second
// pointer dereference.
func (f *Family) Blocks() []registermap.Block {
	if f.MapContext == nil {
		return nil
	}
	return f.MapContext.GetBlocks()
}

// Clone returns a shallow copy of f: a new Devices slice (so the caller
// can't mutate the loader's slice in place) sharing the same
// *RegisterMap, which is itself immutable after load.
func (f *Family) Clone() *Family {
	devices := make([]Device, len(f.Devices))
	copy(devices, f.Devices)
	return &Family{
		ID:           f.ID,
		DevicePrefix: f.DevicePrefix,
		MapContext:   f.MapContext,
		Devices:      devices,
	}
}

func devicePrefixFor(familyID string) string {
	switch familyID {
	case IDCtrl:
		return "ctrl"
	case IDUtil:
		return "util"
	case IDBmm:
		return "bmm"
	default:
		return familyID
	}
}
