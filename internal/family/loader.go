package family

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/modbus-edge/gateway/internal/registermap"
	"github.com/modbus-edge/gateway/pkg/log"
)

var clog = log.Component("family")

// DefaultReloadPeriod is how often Loader.Start re-scans the config
// directory when no explicit period is configured (§4.3: "Periodically,
// default every 5 minutes, the Family Loader is invoked to reload").
const DefaultReloadPeriod = 5 * time.Minute

type fileSpec struct {
	configFile      string
	familyID        string
	registerMapFile string
}

var recognizedFiles = []fileSpec{
	{configFile: CtrlFile, familyID: IDCtrl, registerMapFile: CtrlRegisterMapFile},
	{configFile: UtilFile, familyID: IDUtil, registerMapFile: UtilRegisterMapFile},
	{configFile: BmmFile, familyID: IDBmm, registerMapFile: BmmRegisterMapFile},
}

// Loader scans ConfigDir for the recognized *Config.json files and
// maintains the current set of Families, reloading periodically.
type Loader struct {
	ConfigDir    string
	ReloadPeriod time.Duration

	mu        sync.RWMutex
	families  map[string]*Family
	scheduler gocron.Scheduler
	onReload  func(map[string]*Family)
}

// OnReload registers fn to be called, with the freshly loaded family set,
// every time Reload succeeds (including the initial load from Start). Used
// to pre-seed the live cache for utility devices before their first poll.
func (l *Loader) OnReload(fn func(map[string]*Family)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// NewLoader constructs a Loader rooted at configDir.
func NewLoader(configDir string, reloadPeriod time.Duration) *Loader {
	if reloadPeriod <= 0 {
		reloadPeriod = DefaultReloadPeriod
	}
	return &Loader{
		ConfigDir:    configDir,
		ReloadPeriod: reloadPeriod,
		families:     make(map[string]*Family),
	}
}

// Families returns shallow-cloned copies of the currently loaded families,
// safe for a poller to range over during a tick without risking mutation
// from a concurrent reload.
func (l *Loader) Families() map[string]*Family {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]*Family, len(l.families))
	for id, f := range l.families {
		out[id] = f.Clone()
	}
	return out
}

// Reload scans the config directory once, replacing the loaded family set
// on success. On any error the previous family set is retained untouched
// and the error is returned for the caller to log.
func (l *Loader) Reload() error {
	next := make(map[string]*Family)
	registerMaps := make(map[string]*registermap.RegisterMap)

	for _, spec := range recognizedFiles {
		path := filepath.Join(l.ConfigDir, spec.configFile)
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}

		devices, err := parseDeviceConfig(raw)
		if err != nil {
			return err
		}

		if spec.familyID == IDCtrl {
			devices, err = applyEnableFilter(l.ConfigDir, devices)
			if err != nil {
				return err
			}
		}

		rm, ok := registerMaps[spec.registerMapFile]
		if !ok {
			rm, err = registermap.Load(filepath.Join(l.ConfigDir, spec.registerMapFile))
			if err != nil {
				return err
			}
			registerMaps[spec.registerMapFile] = rm
		}

		fam := &Family{
			ID:           spec.familyID,
			DevicePrefix: devicePrefixFor(spec.familyID),
			MapContext:   rm,
			Devices:      sortedDevices(devices),
		}

		if len(fam.Devices) == 0 {
			clog.Warnf("family %q: zero enabled devices, excluding from polling", spec.familyID)
			continue
		}

		next[spec.familyID] = fam
	}

	l.mu.Lock()
	l.families = next
	onReload := l.onReload
	l.mu.Unlock()

	if onReload != nil {
		onReload(next)
	}
	return nil
}

func applyEnableFilter(configDir string, devices map[string]Device) (map[string]Device, error) {
	path := filepath.Join(configDir, EnableMapFile)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return devices, nil
	}
	if err != nil {
		return nil, err
	}

	enabled, err := parseEnableMap(raw)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Device, len(devices))
	for tankID, dev := range devices {
		if enabled[tankID] { // missing key defaults to disabled
			out[tankID] = dev
		}
	}
	return out, nil
}

func sortedDevices(devices map[string]Device) []Device {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Device, 0, len(devices))
	for _, id := range ids {
		out = append(out, devices[id])
	}
	return out
}

// Start performs an initial synchronous Reload (returning its error, since
// a bad initial config is a startup failure) then schedules periodic
// reloads on ReloadPeriod. Reload errors after the first are logged and
// swallowed per §4.3: a broken reload retains the previous family set.
func (l *Loader) Start(ctx context.Context) error {
	if err := l.Reload(); err != nil {
		return err
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	l.scheduler = s

	_, err = s.NewJob(
		gocron.DurationJob(l.ReloadPeriod),
		gocron.NewTask(func() {
			if err := l.Reload(); err != nil {
				clog.Errorf("reload failed, retaining previous family set: %v", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	s.Start()
	return nil
}

// Shutdown stops the periodic reload job.
func (l *Loader) Shutdown() error {
	if l.scheduler == nil {
		return nil
	}
	return l.scheduler.Shutdown()
}
