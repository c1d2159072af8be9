package family

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegisterMap = `{
	"schema_ver": "1",
	"byte_order": "BE",
	"word_order": "ABCD",
	"blocks": [{"name": "A", "fn": 3, "start": 0, "len": 2}],
	"points": {"ph": {"addr": 0, "type": "u16", "scale": 0.01}}
}`

func writeTestConfig(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestReloadBuildsCtrlFamilyWithEnableFilter(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, map[string]string{
		CtrlRegisterMapFile: testRegisterMap,
		CtrlFile:            `{"1": "10.0.0.1", "2": {"ip": "10.0.0.2", "unitId": 3}}`,
		EnableMapFile:       `{"1": true, "2": false}`,
	})

	l := NewLoader(dir, 0)
	require.NoError(t, l.Reload())

	fams := l.Families()
	require.Contains(t, fams, IDCtrl)
	assert.Len(t, fams[IDCtrl].Devices, 1)
	assert.Equal(t, "1", fams[IDCtrl].Devices[0].TankID)
	assert.Equal(t, "10.0.0.1", fams[IDCtrl].Devices[0].IP)
}

func TestReloadMissingEnableMapIncludesAllDevices(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, map[string]string{
		CtrlRegisterMapFile: testRegisterMap,
		CtrlFile:            `{"1": "10.0.0.1", "2": "10.0.0.2"}`,
	})

	l := NewLoader(dir, 0)
	require.NoError(t, l.Reload())

	fams := l.Families()
	assert.Len(t, fams[IDCtrl].Devices, 2)
}

func TestReloadExcludesZeroDeviceFamily(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, map[string]string{
		CtrlRegisterMapFile: testRegisterMap,
		CtrlFile:            `{"1": "10.0.0.1"}`,
		EnableMapFile:       `{"1": false}`,
	})

	l := NewLoader(dir, 0)
	require.NoError(t, l.Reload())

	fams := l.Families()
	assert.NotContains(t, fams, IDCtrl)
}

func TestReloadRetainsPreviousFamiliesOnError(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, map[string]string{
		CtrlRegisterMapFile: testRegisterMap,
		CtrlFile:            `{"1": "10.0.0.1"}`,
	})

	l := NewLoader(dir, 0)
	require.NoError(t, l.Reload())
	require.Len(t, l.Families()[IDCtrl].Devices, 1)

	// Corrupt the device config; reload must fail and retain the prior set.
	require.NoError(t, os.WriteFile(filepath.Join(dir, CtrlFile), []byte("not json"), 0o644))
	err := l.Reload()
	assert.Error(t, err)
	assert.Len(t, l.Families()[IDCtrl].Devices, 1)
}

func TestOnReloadFiresOnInitialAndSubsequentReload(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, map[string]string{
		UtilRegisterMapFile: testRegisterMap,
		UtilFile:            `{"u1": "10.0.0.9"}`,
	})

	l := NewLoader(dir, 0)
	calls := 0
	l.OnReload(func(fams map[string]*Family) {
		calls++
		assert.Contains(t, fams, IDUtil)
	})

	require.NoError(t, l.Reload())
	require.NoError(t, l.Reload())
	assert.Equal(t, 2, calls)
}

func TestUtilAndCtrlShareRegisterMapInstance(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, map[string]string{
		CtrlRegisterMapFile: testRegisterMap,
		CtrlFile:            `{"1": "10.0.0.1"}`,
		UtilFile:            `{"u1": "10.0.0.9"}`,
	})

	l := NewLoader(dir, 0)
	require.NoError(t, l.Reload())

	fams := l.Families()
	assert.Same(t, fams[IDCtrl].MapContext, fams[IDUtil].MapContext)
}
