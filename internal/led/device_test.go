package led

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapping(t *testing.T) {
	m, err := ParseMapping("1=1,2,3; 2=4,5,6;3=10")
	require.NoError(t, err)
	assert.Equal(t, Mapping{1: {1, 2, 3}, 2: {4, 5, 6}, 3: {10}}, m)
	assert.Equal(t, []int{1, 2, 3}, m.Buttons())

	for _, bad := range []string{"", "1", "x=1,2,3", "0=1,2,3", "1=1,2", "1=1,2,a", "1=300"} {
		_, err := ParseMapping(bad)
		assert.Error(t, err, bad)
	}
}

func TestSetRGB(t *testing.T) {
	dev := NewSimulatedDevice()

	require.NoError(t, SetRGB(dev, []int{1, 2, 3}, RGB{10, 20, 30}))
	assert.Equal(t, uint8(10), dev.Level(1))
	assert.Equal(t, uint8(20), dev.Level(2))
	assert.Equal(t, uint8(30), dev.Level(3))

	// 单通道按钮写灰度
	require.NoError(t, SetRGB(dev, []int{7}, RGB{255, 0, 0}))
	assert.Equal(t, uint8(76), dev.Level(7))

	require.NoError(t, AllOff(dev, Mapping{1: {1, 2, 3}, 2: {7}}))
	for _, ch := range []int{1, 2, 3, 7} {
		assert.Zero(t, dev.Level(ch))
	}
	assert.Equal(t, 8, dev.Writes())
}

func TestSimulatedDevice_Closed(t *testing.T) {
	dev := NewSimulatedDevice()
	require.NoError(t, dev.Close())
	assert.Error(t, dev.SetBrightness(1, 1))
}

func TestHIDDevice_WritesReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidraw0")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	dev, err := OpenHID(path)
	require.NoError(t, err)
	assert.Equal(t, path, dev.Path())

	require.NoError(t, SetRGB(dev, []int{4, 5, 6}, RGB{255, 128, 0}))
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	assert.Error(t, dev.SetBrightness(4, 1))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 4, 255, 0, 5, 128, 0, 6, 0}, data)
}

func TestOpenHID_Missing(t *testing.T) {
	_, err := OpenHID(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func writeUevent(t *testing.T, root, name, hidID string) {
	t.Helper()
	dir := filepath.Join(root, name, "device")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "DRIVER=hid-generic\nHID_ID=" + hidID + "\nHID_NAME=test\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(content), 0o644))
}

func TestFinder_Find(t *testing.T) {
	sys := t.TempDir()
	writeUevent(t, sys, "hidraw0", "0003:0000046D:0000C52B")
	writeUevent(t, sys, "hidraw1", "0003:0000D209:00001401")

	path, err := Finder{SysRoot: sys, DevRoot: "/dev"}.Find()
	require.NoError(t, err)
	assert.Equal(t, "/dev/hidraw1", path)
}

func TestFinder_NotFound(t *testing.T) {
	sys := t.TempDir()
	writeUevent(t, sys, "hidraw0", "0003:0000D209:0000FFFF")
	writeUevent(t, sys, "hidraw1", "garbage")

	_, err := Finder{SysRoot: sys, DevRoot: "/dev"}.Find()
	assert.Error(t, err)

	_, err = Finder{SysRoot: filepath.Join(sys, "missing")}.Find()
	assert.Error(t, err)
}

// failingDevice 每次写入都失败
type failingDevice struct{ closed bool }

func (d *failingDevice) SetBrightness(int, uint8) error { return errors.New("broken pipe") }
func (d *failingDevice) Close() error                   { d.closed = true; return nil }
