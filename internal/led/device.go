package led

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// =============================================================================
// 🔌 设备
// =============================================================================

// VendorID Ultimarc 控制器厂商号
const VendorID = 0xD209

// ProductIDs 已知的 Ultimarc LED 控制器型号
var ProductIDs = []uint16{0x1200, 0x1401, 0x0301, 0x0002}

// Device 按通道写入亮度
type Device interface {
	SetBrightness(channel int, value uint8) error
	Close() error
}

// Mapping 按钮序号（1 起）到 LED 通道
type Mapping map[int][]int

// DefaultMapping 三个按钮，每个占用连续的 RGB 三通道
func DefaultMapping() Mapping {
	return Mapping{1: {1, 2, 3}, 2: {4, 5, 6}, 3: {7, 8, 9}}
}

// Buttons 返回排序后的按钮序号
func (m Mapping) Buttons() []int {
	buttons := make([]int, 0, len(m))
	for b := range m {
		buttons = append(buttons, b)
	}
	sort.Ints(buttons)
	return buttons
}

// ParseMapping 解析 "1=1,2,3;2=4,5,6" 形式的映射
func ParseMapping(s string) (Mapping, error) {
	m := Mapping{}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		button, channels, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mapping entry %q", entry)
		}
		b, err := strconv.Atoi(strings.TrimSpace(button))
		if err != nil || b < 1 {
			return nil, fmt.Errorf("invalid button in %q", entry)
		}
		var chans []int
		for _, c := range strings.Split(channels, ",") {
			ch, err := strconv.Atoi(strings.TrimSpace(c))
			if err != nil || ch < 0 || ch > 255 {
				return nil, fmt.Errorf("invalid channel in %q", entry)
			}
			chans = append(chans, ch)
		}
		if len(chans) != 1 && len(chans) != 3 {
			return nil, fmt.Errorf("button %d needs 1 or 3 channels, got %d", b, len(chans))
		}
		m[b] = chans
	}
	if len(m) == 0 {
		return nil, errors.New("empty mapping")
	}
	return m, nil
}

// SetRGB 写入一个按钮的颜色。三通道按 r,g,b 写入，单通道写灰度。
func SetRGB(dev Device, channels []int, c RGB) error {
	switch {
	case len(channels) >= 3:
		for i, v := range []uint8{c.R, c.G, c.B} {
			if err := dev.SetBrightness(channels[i], v); err != nil {
				return err
			}
		}
	case len(channels) == 1:
		return dev.SetBrightness(channels[0], c.Gray())
	}
	return nil
}

// AllOff 熄灭映射中的全部通道
func AllOff(dev Device, m Mapping) error {
	var errs []error
	for _, b := range m.Buttons() {
		for _, ch := range m[b] {
			if err := dev.SetBrightness(ch, 0); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// hidraw
// -----------------------------------------------------------------------------

// HIDDevice 通过 Linux hidraw 节点写输出报告 [0, channel, brightness]
type HIDDevice struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenHID 打开 hidraw 节点
func OpenHID(path string) (*HIDDevice, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &HIDDevice{path: path, f: f}, nil
}

// Path 设备节点路径
func (d *HIDDevice) Path() string { return d.path }

// SetBrightness 写单通道亮度
func (d *HIDDevice) SetBrightness(channel int, value uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return fmt.Errorf("%s: device closed", d.path)
	}
	if _, err := d.f.Write([]byte{0, byte(channel), value}); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	return nil
}

// Close 关闭设备，可重复调用
func (d *HIDDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Finder 在 sysfs 中查找 Ultimarc hidraw 节点
type Finder struct {
	SysRoot string
	DevRoot string
}

// DefaultFinder 使用系统默认路径
func DefaultFinder() Finder {
	return Finder{SysRoot: "/sys/class/hidraw", DevRoot: "/dev"}
}

// Find 返回第一个匹配厂商号与型号的 hidraw 节点
func (f Finder) Find() (string, error) {
	entries, err := os.ReadDir(f.SysRoot)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", f.SysRoot, err)
	}
	for _, e := range entries {
		vendor, product, err := readHIDID(filepath.Join(f.SysRoot, e.Name(), "device", "uevent"))
		if err != nil || vendor != VendorID {
			continue
		}
		for _, pid := range ProductIDs {
			if product == pid {
				return filepath.Join(f.DevRoot, e.Name()), nil
			}
		}
	}
	return "", fmt.Errorf("no Ultimarc device (vendor %04x) found", VendorID)
}

// readHIDID 解析 uevent 中的 HID_ID=bus:vendor:product
func readHIDID(path string) (vendor, product uint16, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "HID_ID=")
		if !ok {
			continue
		}
		parts := strings.Split(value, ":")
		if len(parts) != 3 {
			return 0, 0, fmt.Errorf("malformed HID_ID %q", value)
		}
		v, err := strconv.ParseUint(parts[1], 16, 32)
		if err != nil {
			return 0, 0, err
		}
		p, err := strconv.ParseUint(parts[2], 16, 32)
		if err != nil {
			return 0, 0, err
		}
		return uint16(v), uint16(p), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	return 0, 0, errors.New("HID_ID not found")
}

// -----------------------------------------------------------------------------
// 模拟设备
// -----------------------------------------------------------------------------

// SimulatedDevice 没有硬件时使用，记录每个通道的最新亮度
type SimulatedDevice struct {
	mu     sync.Mutex
	levels map[int]uint8
	writes int
	closed bool
}

// NewSimulatedDevice 创建模拟设备
func NewSimulatedDevice() *SimulatedDevice {
	return &SimulatedDevice{levels: make(map[int]uint8)}
}

func (d *SimulatedDevice) SetBrightness(channel int, value uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("simulated device closed")
	}
	d.levels[channel] = value
	d.writes++
	return nil
}

func (d *SimulatedDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Level 返回通道最新亮度
func (d *SimulatedDevice) Level(channel int) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levels[channel]
}

// Writes 返回累计写入次数
func (d *SimulatedDevice) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}
