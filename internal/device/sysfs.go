package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Instance is one discovered uncore PMU device instance, spec.md section
// 4.5 "Device discovery."
type Instance struct {
	PMUName  string // sysfs leaf under /sys/bus/event_source/devices, e.g. hisi_sccl1_ddrc0
	NumaID   int
	SocketID int
	BDF      string // PCI bus:device.function, set only for PCIe/SMMU instances
}

// DiscoverByPrefix lists every PMU under /sys/bus/event_source/devices
// whose name starts with prefix (e.g. "hisi_sccl" for DDR uncore,
// "hisi_l3c" for L3 uncore, "hisi_pcie" for PCIe RC uncore), per spec.md
// section 4.5's
// "/sys/devices/<prefix>*" discovery.
func DiscoverByPrefix(prefix string) ([]Instance, error) {
	root := "/sys/bus/event_source/devices"
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("device: listing %s: %w", root, err)
	}

	var out []Instance
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, Instance{
			PMUName:  name,
			NumaID:   readIntFile(filepath.Join(root, name, "numa_node")),
			SocketID: -1,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PMUName < out[j].PMUName })
	return out, nil
}

// DiscoverSMMU resolves bdf (a "bus:device.function" string) to the SMMU
// PMU instance instrumenting it, spec.md section 4.9: walk
// /sys/class/iommu/*/devices/ to find the IOMMU group owning bdf, read that
// group's SMMU MMIO base address, then compute
// smmu_pmu_key = (smmu_base_phys + 0x20000) >> 12 to select the right PMCG.
func DiscoverSMMU(bdf string) (Instance, error) {
	const root = "/sys/class/iommu"
	groups, err := os.ReadDir(root)
	if err != nil {
		return Instance{}, fmt.Errorf("device: listing %s: %w", root, err)
	}

	for _, g := range groups {
		devDir := filepath.Join(root, g.Name(), "devices")
		devs, err := os.ReadDir(devDir)
		if err != nil {
			continue
		}
		for _, d := range devs {
			if d.Name() != bdf {
				continue
			}
			base, err := smmuBasePhys(g.Name())
			if err != nil {
				return Instance{}, fmt.Errorf("device: resolving smmu base address for iommu group %s (bdf %s): %w", g.Name(), bdf, err)
			}
			key := (base + 0x20000) >> 12
			return Instance{
				PMUName:  fmt.Sprintf("smmu_pmu_%x", key),
				NumaID:   -1,
				SocketID: -1,
				BDF:      bdf,
			}, nil
		}
	}
	return Instance{}, fmt.Errorf("device: no iommu group owns bdf %q", bdf)
}

// smmuBasePhys reads the MMIO base address of the platform device backing
// an IOMMU group, from the same hex "<start> <end> <flags>" resource-line
// format PCI devices publish under /sys/bus/pci/devices/*/resource.
func smmuBasePhys(iommuGroup string) (uint64, error) {
	path := filepath.Join("/sys/class/iommu", iommuGroup, "device", "resource")
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	line := strings.SplitN(string(b), "\n", 2)[0]
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty resource file %s", path)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing base address %q from %s: %w", fields[0], path, err)
	}
	return v, nil
}

// ResolvePCIeByBDF picks the instance among candidates whose bdf_min/bdf_max
// sysfs range files bracket bdf, spec.md section 4.9 "for PCIe resolve via
// per-device bdf_min/bdf_max range files."
func ResolvePCIeByBDF(candidates []Instance, bdf string) (Instance, error) {
	target, err := parseBDFHex(bdf)
	if err != nil {
		return Instance{}, err
	}
	for _, inst := range candidates {
		dir := filepath.Join("/sys/bus/event_source/devices", inst.PMUName)
		lo, errLo := readHexFile(filepath.Join(dir, "bdf_min"))
		hi, errHi := readHexFile(filepath.Join(dir, "bdf_max"))
		if errLo != nil || errHi != nil {
			continue
		}
		if target >= lo && target <= hi {
			inst.BDF = bdf
			return inst, nil
		}
	}
	return Instance{}, fmt.Errorf("device: no pcie instance covers bdf %q", bdf)
}

// parseBDFHex packs a "bus:device.function" string into the single integer
// bdf_min/bdf_max range files compare against: bus<<8 | device<<3 | function.
func parseBDFHex(bdf string) (uint64, error) {
	var bus, dev, fn uint64
	_, err := fmt.Sscanf(bdf, "%02x:%02x.%d", &bus, &dev, &fn)
	if err != nil {
		return 0, fmt.Errorf("device: malformed bdf %q: %w", bdf, err)
	}
	return bus<<8 | dev<<3 | fn, nil
}

func readHexFile(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(string(b)), "0x"), 16, 64)
}

func readIntFile(path string) int {
	b, err := os.ReadFile(path)
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return -1
	}
	return n
}
