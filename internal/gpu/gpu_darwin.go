//go:build darwin && !nogpu

package gpu

/*
#cgo LDFLAGS: -framework Metal -framework Foundation -framework IOKit
#include <stdlib.h>

// Metal device info
typedef struct {
    const char* name;
    unsigned long long allocated_size;
    unsigned long long recommended_max;
    int has_unified_memory;
} GPUInfo;

// IOKit thermal state
typedef struct {
    int thermal_state; // 0=nominal, 1=fair, 2=serious, 3=critical
} ThermalInfo;

extern GPUInfo getMetalGPUInfo();
extern ThermalInfo getThermalState();
*/
import "C"
import "unsafe"

var thermalNames = [...]string{"nominal", "fair", "serious", "critical"}

func queryGPU() Info {
	device := C.getMetalGPUInfo()
	thermal := C.getThermalState()

	info := Info{
		AllocatedBytes:   uint64(device.allocated_size),
		RecommendedMax:   uint64(device.recommended_max),
		HasUnifiedMemory: device.has_unified_memory != 0,
		ThermalState:     thermalNames[0],
	}

	if device.name != nil {
		info.Name = C.GoString(device.name)
		C.free(unsafe.Pointer(device.name))
	}
	if info.RecommendedMax > 0 {
		info.UsagePercent = float64(info.AllocatedBytes) / float64(info.RecommendedMax) * 100
	}
	if s := int(thermal.thermal_state); s >= 0 && s < len(thermalNames) {
		info.ThermalState = thermalNames[s]
	}

	return info
}
