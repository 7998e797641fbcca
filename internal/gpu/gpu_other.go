//go:build !darwin || nogpu

package gpu

// queryGPU returns an empty Info off macOS. The benchmarking worker itself
// runs anywhere, but Metal/IOKit telemetry only exists on Apple Silicon.
func queryGPU() Info {
	return Info{}
}
