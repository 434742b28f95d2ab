package analysis

import "csa/internal/climeta"

// FrameworkDetector infers a target framework moniker from metadata.
type FrameworkDetector interface {
	// Name identifies the detector in debug logs.
	Name() string
	// Detect returns the moniker and true, or false if it has no opinion.
	Detect(md *climeta.Metadata) (string, bool)
}

// FrameworkDetectorChain runs detectors in order and keeps the first match.
type FrameworkDetectorChain struct {
	detectors []FrameworkDetector
}

// NewFrameworkDetectorChain creates a new detector chain
func NewFrameworkDetectorChain(detectors ...FrameworkDetector) *FrameworkDetectorChain {
	return &FrameworkDetectorChain{
		detectors: detectors,
	}
}

// Detect returns the first detector's answer, or UnknownFramework.
func (dc *FrameworkDetectorChain) Detect(md *climeta.Metadata) string {
	moniker, _ := dc.DetectWith(md)
	return moniker
}

// DetectWith also names the detector that matched.
func (dc *FrameworkDetectorChain) DetectWith(md *climeta.Metadata) (string, string) {
	for _, d := range dc.detectors {
		if moniker, ok := d.Detect(md); ok {
			return moniker, d.Name()
		}
	}
	return UnknownFramework, ""
}
