//go:build !windows

package platform

// osNameStrategies returns no OS-specific tiers off Windows; resolution
// falls straight through to the gopsutil tier.
func osNameStrategies() []nameStrategy {
	return nil
}
