package dma

// Interrupt attributes a DMA interrupt to the direction that raised it
// and notifies that direction's Signal. Interrupts that match no
// in-flight transfer are logged and counted.
//
// Interrupt never blocks. It must be called from a single goroutine,
// typically the one serving the device interrupt line.
func (d *Device) Interrupt() {
	dir := attribute(
		func(dir Direction) bool { return d.chans[dir].lock.held() },
		func(dir Direction) bool { return d.chans[dir].statusEmpty(d.regs) },
	)
	if dir == noDirection {
		d.errant.Add(1)
		d.logf("crash: errant interrupt")
		return
	}
	d.chans[dir].signal.Notify()
}

// attribute decides which direction an interrupt belongs to: the first
// direction with a transfer in flight and a non-empty status FIFO.
//
// S2MM is checked first. When both directions are in flight with
// non-empty status FIFOs, an MM2S completion is attributed to S2MM.
func attribute(active, empty func(Direction) bool) Direction {
	for _, dir := range [...]Direction{S2MM, MM2S} {
		if active(dir) && !empty(dir) {
			return dir
		}
	}
	return noDirection
}
