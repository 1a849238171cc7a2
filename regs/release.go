//go:build !debug

package regs

const debug = false
