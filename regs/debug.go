//go:build debug

package regs

// debug enables field assertions on every access and validates the
// layout at startup.
const debug = true

func init() {
	if err := Validate(Fields); err != nil {
		panic(err)
	}
}
