package caster

import "fmt"

type kernelType uint8

// The list of kernels that implement the collision pipeline, in stage order.
const (
	generateRays kernelType = iota
	findLeaves
	sortCandidates
	resolveCollisions
	//
	numKernels
)

// Implements Stringer; map kernel type to the kernel name as defined in the
// device kernel sources.
func (kt kernelType) String() string {
	switch kt {
	case generateRays:
		return "generateRays"
	case findLeaves:
		return "findLeaves"
	case sortCandidates:
		return "sortCandidates"
	case resolveCollisions:
		return "resolveCollisions"
	default:
		panic(fmt.Sprintf("unsupported kernel type: %d", kt))
	}
}
