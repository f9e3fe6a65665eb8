package transfer

import "github.com/thatique/sendcore/internal/verr"

const mib = 1 << 20

// PartPlan describes how a file of a given size should be partitioned for
// upload. The algorithm below must be reproduced exactly for interop
// with the client.
type PartPlan struct {
	Multipart bool
	PartSize  int64
	NumParts  int64
}

// computePartPlan implements the part-size algorithm:
//
//  1. Start with partSize = DefaultPartSize, numParts = ceil(fileSize / partSize).
//  2. If numParts > MaxParts, regrow partSize = ceil(fileSize / MaxParts),
//     reject with FileTooLarge if that exceeds MaxPartSize, round up to
//     the next MiB, and recompute numParts.
//  3. Every non-final part has size exactly partSize; the final part
//     may be smaller (down to 1 byte).
func computePartPlan(fileSize, defaultPartSize, maxParts, maxPartSize int64) (PartPlan, error) {
	partSize := defaultPartSize
	numParts := ceilDiv(fileSize, partSize)
	if numParts > maxParts {
		partSize = ceilDiv(fileSize, maxParts)
		if partSize > maxPartSize {
			return PartPlan{}, verr.Newf(verr.FileTooLarge, nil,
				"transfer: file of %d bytes cannot fit within %d parts at %d bytes/part", fileSize, maxParts, maxPartSize)
		}
		partSize = roundUpToMiB(partSize)
		numParts = ceilDiv(fileSize, partSize)
	}
	return PartPlan{Multipart: true, PartSize: partSize, NumParts: numParts}, nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func roundUpToMiB(n int64) int64 {
	return ceilDiv(n, mib) * mib
}

// partBounds returns the exact byte size a given 1-based part number
// must be: partSize for every part except the last, which is
// fileSize - partSize*(numParts-1) (at least 1 byte by construction of
// numParts via ceilDiv).
func partBounds(plan PartPlan, fileSize int64, partNumber int64) (minSize, maxSize int64) {
	if partNumber < plan.NumParts {
		return plan.PartSize, plan.PartSize
	}
	last := fileSize - plan.PartSize*(plan.NumParts-1)
	return last, last
}
