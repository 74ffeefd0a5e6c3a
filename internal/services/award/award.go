// Package award converts one random byte into a credit grant.
package award

const (
	// Threshold is the largest sample that earns nothing.
	Threshold = 70
	// Payout is the fixed grant for any sample above Threshold.
	Payout int64 = 7
)

// Award returns Payout when sample > Threshold and 0 otherwise.
func Award(sample byte) int64 {
	if sample > Threshold {
		return Payout
	}

	return 0
}
