package conversation

import "fmt"

// Policy selects what follows the color step.
type Policy string

const (
	// PolicyIMEI asks for a trade-in device, validates it and builds one enrolled link.
	PolicyIMEI Policy = "imei"
	// PolicyBatch asks for a link count and builds that many links in sequence.
	PolicyBatch Policy = "batch"
)

// QuantityChoices are the link counts offered by the batch policy.
var QuantityChoices = []int{1, 2, 3, 5, 10, 15, 20}

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyIMEI, PolicyBatch:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown link policy %q (want %q or %q)", s, PolicyIMEI, PolicyBatch)
	}
}
