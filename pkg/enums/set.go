// Package enums holds the closed string sets persisted by the payment tables.
// Every type round-trips through its column as-is; Parse* rejects anything
// outside the set.
package enums

import "fmt"

func parseKnown[T ~string](known []T, value, kind string) (T, error) {
	for _, v := range known {
		if string(v) == value {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
