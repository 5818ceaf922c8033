package accounts

import (
	"fmt"
	"hash/fnv"
)

// CIDRFunc picks the subnet for a user's project network
type CIDRFunc func(username string) (string, error)

// DefaultCIDR maps a username onto one of the 4096 /24 networks in
// 172.16.0.0/12. The same username always gets the same network.
func DefaultCIDR(username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username required for cidr")
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	n := h.Sum32() % 4096
	return fmt.Sprintf("172.%d.%d.0/24", 16+n/256, n%256), nil
}
