package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// HostSubnet is the subnet every emulated host lives in.
const HostSubnet = "10.0.0"

var cidrRe = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}(/([8-9]|1[0-9]|2[0-9]|3[0-2]))?$`)

// CheckValidIpv4 reports whether ip looks like 10.0.0.1/24 (prefix optional).
func CheckValidIpv4(ip string) bool {
	if !cidrRe.MatchString(ip) {
		return false
	}

	// check each part of the IP address
	parts := strings.Split(StripPrefix(ip), ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if val, err := strconv.Atoi(part); err != nil || val < 0 || val > 255 {
			return false
		}
	}

	// network and broadcast addresses cannot be assigned to a host
	if parts[3] == "0" || parts[3] == "255" {
		return false
	}

	return true
}

// HostAddress returns the CIDR address of the i-th host (1 based).
func HostAddress(i int) string {
	return fmt.Sprintf("%s.%d/24", HostSubnet, i)
}

// StripPrefix drops the "/len" suffix of a CIDR address.
func StripPrefix(cidr string) string {
	ip, _, _ := strings.Cut(cidr, "/")
	return ip
}
