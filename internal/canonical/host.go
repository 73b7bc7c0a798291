package canonical

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sb4client/safebrowsing4/internal/safeerrors"
)

// canonicalizeHost normalizes a hostname: collapsing consecutive dots,
// trimming leading/trailing dots, lowercasing, and rewriting IPv4-looking
// hosts to dotted-decimal-quad form.
func canonicalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("%w: empty host", safeerrors.ErrInvalidURL)
	}

	host = collapseDots(host)
	host = strings.Trim(host, ".")
	host = strings.ToLower(host)

	if host == "" {
		return "", fmt.Errorf("%w: empty host after dot trimming", safeerrors.ErrInvalidURL)
	}

	if looksLikeIPv4(host) {
		ip, ok := normalizeIPv4(host)
		if !ok {
			return "", fmt.Errorf("%w: bad ipv4 host %q", safeerrors.ErrInvalidURL, host)
		}

		return ip, nil
	}

	return host, nil
}

// collapseDots replaces any run of consecutive '.' with a single '.'.
func collapseDots(host string) string {
	var b strings.Builder
	b.Grow(len(host))

	prevDot := false
	for i := 0; i < len(host); i++ {
		c := host[i]
		if c == '.' {
			if prevDot {
				continue
			}
			prevDot = true
		} else {
			prevDot = false
		}
		b.WriteByte(c)
	}

	return b.String()
}

// looksLikeIPv4 reports whether host consists only of characters that can
// appear in a decimal, octal, or hex IPv4 representation.
func looksLikeIPv4(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c == 'x' || c == '.':
		default:
			return false
		}
	}

	return true
}

// normalizeIPv4 parses host as a 1-, 2-, 3-, or 4-segment IPv4 address,
// where each segment may be decimal, octal (leading 0), or hexadecimal
// (leading 0x), and rewrites it to dotted-decimal-quad form.
//
// Segment semantics per segment count:
//   - 1 segment: the whole 32-bit value.
//   - 2 segments: first segment is 8 bits, second is the remaining 24 bits.
//   - 3 segments: first two are 8 bits each, third is the remaining 16 bits.
//   - 4 segments: each is 8 bits.
func normalizeIPv4(host string) (string, bool) {
	parts := strings.Split(host, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return "", false
	}

	nums := make([]uint64, len(parts))
	for i, p := range parts {
		n, ok := parseIPv4Segment(p)
		if !ok {
			return "", false
		}
		nums[i] = n
	}

	var total uint64
	switch len(nums) {
	case 1:
		total = nums[0]
		if total > 0xFFFFFFFF {
			return "", false
		}
	case 2:
		if nums[0] > 0xFF || nums[1] > 0xFFFFFF {
			return "", false
		}
		total = nums[0]<<24 | nums[1]
	case 3:
		if nums[0] > 0xFF || nums[1] > 0xFF || nums[2] > 0xFFFF {
			return "", false
		}
		total = nums[0]<<24 | nums[1]<<16 | nums[2]
	case 4:
		for _, n := range nums {
			if n > 0xFF {
				return "", false
			}
		}
		total = nums[0]<<24 | nums[1]<<16 | nums[2]<<8 | nums[3]
	}

	return fmt.Sprintf(
		"%d.%d.%d.%d",
		(total>>24)&0xFF,
		(total>>16)&0xFF,
		(total>>8)&0xFF,
		total&0xFF,
	), true
}

// parseIPv4Segment parses a single IPv4 address segment, which may be
// decimal, octal ("0" prefix), or hexadecimal ("0x" prefix).
func parseIPv4Segment(seg string) (uint64, bool) {
	if seg == "" {
		return 0, false
	}

	base := 10
	switch {
	case len(seg) > 1 && (seg[0:2] == "0x" || seg[0:2] == "0X"):
		base = 16
		seg = seg[2:]
	case len(seg) > 1 && seg[0] == '0':
		base = 8
	}

	if seg == "" {
		// A bare "0x" or similarly empty segment after stripping the prefix
		// is not a valid number.
		return 0, base == 8
	}

	n, err := strconv.ParseUint(seg, base, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}
