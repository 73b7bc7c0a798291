package canonical

import "strings"

// maxHostSuffixLabels is the maximum number of trailing host labels used to
// build a host-suffix expression, beyond the full host itself.
const maxHostSuffixLabels = 5

// maxPathPrefixComponents is the maximum number of directory-prefix
// expressions built from a path, counting the root "/".
const maxPathPrefixComponents = 4

// Expressions returns the set of up to 30 host-suffix/path-prefix lookup
// expressions for u, each already combined as "host/path[?query]".  The
// result contains no duplicates; order is unspecified.
func Expressions(u URI) []string {
	hosts := hostSuffixes(u.Host)
	paths := pathPrefixes(u)

	seen := make(map[string]struct{}, len(hosts)*len(paths))
	out := make([]string, 0, len(hosts)*len(paths))

	for _, h := range hosts {
		for _, p := range paths {
			expr := h + "/" + p
			if _, ok := seen[expr]; ok {
				continue
			}
			seen[expr] = struct{}{}
			out = append(out, expr)
		}
	}

	return out
}

// hostSuffixes returns the exact host, plus (for a non-IP host with at
// least 3 labels) the last 2, 3, 4, and 5 labels, capped at one fewer than
// the total label count and at 5 labels.
func hostSuffixes(host string) []string {
	if isIPv4(host) {
		return []string{host}
	}

	labels := strings.Split(host, ".")
	out := []string{host}

	maxN := len(labels) - 1
	if maxN > maxHostSuffixLabels {
		maxN = maxHostSuffixLabels
	}

	if len(labels) < 3 {
		return out
	}

	for n := 2; n <= maxN; n++ {
		out = append(out, strings.Join(labels[len(labels)-n:], "."))
	}

	return out
}

// isIPv4 reports whether host is a dotted-decimal-quad IPv4 address, as
// produced by [canonicalizeHost].
func isIPv4(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}

	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}

	return true
}

// pathPrefixes returns the exact path+query, the exact path without query
// (if a query was present), and the directory prefixes "/", "/a/",
// "/a/b/", ..., at most 4 of them counting the root.  The final path
// component is treated as a file name (not a directory) unless the path
// ends in "/", so "/a/b.html" only
// contributes the directory prefixes "/" and "/a/", never "/a/b.html/".
func pathPrefixes(u URI) []string {
	var out []string

	if u.HasQuery() {
		out = append(out, u.PathWithQuery())
	}
	out = append(out, u.Path)

	dirs := pathSegments(u.Path)
	if !strings.HasSuffix(u.Path, "/") && len(dirs) > 0 {
		dirs = dirs[:len(dirs)-1]
	}

	// The root "/" is one of the maxPathPrefixComponents prefixes.
	n := len(dirs)
	if n > maxPathPrefixComponents-1 {
		n = maxPathPrefixComponents - 1
	}

	seen := make(map[string]struct{}, n+1)
	seen[u.Path] = struct{}{}
	if u.HasQuery() {
		seen[u.PathWithQuery()] = struct{}{}
	}

	// "/" itself.
	if _, ok := seen["/"]; !ok {
		out = append(out, "/")
		seen["/"] = struct{}{}
	}

	prefix := "/"
	for i := 0; i < n; i++ {
		prefix += dirs[i] + "/"
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		out = append(out, prefix)
	}

	return out
}

// pathSegments splits path on "/", dropping the leading and trailing empty
// components produced by the path's surrounding slashes.  It returns nil
// for the root path "/".
func pathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "/")
}
