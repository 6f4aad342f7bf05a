package discovery

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
)

var ipv4Pattern = regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+)`)

// arpCandidates lists neighbor cache addresses inside the local prefix.
// A missing or failing arp binary yields an empty tier, not an error.
func arpCandidates(ctx context.Context, prefix string) []string {
	out, err := exec.CommandContext(ctx, "arp", "-a").Output()
	if err != nil {
		return nil
	}

	return parseARPOutput(string(out), prefix)
}

func parseARPOutput(out, prefix string) []string {
	seen := make(map[string]struct{})
	var candidates []string
	for _, line := range strings.Split(out, "\n") {
		match := ipv4Pattern.FindString(line)
		if match == "" {
			continue
		}
		if !strings.HasPrefix(match, prefix+".") || gatewayAddress(match) {
			continue
		}
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		candidates = append(candidates, match)
	}

	return candidates
}
