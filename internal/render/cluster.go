package render

import (
	"regexp"
	"sort"
	"strings"

	"github.com/charliek/catview/internal/constants"
)

// Cluster groups lines that differ only in volatile tokens
type Cluster struct {
	Pattern string   `json:"pattern"`
	Rep     string   `json:"rep"`
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

var normalizers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`[A-Fa-f0-9]{8}(?:-[A-Fa-f0-9]{4}){3}-[A-Fa-f0-9]{12}`), " UUID "},
	{regexp.MustCompile(`0x[0-9a-fA-F]+`), " HEX "},
	{regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b`), " IP "},
	{regexp.MustCompile(`/[\w\-.]+(?:/[\w\-.]+)+`), " PATH "},
	{regexp.MustCompile(`\b\d+\b`), " NUM "},
	{regexp.MustCompile(`\s+`), " "},
}

// Normalize replaces identifiers, addresses, paths and numbers with
// placeholders and lower-cases the result.
func Normalize(line string) string {
	s := line
	for _, n := range normalizers {
		s = n.re.ReplaceAllString(s, n.repl)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ClusterOptions bounds the clustering work
type ClusterOptions struct {
	MaxClusters int
	MaxSamples  int
}

// BuildClusters groups the lines of text by normalized pattern, most
// frequent first. Scanning stops once MaxClusters patterns are known.
func BuildClusters(text string, opts ClusterOptions) []Cluster {
	if opts.MaxClusters <= 0 {
		opts.MaxClusters = constants.MaxClusters
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = constants.MaxClusterSamples
	}

	index := make(map[string]int)
	var clusters []Cluster
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key := Normalize(line)
		if i, ok := index[key]; ok {
			c := &clusters[i]
			c.Count++
			if len(c.Samples) < opts.MaxSamples {
				c.Samples = append(c.Samples, line)
			}
			continue
		}
		if len(clusters) >= opts.MaxClusters {
			break
		}
		index[key] = len(clusters)
		clusters = append(clusters, Cluster{Pattern: key, Rep: line, Count: 1, Samples: []string{line}})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})
	return clusters
}
