package enricher

import (
	"encoding/json"
	"iter"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// sampleLine matches `name{labels} value [timestamp]`.
	// Quoted label values may contain '}'.
	sampleLine = regexp.MustCompile(`^\s*[a-zA-Z_:][a-zA-Z0-9_:]*\{((?:[^}"]|"(?:[^"\\]|\\.)*")*)\}\s+(\S+)(?:\s+-?[0-9]+)?\s*$`)

	streamLabel = regexp.MustCompile(`(?:^|,)\s*stream_ID\s*=\s*"([^"]*)"`)
	userLabel   = regexp.MustCompile(`(?:^|,)\s*user\s*=\s*"((?:[^"\\]|\\.)*)"`)

	streamToken = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

	// embeddedToken finds a 40-hex run that is not part of a longer hex run.
	embeddedToken = regexp.MustCompile(`(?:^|[^0-9a-fA-F])([0-9a-fA-F]{40})(?:[^0-9a-fA-F]|$)`)
)

// ParseExposition returns the observations found in a Prometheus-style text
// body. Lines that do not carry a valid 40-hex stream_ID label and a
// non-negative integer value are skipped. The sequence re-scans body on every
// iteration, so it can be ranged over more than once.
func ParseExposition(body string) iter.Seq[Observation] {
	return func(yield func(Observation) bool) {
		for line := range strings.Lines(body) {
			obs, ok := parseLine(line)
			if !ok {
				continue
			}
			if !yield(obs) {
				return
			}
		}
	}
}

func parseLine(line string) (Observation, bool) {
	m := sampleLine.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Observation{}, false
	}
	labels, value := m[1], m[2]

	sm := streamLabel.FindStringSubmatch(labels)
	if sm == nil || !streamToken.MatchString(sm[1]) {
		return Observation{}, false
	}
	clients, ok := parseCount(value)
	if !ok {
		return Observation{}, false
	}

	obs := Observation{
		StreamID: StreamID(strings.ToLower(sm[1])),
		Clients:  clients,
	}
	if um := userLabel.FindStringSubmatch(labels); um != nil {
		obs.User = unescapeLabel(um[1])
	}
	return obs, true
}

// maxCount bounds accepted client counts.
const maxCount = math.MaxInt32

// parseCount accepts integers in [0, maxCount], including integral floats
// such as "3.0" or "3e0" that some exporters emit for gauges.
func parseCount(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 0 && n <= maxCount
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > maxCount {
		return 0, false
	}
	return int(f), true
}

func unescapeLabel(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\n`, "\n")
	return r.Replace(s)
}

// statusResponse is the body of the alternate status endpoint.
type statusResponse struct {
	UsersByStream *map[string][]string `json:"users_by_stream"`
}

// ParseStatus decodes a users_by_stream status body into user observations,
// one per listed user with a count of 1. Keys without an embedded 40-hex
// identifier and empty user names are skipped. A body that is not JSON or
// lacks users_by_stream is an ErrMalformedResponse.
func ParseStatus(body []byte) ([]Observation, error) {
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode status body"), ErrMalformedResponse)
	}
	if resp.UsersByStream == nil {
		return nil, errors.Mark(errors.New("status body has no users_by_stream"), ErrMalformedResponse)
	}

	// Map iteration order is random; sort keys so the output is stable.
	keys := make([]string, 0, len(*resp.UsersByStream))
	for k := range *resp.UsersByStream {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Observation
	for _, raw := range keys {
		m := embeddedToken.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		id := StreamID(strings.ToLower(m[1]))
		for _, user := range (*resp.UsersByStream)[raw] {
			if user == "" {
				continue
			}
			out = append(out, Observation{StreamID: id, User: user, Clients: 1, FromStatus: true})
		}
	}
	return out, nil
}
