package enricher

import (
	"slices"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestParseExposition_single_line(t *testing.T) {
	body := `clients_per_stream{stream_ID="` + string(hexID("a")) + `"} 3`

	got := slices.Collect(ParseExposition(body))
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].StreamID != hexID("a") || got[0].Clients != 3 || got[0].User != "" {
		t.Errorf("unexpected observation: %+v", got[0])
	}
}

func TestParseExposition_skips_malformed_lines(t *testing.T) {
	a, b, c := string(hexID("a")), string(hexID("b")), string(hexID("c"))
	body := strings.Join([]string{
		"# HELP gauge_clients_per_stream clients",
		"# TYPE gauge_clients_per_stream gauge",
		`gauge_clients_per_stream{stream_ID="` + a + `"} 2`,
		// too short, not hex, fractional, negative, no value, no stream_ID, 41 chars
		`gauge_clients_per_stream{stream_ID="abc123"} 4`,
		`gauge_clients_per_stream{stream_ID="` + strings.Repeat("z", 40) + `"} 4`,
		`gauge_clients_per_stream{stream_ID="` + b + `"} 2.5`,
		`gauge_clients_per_stream{stream_ID="` + b + `"} -1`,
		`gauge_clients_per_stream{stream_ID="` + b + `"}`,
		`gauge_clients_per_stream{other="` + b + `"} 1`,
		`gauge_clients_per_stream{stream_ID="` + a + `1"} 1`,
		`garbage {{{ line`,
		``,
		`gauge_clients_per_stream{host="x",stream_ID="` + c + `",proto="http"} 7 1700000000000`,
	}, "\n")

	got := slices.Collect(ParseExposition(body))
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d: %+v", len(got), got)
	}
	if got[0].StreamID != hexID("a") || got[0].Clients != 2 {
		t.Errorf("unexpected first observation: %+v", got[0])
	}
	if got[1].StreamID != hexID("c") || got[1].Clients != 7 {
		t.Errorf("unexpected second observation: %+v", got[1])
	}
}

func TestParseExposition_lowercases_ids(t *testing.T) {
	body := `clients_per_stream{stream_ID="` + strings.Repeat("AB", 20) + `"} 1`
	got := slices.Collect(ParseExposition(body))
	if len(got) != 1 || got[0].StreamID != StreamID(strings.Repeat("ab", 20)) {
		t.Errorf("expected lowercased id, got %+v", got)
	}
}

func TestParseExposition_integral_float(t *testing.T) {
	body := `clients_per_stream{stream_ID="` + string(hexID("d")) + `"} 4.0` + "\r\n"
	got := slices.Collect(ParseExposition(body))
	if len(got) != 1 || got[0].Clients != 4 {
		t.Errorf("expected count 4, got %+v", got)
	}
}

func TestParseExposition_user_label(t *testing.T) {
	body := `streams_by_user{stream_ID="` + string(hexID("e")) + `",user="ana \"the\" viewer"} 2`
	got := slices.Collect(ParseExposition(body))
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].User != `ana "the" viewer` || got[0].Clients != 2 {
		t.Errorf("unexpected user observation: %+v", got[0])
	}
}

func TestParseExposition_brace_in_label_value(t *testing.T) {
	body := `streams_by_user{user="a}b",stream_ID="` + string(hexID("f")) + `"} 1`
	got := slices.Collect(ParseExposition(body))
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].User != "a}b" || got[0].StreamID != hexID("f") || got[0].Clients != 1 {
		t.Errorf("unexpected observation: %+v", got[0])
	}
}

func TestParseExposition_count_bounds(t *testing.T) {
	id := string(hexID("a"))
	cases := []struct {
		value string
		ok    bool
		want  int
	}{
		{"2147483647", true, 2147483647},
		{"2147483648", false, 0},
		{"3000000000", false, 0},
		{"3e9", false, 0},
		{"1e18", false, 0},
		{"2.147483647e9", true, 2147483647},
	}
	for _, tc := range cases {
		got := slices.Collect(ParseExposition(`clients_per_stream{stream_ID="` + id + `"} ` + tc.value))
		if !tc.ok {
			if len(got) != 0 {
				t.Errorf("value %s: expected the line to be skipped, got %+v", tc.value, got)
			}
			continue
		}
		if len(got) != 1 || got[0].Clients != tc.want {
			t.Errorf("value %s: expected count %d, got %+v", tc.value, tc.want, got)
		}
	}
}

func TestParseExposition_empty(t *testing.T) {
	for _, body := range []string{"", "\n\n", "# only comments\n"} {
		if n := len(slices.Collect(ParseExposition(body))); n != 0 {
			t.Errorf("body %q: expected no observations, got %d", body, n)
		}
	}
}

func TestParseExposition_restartable(t *testing.T) {
	body := `clients_per_stream{stream_ID="` + string(hexID("a")) + `"} 1` + "\n" +
		`clients_per_stream{stream_ID="` + string(hexID("b")) + `"} 1`
	seq := ParseExposition(body)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if len(first) != 2 || !slices.Equal(first, second) {
		t.Errorf("expected identical passes, got %v and %v", first, second)
	}

	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("early break should stop iteration, got %d", n)
	}
}

func TestParseStatus(t *testing.T) {
	a, b := string(hexID("a")), string(hexID("b"))
	body := []byte(`{"users_by_stream": {
		"acestream://` + strings.ToUpper(a) + `?transcode=1": ["ana", "luis", ""],
		"/pid/` + b + `/stream.ts": ["ana"],
		"no-token-here": ["ghost"],
		"` + a + `ff": ["too-long"]
	}}`)

	got, err := ParseStatus(body)
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 observations, got %d: %+v", len(got), got)
	}
	for _, o := range got {
		if o.Clients != 1 || !o.FromStatus {
			t.Errorf("status observations count 1 and are marked FromStatus, got %+v", o)
		}
		if o.StreamID != hexID("a") && o.StreamID != hexID("b") {
			t.Errorf("unexpected stream id %q", o.StreamID)
		}
	}
}

func TestParseStatus_malformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"streams": {}}`, `[]`} {
		_, err := ParseStatus([]byte(body))
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("body %q: expected ErrMalformedResponse, got %v", body, err)
		}
	}
}
