package enricher

import (
	"maps"
	"math/rand"
	"slices"
	"testing"
)

func lookupFrom(m map[StreamID]string) LookupFunc {
	return func(id StreamID) (string, bool) {
		name, ok := m[id]
		return name, ok
	}
}

func TestAggregate_sums_per_channel(t *testing.T) {
	lookup := lookupFrom(map[StreamID]string{
		hexID("a"): "ESPN",
		hexID("b"): "ESPN",
		hexID("c"): "CNN",
	})
	obs := []Observation{
		{StreamID: hexID("a"), Clients: 3},
		{StreamID: hexID("b"), Clients: 2},
		{StreamID: hexID("c"), Clients: 0},
		{StreamID: hexID("d"), Clients: 4},
		{StreamID: hexID("d"), Clients: 1},
	}

	snap, unresolved := Aggregate(slices.Values(obs), lookup)
	want := map[string]int{"ESPN": 5, "CNN": 0, "unknown_dddddd": 5}
	if !maps.Equal(snap.Channels, want) {
		t.Errorf("got %v want %v", snap.Channels, want)
	}
	if unresolved != 2 {
		t.Errorf("expected 2 unresolved observations, got %d", unresolved)
	}
	if len(snap.UserChannels) != 0 {
		t.Errorf("expected no user aggregates, got %v", snap.UserChannels)
	}
}

func TestAggregate_user_rows_take_max(t *testing.T) {
	lookup := lookupFrom(map[StreamID]string{hexID("a"): "ESPN", hexID("b"): "ESPN"})
	obs := []Observation{
		{StreamID: hexID("a"), User: "ana", Clients: 1},
		{StreamID: hexID("a"), User: "ana", Clients: 1},
		{StreamID: hexID("b"), User: "ana", Clients: 3},
		{StreamID: hexID("a"), User: "luis", Clients: 0},
	}

	snap, _ := Aggregate(slices.Values(obs), lookup)
	want := map[UserChannel]int{
		{User: "ana", Channel: "ESPN"}:  3,
		{User: "luis", Channel: "ESPN"}: 1,
	}
	if !maps.Equal(snap.UserChannels, want) {
		t.Errorf("got %v want %v", snap.UserChannels, want)
	}
	if got := snap.Channels["ESPN"]; got != 5 {
		t.Errorf("feed user rows should sum into the channel family, got %v", snap.Channels)
	}
}

func TestAggregate_user_only_feed_counts_channels(t *testing.T) {
	a := string(hexID("a"))
	body := `streams_by_user{stream_ID="` + a + `",user="alice"} 2` + "\n" +
		`streams_by_user{stream_ID="` + a + `",user="bob"} 1` + "\n"
	lookup := lookupFrom(map[StreamID]string{hexID("a"): "ESPN"})

	snap, _ := Aggregate(ParseExposition(body), lookup)
	if !maps.Equal(snap.Channels, map[string]int{"ESPN": 3}) {
		t.Errorf("expected ESPN=3 from user-only rows, got %v", snap.Channels)
	}
	want := map[UserChannel]int{
		{User: "alice", Channel: "ESPN"}: 2,
		{User: "bob", Channel: "ESPN"}:   1,
	}
	if !maps.Equal(snap.UserChannels, want) {
		t.Errorf("got %v want %v", snap.UserChannels, want)
	}
}

func TestAggregate_status_rows_skip_channels(t *testing.T) {
	lookup := lookupFrom(map[StreamID]string{hexID("a"): "ESPN"})
	obs := []Observation{
		{StreamID: hexID("a"), User: "ana", Clients: 1, FromStatus: true},
		{StreamID: hexID("b"), User: "luis", Clients: 1, FromStatus: true},
	}

	snap, unresolved := Aggregate(slices.Values(obs), lookup)
	if len(snap.Channels) != 0 {
		t.Errorf("status rows must not feed the channel family, got %v", snap.Channels)
	}
	if len(snap.UserChannels) != 2 || unresolved != 1 {
		t.Errorf("unexpected user aggregates %v (unresolved %d)", snap.UserChannels, unresolved)
	}
}

func TestMergeMax(t *testing.T) {
	dst := map[UserChannel]int{{User: "ana", Channel: "ESPN"}: 2, {User: "bob", Channel: "CNN"}: 1}
	mergeMax(dst, map[UserChannel]int{{User: "ana", Channel: "ESPN"}: 1, {User: "bob", Channel: "CNN"}: 4, {User: "eve", Channel: "CNN"}: 1})
	want := map[UserChannel]int{
		{User: "ana", Channel: "ESPN"}: 2,
		{User: "bob", Channel: "CNN"}:  4,
		{User: "eve", Channel: "CNN"}:  1,
	}
	if !maps.Equal(dst, want) {
		t.Errorf("got %v want %v", dst, want)
	}
	mergeMax(dst, nil)
	if !maps.Equal(dst, want) {
		t.Errorf("merging nil changed the map: %v", dst)
	}
}

func TestAggregate_order_independent(t *testing.T) {
	lookup := lookupFrom(map[StreamID]string{hexID("a"): "ESPN", hexID("b"): "CNN"})
	var obs []Observation
	ids := []StreamID{hexID("a"), hexID("b"), hexID("c")}
	users := []string{"", "", "ana", "luis"}
	for i := 0; i < 60; i++ {
		obs = append(obs, Observation{StreamID: ids[i%3], User: users[i%4], Clients: i % 7})
	}

	base, baseUnresolved := Aggregate(slices.Values(obs), lookup)
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		shuffled := slices.Clone(obs)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, unresolved := Aggregate(slices.Values(shuffled), lookup)
		if !maps.Equal(got.Channels, base.Channels) || !maps.Equal(got.UserChannels, base.UserChannels) || unresolved != baseUnresolved {
			t.Fatalf("trial %d: aggregation depends on order: %v vs %v", trial, got, base)
		}
	}
}

func TestAggregate_empty(t *testing.T) {
	snap, unresolved := Aggregate(ParseExposition(""), lookupFrom(nil))
	if len(snap.Channels) != 0 || len(snap.UserChannels) != 0 || unresolved != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
	if snap.Channels == nil || snap.UserChannels == nil {
		t.Error("snapshot maps should be initialized")
	}
}
