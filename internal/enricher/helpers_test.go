package enricher

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

func hexID(c string) StreamID {
	return StreamID(strings.Repeat(c, 40))
}

// fakeDirectory is an in-memory Directory that records calls.
type fakeDirectory struct {
	mu          sync.Mutex
	pages       map[int]ChannelPage
	streams     map[ChannelID][]StreamID
	listErr     error
	streamErrs  map[ChannelID]error
	listCalls   []int
	streamCalls []ChannelID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		pages:      map[int]ChannelPage{},
		streams:    map[ChannelID][]StreamID{},
		streamErrs: map[ChannelID]error{},
	}
}

func (f *fakeDirectory) ListChannels(ctx context.Context, page int) (ChannelPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, page)
	if f.listErr != nil {
		return ChannelPage{}, f.listErr
	}
	p, ok := f.pages[page]
	if !ok {
		return ChannelPage{TotalPages: -1}, nil
	}
	return p, nil
}

func (f *fakeDirectory) ChannelStreams(ctx context.Context, id ChannelID) ([]StreamID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls = append(f.streamCalls, id)
	if err := f.streamErrs[id]; err != nil {
		return nil, err
	}
	return f.streams[id], nil
}

func (f *fakeDirectory) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// fakeSource is a Source returning canned responses.
type fakeSource struct {
	mu        sync.Mutex
	body      string
	usageErr  error
	status    []Observation
	statusOn  bool
	statusErr error
	calls     int
}

func (f *fakeSource) Usage(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.body, f.usageErr
}

func (f *fakeSource) Status(ctx context.Context) ([]Observation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusOn, f.statusErr
}

func (f *fakeSource) set(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.usageErr = body, err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errBoom = errors.Mark(errors.New("boom"), ErrFetchFailed)
