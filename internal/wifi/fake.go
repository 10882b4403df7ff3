package wifi

import (
	"context"
	"errors"
	"sync"
)

// FakeAssociator records calls and answers from its fields.
type FakeAssociator struct {
	mu sync.Mutex

	// ConnectErrors are returned by successive Connect calls; once
	// exhausted Connect succeeds.
	ConnectErrors []error
	// Up is reported by Connected.
	Up      bool
	APError error

	Connects []string
	APs      []string
	Probes   int
}

var ErrFakeNoNetwork = errors.New("no network")

func (f *FakeAssociator) Connect(_ context.Context, ssid, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connects = append(f.Connects, ssid)
	if len(f.ConnectErrors) > 0 {
		err := f.ConnectErrors[0]
		f.ConnectErrors = f.ConnectErrors[1:]
		if err != nil {
			f.Up = false
			return err
		}
	}
	f.Up = true
	return nil
}

func (f *FakeAssociator) Connected(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Probes++
	return f.Up, nil
}

func (f *FakeAssociator) StartAccessPoint(_ context.Context, ssid, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.APs = append(f.APs, ssid)
	return f.APError
}

// SetUp changes the reported link state.
func (f *FakeAssociator) SetUp(up bool) {
	f.mu.Lock()
	f.Up = up
	f.mu.Unlock()
}

// FailNext makes the next n Connect calls fail.
func (f *FakeAssociator) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.ConnectErrors = append(f.ConnectErrors, ErrFakeNoNetwork)
	}
}

func (f *FakeAssociator) ConnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Connects)
}
