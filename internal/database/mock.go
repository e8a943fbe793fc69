package database

import "sync"

// MockBase carries the locking and error injection shared by in-memory mock repositories.
type MockBase struct {
	Mu sync.RWMutex

	// ErrorOnNextCall is returned (once) by the next mock call.
	ErrorOnNextCall error
	// Calls counts mock invocations by method name.
	Calls map[string]int
}

// CheckError records the call and returns and clears any injected error.
func (m *MockBase) CheckError(method string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[method]++
	if m.ErrorOnNextCall != nil {
		err := m.ErrorOnNextCall
		m.ErrorOnNextCall = nil
		return err
	}
	return nil
}

// CallCount reports how many times method was invoked.
func (m *MockBase) CallCount(method string) int {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return m.Calls[method]
}
