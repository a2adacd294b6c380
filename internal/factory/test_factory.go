package factory

import (
	"time"

	"github.com/openplace/pixelfield/internal/dependencies/mocks"
	"github.com/openplace/pixelfield/internal/storage/memory"
	"github.com/openplace/pixelfield/internal/testutil"
)

// TestSecret signs administrator tokens in tests
var TestSecret = []byte("test-secret")

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	MockClock *mocks.MockClock
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	app := NewWithDependencies(store, mockClock, Config{
		FieldWidth:      16,
		FieldHeight:     16,
		CooldownSeconds: 300,
		TokenSecret:     TestSecret,
	}, testutil.NopLogger())

	return &TestApp{
		App:       app,
		MockClock: mockClock,
	}
}
