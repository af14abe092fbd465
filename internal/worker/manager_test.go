package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	events   *[]string
}

func (w *fakeWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.events = append(*w.events, "start:"+w.name)
	return nil
}

func (w *fakeWorker) Stop() {
	*w.events = append(*w.events, "stop:"+w.name)
}

func (w *fakeWorker) Name() string { return w.name }

func TestManagerStartsInOrderAndStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "first", events: &events})
	m.Register(&fakeWorker{name: "second", events: &events})

	require.NoError(t, m.StartAll(context.Background()))
	m.StopAll()

	assert.Equal(t, []string{
		"start:first", "start:second",
		"stop:second", "stop:first",
	}, events)
}

func TestManagerFailedStartStopsAlreadyRunningWorkers(t *testing.T) {
	var events []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "first", events: &events})
	m.Register(&fakeWorker{name: "broken", startErr: fmt.Errorf("no listener"), events: &events})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"start:first", "stop:first"}, events)
}
