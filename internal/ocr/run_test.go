package ocr_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dococr/internal/ocr"
)

type itemCounter struct {
	mu       sync.Mutex
	started  int
	statuses []string
}

func (c *itemCounter) StartItem() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *itemCounter) FinishItem(operation string, _ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := operation + "/ok"
	if err != nil {
		status = operation + "/error"
	}
	c.statuses = append(c.statuses, status)
}

func threeItemsSecondMissing() ocr.Binaries {
	pdf := ocr.InlinePayload(buildPDF(1), "application/pdf", "a.pdf")
	return ocr.Binaries{
		{"data": pdf},
		{},
		{"data": pdf},
	}
}

func TestRun_ContinueOnFail(t *testing.T) {
	fake := newFakeProvider(t)
	counter := &itemCounter{}
	proc := ocr.NewProcessor(fake.Client(t), threeItemsSecondMissing(), ocr.Config{Recorder: counter})

	results, err := proc.Run(context.Background(), make([]ocr.Item, 3), true)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}

	assert.False(t, results[0].Failed())
	assert.Equal(t, "file-1", results[0].JSON[ocr.MetadataKey].(ocr.Metadata).UploadedFileID)

	assert.True(t, results[1].Failed())
	assert.ErrorIs(t, results[1].Err, ocr.ErrMissingBinary)
	assert.Len(t, results[1].JSON, 2)
	assert.Equal(t, 1, results[1].JSON["item"])
	assert.Contains(t, results[1].JSON["error"], "no binary data")

	assert.False(t, results[2].Failed())
	assert.Equal(t, "file-2", results[2].JSON[ocr.MetadataKey].(ocr.Metadata).UploadedFileID)

	assert.Len(t, fake.Calls(), 6)
	assert.Equal(t, 3, counter.started)
	assert.Equal(t, []string{"basicOcr/ok", "basicOcr/error", "basicOcr/ok"}, counter.statuses)
}

func TestRun_StopsOnFirstFailure(t *testing.T) {
	fake := newFakeProvider(t)
	proc := ocr.NewProcessor(fake.Client(t), threeItemsSecondMissing(), ocr.Config{})

	results, err := proc.Run(context.Background(), make([]ocr.Item, 3), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrMissingBinary)
	assert.Contains(t, err.Error(), "item 1")

	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Index)
	assert.Len(t, fake.Calls(), 3)
}

func TestRun_CanceledContext(t *testing.T) {
	fake := newFakeProvider(t)
	proc := ocr.NewProcessor(fake.Client(t), threeItemsSecondMissing(), ocr.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := proc.Run(ctx, make([]ocr.Item, 3), true)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, results)
	assert.Empty(t, fake.Calls())
}
