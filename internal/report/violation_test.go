package report

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolation_Error(t *testing.T) {
	v := Usage(CodeBinaryDoubleSignal, "vkQueueSubmit.pSubmits[0].pSignalSemaphores[0]",
		Objects(Queue(0x10), Semaphore(0x2a)), "semaphore %s is already signaled", "S")

	msg := v.Error()
	assert.Contains(t, msg, string(CodeBinaryDoubleSignal))
	assert.Contains(t, msg, "pSignalSemaphores[0]")
	assert.Contains(t, msg, "VkSemaphore 0x2A")
	assert.Contains(t, msg, "VkQueue 0x10")
	assert.Equal(t, SeverityUsage, v.Severity)
}

func TestRejectError_HasCode(t *testing.T) {
	err := NewRejectError("vkQueueSubmit", []*Violation{
		Usage(CodeBinaryWaitNoSignal, "", nil, "no way to be signaled"),
		Usage(CodeTimelineSignalMaxDiff, "", nil, "exceeds limit"),
	})
	require.Error(t, err)

	wrapped := fmt.Errorf("submit batch: %w", err)
	assert.True(t, HasCode(wrapped, CodeBinaryWaitNoSignal))
	assert.True(t, HasCode(wrapped, CodeTimelineSignalMaxDiff))
	assert.False(t, HasCode(wrapped, CodeFenceInUse))
	assert.Equal(t, []Code{CodeBinaryWaitNoSignal, CodeTimelineSignalMaxDiff}, Codes(wrapped))
	assert.Contains(t, err.Error(), "2 violations")
}

func TestNewRejectError_Empty(t *testing.T) {
	assert.NoError(t, NewRejectError("vkQueueSubmit", nil))
}

func TestIsInternal(t *testing.T) {
	internal := Internal(CodeQueueTimeout, "", Objects(Queue(1)), "timeout")
	usage := Usage(CodeFenceInUse, "", nil, "in use")

	assert.True(t, IsInternal(fmt.Errorf("wrap: %w", internal)))
	assert.False(t, IsInternal(usage))
	assert.False(t, IsInternal(nil))
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	r := Multi(c, nil, Discard)

	r.Report(Usage(CodeBinaryWaitOtherQueue, "", nil, "a"))
	r.Report(Internal(CodeInvariant, "", nil, "b"))

	assert.Equal(t, []Code{CodeBinaryWaitOtherQueue, CodeInvariant}, c.Codes())
	assert.Len(t, c.Violations(), 2)

	c.Reset()
	assert.Empty(t, c.Codes())
}

func TestLogReporter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewLogReporter(logger)

	r.Report(Usage(CodeBinaryDoubleSignal, "loc", Objects(Semaphore(7)), "double"))
	r.Report(Internal(CodeFenceTimeout, "loc", Objects(Fence(8)), "stuck"))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "code="+string(CodeBinaryDoubleSignal))
	assert.Contains(t, out, "severity=internal")
}
