package errors

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(nil))
	assert.True(t, IsRecoverable(errors.Wrap(ErrSourceCorrupt, "fetch")))
	assert.True(t, IsRecoverable(fmt.Errorf("batch 3: %w", ErrReplicaWriteFailure)))
	assert.False(t, IsRecoverable(errors.Wrap(ErrReplicaUnavailable, "ping")))
}
