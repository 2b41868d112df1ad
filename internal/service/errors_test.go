package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrRoomFull, ErrRoomNotJoinable)

	notReady := fmt.Errorf("start: %w", &NotReadyError{Ready: 2, Total: 3})
	assert.ErrorIs(t, notReady, ErrNotAllReady)
	assert.Contains(t, notReady.Error(), "(2/3 ready)")
	var nr *NotReadyError
	assert.True(t, errors.As(notReady, &nr))
	assert.Equal(t, 3, nr.Total)

	cause := errors.New("connection refused")
	be := backendErr("create room", cause)
	assert.ErrorIs(t, be, ErrBackendUnavailable)
	assert.ErrorIs(t, be, cause)
	assert.Equal(t, "backend unavailable: create room: connection refused", be.Error())
	assert.NoError(t, backendErr("noop", nil))
}
