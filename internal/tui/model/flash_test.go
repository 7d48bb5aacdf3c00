package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlashExpires(t *testing.T) {
	var f Flash
	msg, _ := f.Get()
	assert.Empty(t, msg)

	f.Error("send failed")
	msg, isErr := f.Get()
	assert.Equal(t, "send failed", msg)
	assert.True(t, isErr)

	f.set("saved", false, -time.Second)
	msg, isErr = f.Get()
	assert.Empty(t, msg)
	assert.False(t, isErr)
}

func TestFlashInfoReplacesError(t *testing.T) {
	var f Flash
	f.Error("boom")
	f.Info("Profile saved")
	msg, isErr := f.Get()
	assert.Equal(t, "Profile saved", msg)
	assert.False(t, isErr)
}
