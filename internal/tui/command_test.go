package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
		ok    bool
	}{
		{"/image /tmp/cat.png", Command{Name: "image", Args: "/tmp/cat.png"}, true},
		{"  /LIKE ", Command{Name: "like"}, true},
		{"hello", Command{}, false},
		{"//not a command", Command{}, false},
		{"/", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCommand(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "/shrug", messageText("//shrug"))
	assert.Equal(t, "hi", messageText("hi"))
}
