package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinnerUpdate(t *testing.T) {
	t.Run("init starts ticking", func(t *testing.T) {
		assert.NotNil(t, NewSpinner("Connecting...").Init())
	})

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		t.Run("quit with "+key.String(), func(t *testing.T) {
			model, cmd := NewSpinner("Connecting...").Update(key)
			sm := model.(SpinnerModel)
			assert.True(t, sm.quitting)
			assert.NotNil(t, cmd)
		})
	}

	t.Run("other keys are ignored", func(t *testing.T) {
		model, cmd := NewSpinner("Connecting...").Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
		assert.False(t, model.(SpinnerModel).quitting)
		assert.Nil(t, cmd)
	})

	t.Run("done", func(t *testing.T) {
		model, cmd := NewSpinner("Connecting...").Update(SpinnerDoneMsg{Result: "Connected"})
		sm := model.(SpinnerModel)
		assert.True(t, sm.done)
		assert.Equal(t, "Connected", sm.result)
		assert.NoError(t, sm.err)
		assert.NotNil(t, cmd)
	})

	t.Run("done with error", func(t *testing.T) {
		model, _ := NewSpinner("Connecting...").Update(SpinnerDoneMsg{Result: "refused", Err: assert.AnError})
		assert.Equal(t, assert.AnError, model.(SpinnerModel).err)
	})

	t.Run("tick", func(t *testing.T) {
		s := NewSpinner("Connecting...")
		_, cmd := s.Update(spinner.TickMsg{Time: time.Now(), ID: s.spinner.ID()})
		assert.NotNil(t, cmd)
	})

	t.Run("unhandled message", func(t *testing.T) {
		_, cmd := NewSpinner("Connecting...").Update(tea.WindowSizeMsg{})
		assert.Nil(t, cmd)
	})
}

func TestSpinnerView(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		assert.Contains(t, NewSpinner("Connecting...").View(), "Connecting...")
	})

	t.Run("success", func(t *testing.T) {
		s := NewSpinner("Connecting...")
		s.done, s.result = true, "Connected"
		assert.Contains(t, s.View(), "Connected")
	})

	t.Run("success without result is erased", func(t *testing.T) {
		s := NewSpinner("Connecting...")
		s.done = true
		assert.Empty(t, s.View())
	})

	t.Run("error", func(t *testing.T) {
		s := NewSpinner("Connecting...")
		s.done, s.result, s.err = true, "connection refused", assert.AnError
		assert.Contains(t, s.View(), "connection refused")
	})

	t.Run("quitting", func(t *testing.T) {
		s := NewSpinner("Connecting...")
		s.quitting = true
		assert.Contains(t, s.View(), "Cancelled")
	})
}

func TestSpin_WithoutTerminal(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	t.Run("runs fn and stays silent", func(t *testing.T) {
		var out bytes.Buffer
		called := false
		err := Spin(ctx, strings.NewReader(""), &out, "Connecting...", "Connected", func(ctx context.Context) error {
			called = true
			assert.Equal(t, "v", ctx.Value(key{}))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.Empty(t, out.String())
	})

	t.Run("returns the error of fn", func(t *testing.T) {
		boom := errors.New("connection refused")
		err := Spin(ctx, nil, &bytes.Buffer{}, "Connecting...", "Connected", func(context.Context) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
	assert.False(t, IsTerminal(nil))
}

func TestBanner(t *testing.T) {
	assert.Contains(t, Banner(), "chronicle")
	assert.Contains(t, SimpleBanner(), "chronicle")
}

func TestDivider(t *testing.T) {
	assert.Equal(t, 10, strings.Count(Divider(10), "─"))
	assert.Empty(t, strings.TrimSpace(Divider(-1)))
}
