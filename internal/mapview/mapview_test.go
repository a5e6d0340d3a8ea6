package mapview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapmark/mapmark/internal/annotation"
)

var _ Adapter = (*Canvas)(nil)

func TestRenderAndRemove(t *testing.T) {
	c := NewCanvas()

	h1 := c.RenderMarker(annotation.Position{Latitude: 1, Longitude: 2}, "one")
	h2 := c.RenderMarker(annotation.Position{Latitude: 3, Longitude: 4}, "two")
	assert.NotZero(t, h1)
	assert.NotEqual(t, h1, h2)

	markers := c.Markers()
	require.Len(t, markers, 2)
	assert.Equal(t, "one", markers[0].Label)
	assert.Equal(t, 2.0, markers[0].Longitude)
	assert.NotZero(t, markers[0].X)

	c.RemoveMarker(h1)
	c.RemoveMarker(h1)
	c.RemoveMarker(999)

	markers = c.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, h2, markers[0].Handle)
}

func TestPopupDeleteAction(t *testing.T) {
	c := NewCanvas()
	h := c.RenderMarker(annotation.Position{}, "x")

	err := c.Press(context.Background(), h, ActionDelete)
	assert.ErrorIs(t, err, ErrUnknownAction, "no popup yet")

	var deleted int
	c.ShowPopup(h, Popup{HTML: "<b>x</b>", OnDelete: func(context.Context) { deleted++ }})

	markers := c.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "<b>x</b>", markers[0].Popup)
	assert.Equal(t, []string{ActionDelete}, markers[0].Actions)

	require.NoError(t, c.Press(context.Background(), h, ActionDelete))
	assert.Equal(t, 1, deleted)

	assert.ErrorIs(t, c.Press(context.Background(), h, "edit"), ErrUnknownAction)
	assert.ErrorIs(t, c.Press(context.Background(), 42, ActionDelete), ErrUnknownMarker)
}

func TestPopupCallbackMayRemoveMarker(t *testing.T) {
	c := NewCanvas()
	h := c.RenderMarker(annotation.Position{}, "x")
	c.ShowPopup(h, Popup{OnDelete: func(context.Context) { c.RemoveMarker(h) }})

	require.NoError(t, c.Press(context.Background(), h, ActionDelete))
	assert.Empty(t, c.Markers())
}

func TestClick(t *testing.T) {
	c := NewCanvas()

	var got []annotation.Position
	c.OnMapClick(func(p annotation.Position) { got = append(got, p) })

	pos := annotation.Position{Latitude: 43.1, Longitude: 87.2}
	require.NoError(t, c.Click(pos))
	assert.Equal(t, []annotation.Position{pos}, got)

	ind, ok := c.Indicator()
	require.True(t, ok)
	assert.Equal(t, 43.1, ind.Latitude)

	err := c.Click(annotation.Position{Latitude: 91})
	assert.ErrorIs(t, err, annotation.ErrValidation)
	assert.Len(t, got, 1)
}

func TestClickIndicatorExpires(t *testing.T) {
	c := NewCanvas()
	c.SetIndicatorTTL(30 * time.Millisecond)

	require.NoError(t, c.Click(annotation.Position{Latitude: 1, Longitude: 1}))
	_, ok := c.Indicator()
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Indicator()
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestClickIndicatorReplacedByNewerClick(t *testing.T) {
	c := NewCanvas()
	c.SetIndicatorTTL(50 * time.Millisecond)
	require.NoError(t, c.Click(annotation.Position{Latitude: 1, Longitude: 1}))

	c.SetIndicatorTTL(time.Hour)
	require.NoError(t, c.Click(annotation.Position{Latitude: 2, Longitude: 2}))

	time.Sleep(120 * time.Millisecond)
	ind, ok := c.Indicator()
	require.True(t, ok)
	assert.Equal(t, 2.0, ind.Latitude)
}

func TestRenderPopup(t *testing.T) {
	html, err := RenderPopup(annotation.Annotation{
		ID:          "marker_1",
		Name:        "Lake <Sayram>",
		Description: "blue",
		Person:      "Lake <Sayram>",
		Image:       "/media/abc",
	})
	require.NoError(t, err)

	assert.Contains(t, html, "<b>Lake &lt;Sayram&gt;</b>")
	assert.Contains(t, html, `<img src="/media/abc"`)
	assert.NotContains(t, html, "<video")
	assert.Contains(t, html, `data-action="delete"`)

	html, err = RenderPopup(annotation.Annotation{Name: "n", Video: "/media/v"})
	require.NoError(t, err)
	assert.Contains(t, html, `<video src="/media/v" controls`)
	assert.NotContains(t, html, "<img")
}
