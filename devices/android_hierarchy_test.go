package devices

import (
	"testing"

	"github.com/mobile-next/devicebridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHierarchy = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.example" content-desc="" enabled="true" focused="false" bounds="[0,0][1080,2400]">
    <node index="0" text="Sign in" resource-id="com.example:id/login" class="android.widget.Button" package="com.example" content-desc="Sign in button" enabled="true" focused="true" visible-to-user="true" bounds="[100,200][500,300]" />
    <node index="1" text="" resource-id="" class="android.view.View" package="com.example" content-desc="" enabled="false" visible-to-user="false" bounds="[0,0][10,10]" />
  </node>
</hierarchy>
UI hierchary dumped to: /dev/tty`

func TestParseAndroidHierarchy(t *testing.T) {
	elements, err := ParseAndroidHierarchy([]byte(sampleHierarchy))
	require.NoError(t, err)
	require.Len(t, elements, 3)

	assert.Equal(t, "android.widget.FrameLayout", elements[0].Type)
	assert.True(t, elements[0].Visible, "missing visible-to-user defaults to visible")

	button := elements[1]
	assert.Equal(t, "Sign in", button.Text)
	assert.Equal(t, "Sign in button", button.Label)
	assert.Equal(t, "com.example:id/login", button.Identifier)
	assert.Equal(t, types.Frame{X: 100, Y: 200, Width: 400, Height: 100}, button.Frame)
	assert.True(t, button.Enabled)
	assert.True(t, button.Focused)

	assert.False(t, elements[2].Enabled)
	assert.False(t, elements[2].Visible)
}

func TestParseAndroidHierarchy_Invalid(t *testing.T) {
	_, err := ParseAndroidHierarchy([]byte("ERROR: null root node returned by UiTestAutomationBridge."))
	assert.Error(t, err)
}
