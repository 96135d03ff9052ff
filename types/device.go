package types

// Size represents width and height dimensions.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ActiveAppInfo represents information about the currently active/foreground application.
type ActiveAppInfo struct {
	BundleID  string `json:"bundleId"`
	Name      string `json:"name"`
	ProcessID int    `json:"pid,omitempty"`
}

// ScreenData bundles a screenshot with the hierarchy visible in it.
type ScreenData struct {
	Base64   string          `json:"base64"`
	Elements []ScreenElement `json:"elements"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Platform string          `json:"platform"`
}
