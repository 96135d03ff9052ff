package cli

var (
	verbose bool

	// global
	configPath       string
	backendOverride  string
	platformOverride string

	// all device commands
	deviceId string

	// for screenshot command
	screenshotOutputPath  string
	screenshotFormat      string
	screenshotJpegQuality int
	screenshotCompressed  bool

	// for io commands
	percentCoords bool
	durationMs    int
	eraseCount    int

	// for io element command
	elementResourceID string
	elementText       string
	elementIndex      int
	elementTap        bool

	// for record command
	recordMaxDuration int
	recordOutputPath  string

	// for bridge command
	bridgeToken string
)
