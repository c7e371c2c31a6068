package snapshotter

const (
	// APIDomain is the API domain for capture results
	APIDomain = "catalogsnap.io"

	// APIVersion is the current API version for capture results
	APIVersion = "v1alpha1"

	// FullAPIVersion is the complete API version string
	FullAPIVersion = APIDomain + "/" + APIVersion

	// Kind is the resource kind for capture results
	Kind = "CaptureResult"
)
