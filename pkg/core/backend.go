package core

// BackendConfig selects and configures a numerical backend.
type BackendConfig struct {
	Type    string
	Options map[string]string
}
