package gateway

// ValidationError reports missing or malformed request input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConfigurationError reports local state that prevents an operation: no
// active provider, no usable session key, no active organization or project.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// ProviderError reports a failure of the upstream provider, including error
// events received mid-stream. Its message is the upstream message.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
