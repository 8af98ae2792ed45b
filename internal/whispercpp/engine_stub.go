//go:build !whisper

package whispercpp

// New always fails without the whisper build tag. The orchestrator treats
// this as the local backend being unavailable.
func New(modelPath string) (Engine, error) {
	return nil, ErrNotBuilt
}
