//go:build !darwin && !linux

package cactus

// NativeLoader reports ErrUnsupportedPlatform where libcactus cannot be loaded.
type NativeLoader struct {
	LibraryPath string
}

func NewNativeLoader(path string) *NativeLoader {
	return &NativeLoader{LibraryPath: path}
}

func (l *NativeLoader) Check() (string, error) {
	return l.LibraryPath, ErrUnsupportedPlatform
}

func (l *NativeLoader) LoadModel(string, int) (Engine, error) {
	return nil, ErrUnsupportedPlatform
}

func (l *NativeLoader) LoadTranscriber(string) (Transcriber, error) {
	return nil, ErrUnsupportedPlatform
}
