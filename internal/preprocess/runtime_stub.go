//go:build !govips || !cgo

package preprocess

func Startup() error {
	return nil
}

func Shutdown() {}

func newScaler() (scaler, error) {
	return stdScaler{}, nil
}
