//go:build !linux

package devfs

func openDevice(int) (Device, error) {
	return nil, ErrUnsupported
}

func translate(err error) error {
	return err
}
