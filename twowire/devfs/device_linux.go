//go:build linux

package devfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/sarchlab/i2cm/twowire"
	"golang.org/x/sys/unix"
)

const i2cSlave = 0x0703

type fileDevice struct {
	f *os.File
}

func openDevice(bus int) (Device, error) {
	f, err := os.OpenFile(
		fmt.Sprintf("/dev/i2c-%d", bus), os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}

	return &fileDevice{f: f}, nil
}

func (d *fileDevice) SetAddress(addr twowire.Address) error {
	return unix.IoctlSetInt(int(d.f.Fd()), i2cSlave, int(addr))
}

func (d *fileDevice) Read(p []byte) (int, error) {
	return d.f.Read(p)
}

func (d *fileDevice) Write(p []byte) (int, error) {
	return d.f.Write(p)
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}

// translate maps the errno values of i2c-dev onto twowire errors. Adapters
// report an unanswered address with ENXIO and a NACKed data byte with
// EREMOTEIO.
func translate(err error) error {
	switch {
	case errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %v", twowire.ErrNoSuchDevice, err)
	case errors.Is(err, unix.EREMOTEIO):
		return fmt.Errorf("%w: %v", twowire.ErrNACKReceived, err)
	default:
		return err
	}
}
