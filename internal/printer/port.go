package printer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Port is an open connection to a printer. Implementations must be safe
// for the single writer the per-device print worker provides; they need
// not support concurrent writers.
type Port interface {
	WriteLine(line string) error
	Close() error
}

var baudFlags = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// serialPort streams lines to a serial device in raw 8N1 mode.
type serialPort struct {
	file *os.File
}

// OpenSerial opens a serial device and configures it for the given baud
// rate.
func OpenSerial(path string, baudRate int) (Port, error) {
	flag, ok := baudFlags[baudRate]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baudRate)
	}

	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", path, err)
	}

	fd := int(file.Fd())
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("read termios for %q: %w", path, err)
	}

	// Raw 8N1, no flow control.
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	tio.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD
	tio.Cflag = tio.Cflag&^unix.CBAUD | flag
	tio.Ispeed = flag
	tio.Ospeed = flag
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 10

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("configure serial port %q: %w", path, err)
	}

	return &serialPort{file: file}, nil
}

func (p *serialPort) WriteLine(line string) error {
	if _, err := p.file.WriteString(line + "\r\n"); err != nil {
		return fmt.Errorf("write to %q: %w", p.file.Name(), err)
	}
	return nil
}

func (p *serialPort) Close() error {
	return p.file.Close()
}
