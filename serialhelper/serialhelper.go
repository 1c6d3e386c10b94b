/*
energy-audit - Energy auditing for wired and wireless loads
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package serialhelper

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/tarm/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var log = logging.NewLogger("info")

const cmdlineFile = "/boot/firmware/cmdline.txt"

// SetLogger replaces the package logger.
func SetLogger(l *logging.Logger) {
	if l != nil {
		log = l
	}
}

type SerialUnavailableError struct {
	msg string
}

func (e *SerialUnavailableError) Error() string {
	return e.msg
}

func NewSerialUnavailableError(msg string) error {
	return &SerialUnavailableError{msg: msg}
}

// PortConfig describes the serial line a meter is on.
type PortConfig struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
	// DriverEnablePin is the GPIO driving an RS-485 transceiver's DE/RE pins.
	// Leave empty when the line is plain TTL.
	DriverEnablePin string
	LockRetries     int
	LockWait        time.Duration
}

// MeterPort is an exclusively locked serial line.
type MeterPort struct {
	name     string
	baud     int
	lockFile *os.File
	port     *serial.Port
	dePin    gpio.PinIO
}

// SerialInUseFromTerminal checks if the kernel console is attached to the port.
func SerialInUseFromTerminal(name string) bool {
	b, err := os.ReadFile(cmdlineFile)
	if err != nil {
		log.Debugf("Error when reading %s: %s", cmdlineFile, err)
		return false
	}
	base := strings.TrimPrefix(name, "/dev/")
	return strings.Contains(string(b), "console="+base)
}

// OpenMeterPort takes a file lock on the serial device and opens it at 8N1.
// Close should be called to release the lock.
func OpenMeterPort(c PortConfig) (*MeterPort, error) {
	if SerialInUseFromTerminal(c.Name) {
		return nil, NewSerialUnavailableError(fmt.Sprintf("%s is in use by the terminal console", c.Name))
	}

	lockFile, err := lockSerial(c.Name, c.LockRetries, c.LockWait)
	if err != nil {
		return nil, err
	}

	var dePin gpio.PinIO
	if c.DriverEnablePin != "" {
		dePin, err = initDriverEnablePin(c.DriverEnablePin)
		if err != nil {
			releaseLock(lockFile)
			return nil, err
		}
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        c.Name,
		Baud:        c.Baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: c.ReadTimeout,
	})
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}

	return &MeterPort{
		name:     c.Name,
		baud:     c.Baud,
		lockFile: lockFile,
		port:     port,
		dePin:    dePin,
	}, nil
}

func lockSerial(name string, retries int, wait time.Duration) (*os.File, error) {
	serialFile, err := os.OpenFile(name, os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}

	i := retries
	for {
		err = syscall.Flock(int(serialFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return serialFile, nil
		}

		var errno syscall.Errno
		if !errors.As(err, &errno) || errno != syscall.EWOULDBLOCK {
			serialFile.Close()
			return nil, err
		}

		process, perr := getLockingProcess(name)
		if perr != nil {
			log.Printf("Error checking locking process: %v", perr)
		} else if process != "" {
			log.Printf("%s is locked by process: %s", name, process)
		}

		if i <= 0 {
			serialFile.Close()
			return nil, NewSerialUnavailableError(fmt.Sprintf("failed to get lock on %s, might be in use by other process", name))
		}
		log.Printf("%s is locked by another process. Retrying %d more times in %s...", name, i, wait)
		time.Sleep(wait)
		i--
	}
}

func getLockingProcess(serialPath string) (string, error) {
	cmd := exec.Command("fuser", serialPath)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) && exitError.ExitCode() == 1 {
			// Exit code 1 from `fuser` means no process is using the file
			return "", nil
		}
		return "", fmt.Errorf("failed to execute fuser: %v", err)
	}
	return strings.TrimSpace(output.String()), nil
}

func initDriverEnablePin(name string) (gpio.PinIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %v", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to init %s pin", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, err
	}
	return pin, nil
}

func releaseLock(f *os.File) error {
	defer f.Close()
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

func (p *MeterPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write sends a frame. With a driver enable pin the transceiver is switched
// to transmit for the duration of the frame, then back to receive.
func (p *MeterPort) Write(b []byte) (int, error) {
	if p.dePin == nil {
		return p.port.Write(b)
	}
	if err := p.dePin.Out(gpio.High); err != nil {
		return 0, err
	}
	n, err := p.port.Write(b)
	// 10 bit times per byte at 8N1.
	time.Sleep(time.Duration(len(b)*10) * time.Second / time.Duration(p.baud))
	if lerr := p.dePin.Out(gpio.Low); lerr != nil && err == nil {
		err = lerr
	}
	return n, err
}

func (p *MeterPort) Flush() error {
	return p.port.Flush()
}

func (p *MeterPort) Close() error {
	err := p.port.Close()
	if lerr := releaseLock(p.lockFile); lerr != nil && err == nil {
		err = lerr
	}
	return err
}

func (p *MeterPort) String() string {
	return p.name
}
