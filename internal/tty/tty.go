// Package tty is the terminal line discipline (spec.md §4.8) sitting
// over a raw UART byte stream: a cooked-mode input path with erase and
// CR-to-newline handling plus echo, and an output path that expands
// newlines to CRLF and tabs to spaces. The UART register programming
// itself is the external PL011 contract spec.md §1 puts out of scope;
// this package only ever talks to the small Line interface below,
// grounded on the teacher's uart_qemu.go "driver below us" shape.
package tty

import "runtime"

// Special input bytes the line discipline classifies (spec.md §4.8).
const (
	Erase byte = 0x7f // DEL
	CR    byte = '\r'
	LF    byte = '\n'
	Tab   byte = '\t'
)

// Line is the raw byte-at-a-time UART contract: ReadByte polls the
// hardware receive FIFO (ok is false when it's empty, the suspension
// point spec.md §5 describes as "busy-wait spinning on the FIFO");
// WriteByte pushes one byte to the transmit FIFO.
type Line interface {
	ReadByte() (b byte, ok bool)
	WriteByte(b byte)
}

// Discipline is the cooked/raw line discipline described in spec.md
// §4.8: a raw FIFO (the UART itself, polled through Line) feeding a
// cooked, in-progress line buffer.
type Discipline struct {
	uart   Line
	cooked []byte
}

// New returns a line discipline reading from and echoing to uart.
func New(uart Line) *Discipline {
	return &Discipline{uart: uart}
}

// Read blocks (spinning on the raw FIFO) until a complete line has been
// assembled — terminated by CR, which the discipline turns into a
// trailing '\n' — or dst fills up, whichever happens first. Erase bytes
// remove the last cooked byte; every other byte is appended. Each input
// byte is echoed per spec.md §4.8: "\b \b" for erase, "\r\n" for CR, the
// byte itself otherwise.
func (d *Discipline) Read(dst []byte) (int, error) {
	for {
		c, ok := d.uart.ReadByte()
		if !ok {
			runtime.Gosched()
			continue
		}

		switch c {
		case Erase:
			d.echoErase()
			if len(d.cooked) > 0 {
				d.cooked = d.cooked[:len(d.cooked)-1]
			}
		case CR:
			d.echoCR()
			d.cooked = append(d.cooked, LF)
			n := copy(dst, d.cooked)
			d.cooked = d.cooked[n:]
			return n, nil
		default:
			d.echoByte(c)
			d.cooked = append(d.cooked, c)
		}

		if len(d.cooked) >= len(dst) {
			n := copy(dst, d.cooked)
			d.cooked = d.cooked[n:]
			return n, nil
		}
	}
}

func (d *Discipline) echoErase() {
	d.uart.WriteByte('\b')
	d.uart.WriteByte(' ')
	d.uart.WriteByte('\b')
}

func (d *Discipline) echoCR() {
	d.uart.WriteByte(CR)
	d.uart.WriteByte(LF)
}

func (d *Discipline) echoByte(c byte) { d.uart.WriteByte(c) }

// Write emits buf to the UART, translating '\n' to "\r\n" and '\t' to
// seven spaces (spec.md §4.8), a byte at a time through Line.WriteByte.
func (d *Discipline) Write(buf []byte) (int, error) {
	for _, c := range buf {
		switch c {
		case LF:
			d.uart.WriteByte(CR)
			d.uart.WriteByte(LF)
		case Tab:
			for i := 0; i < 7; i++ {
				d.uart.WriteByte(' ')
			}
		default:
			d.uart.WriteByte(c)
		}
	}
	return len(buf), nil
}
