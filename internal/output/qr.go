package output

import (
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
	"golang.org/x/term"
	"rsc.io/qr"

	"github.com/mrz1836/walletlink/internal/fileutil"
)

// DefaultPNGSize is the edge length in pixels of exported QR images.
const DefaultPNGSize = 512

// QRConfig configures QR code rendering.
type QRConfig struct {
	// Level is the error correction level.
	Level qr.Level
	// QuietZone is the number of empty blocks around the QR code.
	QuietZone int
	// HalfBlocks uses half-height blocks for a more compact display.
	HalfBlocks bool
}

// DefaultQRConfig returns the terminal settings for pairing URIs. Pairing
// URIs are long, so the compact half-block form keeps them on one screen.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.L,
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// CanRenderQR checks if the output writer is a terminal suitable for QR rendering.
func CanRenderQR(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
}

// RenderQR renders a QR code to the writer if it's a terminal.
// Returns without error if the writer is not a terminal (no output is produced).
func RenderQR(w io.Writer, data string, cfg QRConfig) error {
	if !CanRenderQR(w) {
		return nil
	}
	writeQR(w, data, cfg)
	return nil
}

func writeQR(w io.Writer, data string, cfg QRConfig) {
	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
}

// QRPNG encodes data as a PNG QR image of size pixels.
func QRPNG(data string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPNGSize
	}
	return qrcode.Encode(data, qrcode.Medium, size)
}

// WriteQRPNG writes data as a PNG QR image to path.
func WriteQRPNG(path, data string, size int) error {
	png, err := QRPNG(data, size)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, png, 0o600)
}
