package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// QRFileName is the file the login QR code is written to.
const QRFileName = "xueqiu_login_qr.png"

// QRFileDisplay shows the login QR code by writing the screenshot to disk
// and telling the operator where it is.
type QRFileDisplay struct {
	Dir      string
	Notifier *Notifier
}

// NewQRFileDisplay creates a display writing into dir.
func NewQRFileDisplay(dir string, notifier *Notifier) *QRFileDisplay {
	return &QRFileDisplay{Dir: dir, Notifier: notifier}
}

// ShowQR writes the PNG and notifies. The file is replaced on each call.
func (d *QRFileDisplay) ShowQR(ctx context.Context, png []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(png) == 0 {
		return fmt.Errorf("empty QR image")
	}

	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create QR directory: %w", err)
	}

	path := d.Path()
	if err := os.WriteFile(path, png, 0644); err != nil {
		return fmt.Errorf("failed to write QR image: %w", err)
	}

	d.Notifier.SendNotification("Scan to log in", "Open the xueqiu app and scan "+path)
	return nil
}

// Path returns where the QR image is written.
func (d *QRFileDisplay) Path() string {
	return filepath.Join(d.Dir, QRFileName)
}
