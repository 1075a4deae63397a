// Package widget publishes the latest partner message to the home screen
// widget surfaces. Surfaces that are not available on the platform are
// skipped.
package widget

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zlnvch/duo/device"
	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/outcome"
)

const FileName = "widget.json"

type Surface interface {
	Name() string
	Available() bool
	Write(ctx context.Context, data []byte) error
}

type Bridge struct {
	surfaces []Surface
}

func NewBridge(surfaces ...Surface) *Bridge {
	return &Bridge{surfaces: surfaces}
}

func (b *Bridge) Publish(ctx context.Context, w models.WidgetData) outcome.BestEffort {
	data, err := models.EncodeWidgetData(w)
	if err != nil {
		return outcome.Drop("widget", err)
	}

	var errs []error
	written := 0
	for _, s := range b.surfaces {
		if !s.Available() {
			continue
		}
		if err := s.Write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		written++
	}

	if len(errs) > 0 {
		return outcome.Drop("widget", errors.Join(errs...))
	}
	if written == 0 {
		return outcome.Skipped("widget", "no widget surface available")
	}
	return outcome.Delivered("widget")
}

// FileSurface writes the record into a directory shared with the widget
// process and then calls the refresh hook, if any.
type FileSurface struct {
	dir     string
	refresh func() error
}

func NewFileSurface(dir string, refresh func() error) *FileSurface {
	return &FileSurface{dir: dir, refresh: refresh}
}

func (f *FileSurface) Name() string {
	return "file"
}

func (f *FileSurface) Available() bool {
	if f.dir == "" {
		return false
	}
	info, err := os.Stat(f.dir)
	return err == nil && info.IsDir()
}

func (f *FileSurface) Path() string {
	return filepath.Join(f.dir, FileName)
}

func (f *FileSurface) Write(ctx context.Context, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, FileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// The widget process never sees a partial record
	if err := os.Rename(tmp.Name(), f.Path()); err != nil {
		return err
	}

	if f.refresh != nil {
		return f.refresh()
	}
	return nil
}

// DeviceSurface keeps the record in the device store for in-app readers.
type DeviceSurface struct {
	dev device.Store
}

func NewDeviceSurface(dev device.Store) *DeviceSurface {
	return &DeviceSurface{dev: dev}
}

func (d *DeviceSurface) Name() string {
	return "device"
}

func (d *DeviceSurface) Available() bool {
	return d.dev != nil
}

func (d *DeviceSurface) Write(ctx context.Context, data []byte) error {
	return d.dev.Set(ctx, device.KeyWidgetData, string(data))
}

// Cached reads the record last written to the device store.
func Cached(ctx context.Context, dev device.Store) (models.WidgetData, bool, error) {
	raw, err := dev.Get(ctx, device.KeyWidgetData)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return models.WidgetData{}, false, nil
		}
		return models.WidgetData{}, false, err
	}
	w, err := models.DecodeWidgetData([]byte(raw))
	if err != nil {
		return models.WidgetData{}, false, err
	}
	return w, true, nil
}
