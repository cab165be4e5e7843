package devices

import (
	"fmt"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/micro-nova/panmix/internal/osaudio"
)

// NameCache memoizes device friendly names. A failed lookup caches a
// placeholder so the OS is not asked again until the entry is invalidated.
type NameCache struct {
	svc   osaudio.Service
	names *xsync.MapOf[string, string]
}

func NewNameCache(svc osaudio.Service) *NameCache {
	return &NameCache{
		svc:   svc,
		names: xsync.NewMapOf[string, string](),
	}
}

// Name resolves the name from an open handle.
func (c *NameCache) Name(dev osaudio.Device) string {
	id := dev.ID()
	if name, ok := c.names.Load(id); ok {
		return name
	}
	n, err := dev.FriendlyName()
	if err != nil || n == "" {
		slog.Debug("devices: could not resolve friendly name", "id", id, "err", err)
		n = placeholderName(id)
	}
	name, _ := c.names.LoadOrStore(id, n)
	return name
}

// NameByID resolves the name, opening the device if it is not cached.
func (c *NameCache) NameByID(id string) string {
	if name, ok := c.names.Load(id); ok {
		return name
	}
	dev, err := c.svc.DeviceByID(id)
	if err != nil {
		slog.Debug("devices: could not open device for name", "id", id, "err", err)
		name, _ := c.names.LoadOrStore(id, placeholderName(id))
		return name
	}
	defer dev.Close()
	return c.Name(dev)
}

// Cached returns the cached name without touching the OS.
func (c *NameCache) Cached(id string) (string, bool) {
	return c.names.Load(id)
}

func (c *NameCache) Invalidate(id string) {
	c.names.Delete(id)
}

func placeholderName(id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return fmt.Sprintf("Unknown device(%s..)", short)
}
