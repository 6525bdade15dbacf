package utils

import (
	"errors"
	"io"
	"net"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Close closes c and ignores any error.
// Use for best-effort cleanup in defer where error handling is not critical.
func Close(c io.Closer) {
	_ = c.Close()
}

// CloseLogged closes c and logs any error other than an already-closed
// connection.
func CloseLogged(c io.Closer, log logger.Logger, what string) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn("failed to close",
			logger.String("what", what),
			logger.Error(err))
	}
}
