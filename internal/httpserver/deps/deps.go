package deps

import (
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
	"github.com/MrSnakeDoc/linkvault/internal/live"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/scheduler"
	"github.com/MrSnakeDoc/linkvault/internal/store"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time          // for testing, defaults to time.Now
	AllowedHosts   []string                  // Host headers allowed to access the server
	AllowedCIDRS   []string                  // IPs allowed to access healthz/readyz/infra/reload endpoints
	AllowedOrigins []string                  // Origin values accepted on the live endpoint, empty = same host only
	TrustProxy     bool                      // true if running behind a trusted reverse proxy (e.g., cloudflared)
	JWTSecret      []byte                    // HS256 key verifying identity tokens
	RequestTimeout time.Duration             // per-request timeout of the REST endpoints
	WriteLimit     mw.RateLimitConfig        // rate limit applied to link creation
	Backend        store.Backend             // durable store and change feed
	Hub            *feed.Hub                 // in-process broadcast between sessions
	Sessions       *live.Sessions            // open live sessions
	ViewOptions    live.Options              // options of every live session
	ImportReloader *scheduler.ImportReloader // nil when no import file is configured
	ReloadTrigger  chan struct{}             // Channel to trigger a manual import (nil if import disabled)
}
