package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"lp-tracker/internal/config"
	"lp-tracker/internal/constants"

	"github.com/rs/zerolog"
)

const fallbackDDragonVersion = "25.11"

// Champions resolves champion ids from spectator data to Data Dragon names and images.
type Champions struct {
	baseURL string
	riot    *RiotClient
	logger  zerolog.Logger

	mu          sync.RWMutex
	version     string
	names       map[int]string
	loadedAt    time.Time
	attemptedAt time.Time
	now         func() time.Time
}

func NewChampions(cfg *config.Config, riot *RiotClient, logger zerolog.Logger) *Champions {
	return &Champions{
		baseURL: strings.TrimRight(cfg.DDragonBaseURL, "/"),
		riot:    riot,
		logger:  logger,
		version: fallbackDDragonVersion,
		names:   map[int]string{},
		now:     time.Now,
	}
}

type championFile struct {
	Data map[string]struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	} `json:"data"`
}

// Load fetches the latest Data Dragon version and its champion table.
func (c *Champions) Load(ctx context.Context) error {
	c.mu.Lock()
	c.attemptedAt = c.now()
	c.mu.Unlock()

	version := fallbackDDragonVersion
	versions, err := getPublicJSON[[]string](ctx, c.riot, "ddragon-versions", c.baseURL+"/api/versions.json")
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to fetch data dragon versions, using fallback")
	} else if versions != nil && len(*versions) > 0 {
		version = (*versions)[0]
	}

	file, err := getPublicJSON[championFile](ctx, c.riot, "ddragon-champions",
		fmt.Sprintf("%s/cdn/%s/data/en_US/champion.json", c.baseURL, version))
	if err != nil {
		return fmt.Errorf("failed to fetch champion table: %w", err)
	}
	if file == nil {
		return fmt.Errorf("champion table for %s not found", version)
	}

	names := make(map[int]string, len(file.Data))
	for _, champ := range file.Data {
		id, err := strconv.Atoi(champ.Key)
		if err != nil {
			continue
		}
		names[id] = champ.ID
	}

	c.mu.Lock()
	c.version = version
	c.names = names
	c.loadedAt = c.now()
	c.mu.Unlock()

	c.logger.Info().Str("version", version).Int("champions", len(names)).Msg("champion table loaded")
	return nil
}

// EnsureLoaded reloads the table when it is empty or older than a day, so a
// failed startup load and new patches are picked up. Failed attempts are spaced
// out by constants.ChampionRetryInterval.
func (c *Champions) EnsureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := len(c.names) > 0
	loadedAt, attemptedAt := c.loadedAt, c.attemptedAt
	c.mu.RUnlock()

	now := c.now()
	if loaded && now.Sub(loadedAt) < constants.ChampionRefreshInterval {
		return nil
	}
	if now.Sub(attemptedAt) < constants.ChampionRetryInterval {
		return nil
	}
	return c.Load(ctx)
}

func (c *Champions) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names) > 0
}

// Name returns the Data Dragon slug for id, or "" when unknown.
func (c *Champions) Name(id int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.names[id]
}

func (c *Champions) ImageURL(slug string) string {
	if slug == "" {
		return ""
	}
	c.mu.RLock()
	version := c.version
	c.mu.RUnlock()
	return fmt.Sprintf("%s/cdn/%s/img/champion/%s.png", c.baseURL, version, slug)
}
